package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/username/optionstracker/backend/src/config"
	"github.com/username/optionstracker/backend/src/database"
	"github.com/username/optionstracker/backend/src/handlers"
	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/processors"
	"github.com/username/optionstracker/backend/src/services"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin == config.Cfg.AllowedOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Options tracker backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing dashboard cache...")
	dashboardCache := cache.New(5*time.Minute, 10*time.Minute)

	logger.L.Info("Initializing services and handlers...")
	positionService := services.NewPositionService(database.DB)
	reconciler := processors.NewReconciler(database.DB, positionService)
	importService := services.NewImportService(database.DB, reconciler, dashboardCache)
	optionsService := services.NewOptionsService(database.DB, dashboardCache)

	importHandler := handlers.NewImportHandler(importService)
	positionHandler := handlers.NewPositionHandler(positionService)
	optionsHandler := handlers.NewOptionsHandler(optionsService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/import/csv", importHandler.HandleImportCSV)
	apiRouter.HandleFunc("GET /api/import/brokers", importHandler.HandleListBrokers)

	apiRouter.HandleFunc("GET /api/positions", positionHandler.HandleGetPositions)
	apiRouter.HandleFunc("GET /api/positions/{id}", positionHandler.HandleGetPosition)
	apiRouter.HandleFunc("POST /api/positions", positionHandler.HandleCreateOrUpdatePosition)
	apiRouter.HandleFunc("PUT /api/positions/{id}/price", positionHandler.HandleUpdatePrice)
	apiRouter.HandleFunc("DELETE /api/positions/{id}", positionHandler.HandleDeletePosition)

	apiRouter.HandleFunc("GET /api/options", optionsHandler.HandleGetOptions)
	apiRouter.HandleFunc("GET /api/options/covered-calls", optionsHandler.HandleGetCoveredCalls)
	apiRouter.HandleFunc("GET /api/options/cash-secured-puts", optionsHandler.HandleGetCashSecuredPuts)
	apiRouter.HandleFunc("GET /api/options/roll-history", optionsHandler.HandleGetRollHistory)
	apiRouter.HandleFunc("GET /api/options/{id}", optionsHandler.HandleGetOption)
	apiRouter.HandleFunc("POST /api/options/covered-call", optionsHandler.HandleCreateCoveredCall)
	apiRouter.HandleFunc("POST /api/options/cash-secured-put", optionsHandler.HandleCreateCashSecuredPut)
	apiRouter.HandleFunc("POST /api/options/roll", optionsHandler.HandleRollOption)
	apiRouter.HandleFunc("POST /api/options/{id}/close", optionsHandler.HandleClosePosition)

	apiRouter.HandleFunc("GET /api/dashboard", optionsHandler.HandleDashboard)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Options tracker backend is running"})
		} else if !strings.HasPrefix(r.URL.Path, "/api/") {
			logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
