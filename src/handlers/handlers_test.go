package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/optionstracker/backend/src/config"
	"github.com/username/optionstracker/backend/src/database"
	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/processors"
	"github.com/username/optionstracker/backend/src/services"
)

func TestMain(m *testing.M) {
	config.LoadConfig()
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*httptest.Server, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.CreateTables(db))
	t.Cleanup(func() { db.Close() })

	dashboardCache := cache.New(5*time.Minute, 10*time.Minute)
	positionService := services.NewPositionService(db)
	reconciler := processors.NewReconciler(db, positionService)
	importService := services.NewImportService(db, reconciler, dashboardCache)
	optionsService := services.NewOptionsService(db, dashboardCache)

	importHandler := NewImportHandler(importService)
	positionHandler := NewPositionHandler(positionService)
	optionsHandler := NewOptionsHandler(optionsService)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/import/csv", importHandler.HandleImportCSV)
	mux.HandleFunc("GET /api/import/brokers", importHandler.HandleListBrokers)
	mux.HandleFunc("GET /api/positions", positionHandler.HandleGetPositions)
	mux.HandleFunc("GET /api/positions/{id}", positionHandler.HandleGetPosition)
	mux.HandleFunc("POST /api/positions", positionHandler.HandleCreateOrUpdatePosition)
	mux.HandleFunc("PUT /api/positions/{id}/price", positionHandler.HandleUpdatePrice)
	mux.HandleFunc("DELETE /api/positions/{id}", positionHandler.HandleDeletePosition)
	mux.HandleFunc("POST /api/options/covered-call", optionsHandler.HandleCreateCoveredCall)
	mux.HandleFunc("GET /api/options", optionsHandler.HandleGetOptions)
	mux.HandleFunc("GET /api/dashboard", optionsHandler.HandleDashboard)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, db
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestPositionEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/positions", map[string]any{
		"symbol": "AAPL", "quantity": 100.0, "price": 150.0, "account": "Brokerage",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, resp, &created)
	require.NotZero(t, created.ID)

	resp, err := http.Get(server.URL + "/api/positions")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []services.PositionDetail
	decodeBody(t, resp, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "AAPL", listed[0].Symbol)
	assert.Equal(t, 15000.0, listed[0].TotalCost)

	resp, err = http.Get(server.URL + "/api/positions/999")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/positions/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCoveredCallEndpointValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/positions", map[string]any{
		"symbol": "AAPL", "quantity": 50.0, "price": 150.0, "account": "Brokerage",
	})
	var position struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, resp, &position)

	// 50 shares cannot cover one contract
	resp = postJSON(t, server.URL+"/api/options/covered-call", map[string]any{
		"position_id": position.ID, "strike_price": 160.0, "contracts": 1,
		"expiration_date": "2030-01-17T00:00:00Z", "premium_per_contract": 2.5,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Contains(t, errBody["error"], "insufficient shares")
}

func TestImportEndpoint(t *testing.T) {
	server, db := newTestServer(t)

	csv := `Run Date,Action,Symbol,Security Description,Security Type,Quantity,Price,Commission,Fees,Amount,Settlement Date
01/10/2024,YOU BOUGHT APPLE INC,AAPL,APPLE INC,Cash,100,150.00,0,0,-15000.00,01/12/2024
`
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "activity.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("broker", "Fidelity"))
	require.NoError(t, writer.WriteField("account", "Brokerage"))
	require.NoError(t, writer.Close())

	resp, err := http.Post(server.URL+"/api/import/csv", writer.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result services.ImportResult
	decodeBody(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TransactionsImported)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestImportEndpointUnsupportedBroker(t *testing.T) {
	server, _ := newTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "activity.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Date,Action\n"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("broker", "Robinhood"))
	require.NoError(t, writer.Close())

	resp, err := http.Post(server.URL+"/api/import/csv", writer.FormDataContentType(), &buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var result services.ImportResult
	decodeBody(t, resp, &result)
	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "Robinhood")
}

func TestListBrokersEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/import/brokers")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string][]string
	decodeBody(t, resp, &body)
	assert.Equal(t, []string{"Fidelity", "Schwab"}, body["brokers"])
}

func TestDashboardEndpointETag(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/positions", map[string]any{
		"symbol": "AAPL", "quantity": 100.0, "price": 150.0, "account": "Brokerage",
	})
	resp.Body.Close()

	resp, err := http.Get(server.URL + "/api/dashboard")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/dashboard", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	assert.Len(t, etag, 64) // sha256 hex
}
