package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/models"
	"github.com/username/optionstracker/backend/src/services"
	"github.com/username/optionstracker/backend/src/utils"
)

type OptionsHandler struct {
	optionsService services.OptionsService
}

func NewOptionsHandler(optionsService services.OptionsService) *OptionsHandler {
	return &OptionsHandler{optionsService: optionsService}
}

func (h *OptionsHandler) HandleGetOptions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")

	var status *models.PositionStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		parsed, ok := models.ParsePositionStatus(statusStr)
		if !ok {
			utils.SendJSONError(w, "Invalid status filter: "+statusStr, http.StatusBadRequest)
			return
		}
		status = &parsed
	}

	options, err := h.optionsService.GetAllOptionsPositions(account, status)
	if err != nil {
		logger.L.Error("Failed to list options positions", "error", err)
		utils.SendJSONError(w, "Failed to retrieve options positions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (h *OptionsHandler) HandleGetOption(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	option, err := h.optionsService.GetOptionsPositionByID(id)
	if err != nil {
		if errors.Is(err, services.ErrOptionsPositionNotFound) {
			utils.SendJSONError(w, "Options position not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to get options position", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to retrieve options position", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, option)
}

// HandleGetCoveredCalls lists open covered calls, optionally by account.
func (h *OptionsHandler) HandleGetCoveredCalls(w http.ResponseWriter, r *http.Request) {
	h.listByStrategy(w, r, models.StrategyCoveredCall)
}

// HandleGetCashSecuredPuts lists open cash-secured puts, optionally by account.
func (h *OptionsHandler) HandleGetCashSecuredPuts(w http.ResponseWriter, r *http.Request) {
	h.listByStrategy(w, r, models.StrategyCashSecuredPut)
}

func (h *OptionsHandler) listByStrategy(w http.ResponseWriter, r *http.Request, strategy models.OptionStrategy) {
	open := models.StatusOpen
	options, err := h.optionsService.GetAllOptionsPositions(r.URL.Query().Get("account"), &open)
	if err != nil {
		logger.L.Error("Failed to list options positions", "strategy", strategy, "error", err)
		utils.SendJSONError(w, "Failed to retrieve options positions", http.StatusInternalServerError)
		return
	}
	filtered := []services.OptionsPositionDetail{}
	for _, o := range options {
		if o.Strategy == string(strategy) {
			filtered = append(filtered, o)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

func (h *OptionsHandler) HandleCreateCoveredCall(w http.ResponseWriter, r *http.Request) {
	var req services.CreateCoveredCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PositionID <= 0 || req.Contracts <= 0 {
		utils.SendJSONError(w, "position_id and contracts are required", http.StatusBadRequest)
		return
	}

	option, err := h.optionsService.CreateCoveredCall(req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPositionNotFound):
			utils.SendJSONError(w, "Position not found", http.StatusNotFound)
		case errors.Is(err, services.ErrInsufficientShares):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.L.Error("Failed to create covered call", "positionID", req.PositionID, "error", err)
			utils.SendJSONError(w, "Failed to create covered call", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, option)
}

func (h *OptionsHandler) HandleCreateCashSecuredPut(w http.ResponseWriter, r *http.Request) {
	var req services.CreateCashSecuredPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UnderlyingSymbol == "" || req.Contracts <= 0 {
		utils.SendJSONError(w, "underlying_symbol and contracts are required", http.StatusBadRequest)
		return
	}

	option, err := h.optionsService.CreateCashSecuredPut(req)
	if err != nil {
		logger.L.Error("Failed to create cash-secured put", "symbol", req.UnderlyingSymbol, "error", err)
		utils.SendJSONError(w, "Failed to create cash-secured put", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, option)
}

func (h *OptionsHandler) HandleRollOption(w http.ResponseWriter, r *http.Request) {
	var req services.RollOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OptionsPositionID <= 0 {
		utils.SendJSONError(w, "options_position_id is required", http.StatusBadRequest)
		return
	}

	summary, err := h.optionsService.RollOption(req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOptionsPositionNotFound):
			utils.SendJSONError(w, "Options position not found", http.StatusNotFound)
		case errors.Is(err, services.ErrPositionNotOpen):
			utils.SendJSONError(w, "Can only roll open positions", http.StatusBadRequest)
		default:
			logger.L.Error("Failed to roll options position", "id", req.OptionsPositionID, "error", err)
			utils.SendJSONError(w, "Failed to roll options position", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *OptionsHandler) HandleGetRollHistory(w http.ResponseWriter, r *http.Request) {
	var positionID *int64
	if idStr := r.URL.Query().Get("position_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			utils.SendJSONError(w, "Invalid position_id filter", http.StatusBadRequest)
			return
		}
		positionID = &id
	}

	history, err := h.optionsService.GetRollHistory(positionID)
	if err != nil {
		logger.L.Error("Failed to get roll history", "error", err)
		utils.SendJSONError(w, "Failed to retrieve roll history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *OptionsHandler) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		ClosingPrice float64 `json:"closing_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.optionsService.ClosePosition(id, req.ClosingPrice); err != nil {
		if errors.Is(err, services.ErrOptionsPositionNotFound) {
			utils.SendJSONError(w, "Options position not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to close options position", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to close options position", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDashboard serves the cached portfolio summary with an ETag so polling
// clients can skip unchanged payloads.
func (h *OptionsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.optionsService.GetDashboardSummary(r.URL.Query().Get("account"))
	if err != nil {
		logger.L.Error("Failed to build dashboard summary", "error", err)
		utils.SendJSONError(w, "Failed to retrieve dashboard summary", http.StatusInternalServerError)
		return
	}

	etag, err := utils.GenerateETag(summary)
	if err == nil {
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	writeJSON(w, http.StatusOK, summary)
}
