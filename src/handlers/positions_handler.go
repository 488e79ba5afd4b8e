package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/services"
	"github.com/username/optionstracker/backend/src/utils"
)

type PositionHandler struct {
	positionService services.PositionService
}

func NewPositionHandler(positionService services.PositionService) *PositionHandler {
	return &PositionHandler{positionService: positionService}
}

func (h *PositionHandler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positionService.GetAllPositions(r.URL.Query().Get("account"))
	if err != nil {
		logger.L.Error("Failed to list positions", "error", err)
		utils.SendJSONError(w, "Failed to retrieve positions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *PositionHandler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	position, err := h.positionService.GetPositionByID(id)
	if err != nil {
		if errors.Is(err, services.ErrPositionNotFound) {
			utils.SendJSONError(w, "Position not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to get position", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to retrieve position", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (h *PositionHandler) HandleCreateOrUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol   string  `json:"symbol"`
		Quantity float64 `json:"quantity"`
		Price    float64 `json:"price"`
		Account  string  `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		utils.SendJSONError(w, "Symbol is required", http.StatusBadRequest)
		return
	}

	position, err := h.positionService.CreateOrUpdate(req.Symbol, req.Quantity, req.Price, req.Account)
	if err != nil {
		logger.L.Error("Failed to create or update position", "symbol", req.Symbol, "error", err)
		utils.SendJSONError(w, "Failed to save position", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (h *PositionHandler) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPrice float64 `json:"current_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.positionService.UpdatePrice(id, req.CurrentPrice); err != nil {
		if errors.Is(err, services.ErrPositionNotFound) {
			utils.SendJSONError(w, "Position not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to update position price", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to update price", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PositionHandler) HandleDeletePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.positionService.Delete(id); err != nil {
		if errors.Is(err, services.ErrPositionNotFound) {
			utils.SendJSONError(w, "Position not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to delete position", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to delete position", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
