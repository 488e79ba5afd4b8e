package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/utils"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Error("Failed to encode JSON response", "error", err)
	}
}

// pathID parses the {id} path segment; ok is false after an error response
// has already been written.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.SendJSONError(w, "Invalid ID in URL path", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
