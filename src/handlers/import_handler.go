// Package handlers is the thin HTTP layer: decode the request, call the
// service, encode the result. All business rules live in services.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/username/optionstracker/backend/src/config"
	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/parsers"
	"github.com/username/optionstracker/backend/src/security/validation"
	"github.com/username/optionstracker/backend/src/services"
	"github.com/username/optionstracker/backend/src/utils"
)

type ImportHandler struct {
	importService services.ImportService
}

func NewImportHandler(importService services.ImportService) *ImportHandler {
	return &ImportHandler{importService: importService}
}

// HandleImportCSV accepts a multipart upload with a "file" part plus "broker"
// and "account" form fields.
func (h *ImportHandler) HandleImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("File too large or invalid form data (max %d MB)",
			config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "Error retrieving uploaded file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	broker := r.FormValue("broker")
	if broker == "" {
		utils.SendJSONError(w, "Missing 'broker' form field", http.StatusBadRequest)
		return
	}
	account := r.FormValue("account")
	if account == "" {
		account = "Default"
	}

	if err := validation.ValidateClientContentType(fileHeader.Header.Get("Content-Type")); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	logger.L.Info("Processing CSV upload",
		"filename", fileHeader.Filename, "size", fileHeader.Size,
		"broker", broker, "account", account)

	result, err := h.importService.ImportCSV(file, broker, account)
	if err != nil {
		logger.L.Error("CSV import failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, "Failed to import CSV", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

// HandleListBrokers returns the static list of supported brokers.
func (h *ImportHandler) HandleListBrokers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"brokers": parsers.SupportedBrokers()})
}
