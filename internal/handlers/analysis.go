package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/services"
	"github.com/DocExplain/DocExplain-app/internal/utils"
	"github.com/gorilla/mux"
)

// DefaultMaxFileSize bounds multipart uploads.
const DefaultMaxFileSize = 10 << 20

type AnalysisHandler struct {
	service     services.AnalysisService
	maxFileSize int64
	logger      *utils.Logger
}

func NewAnalysisHandler(service services.AnalysisService, maxFileSize int64, logger *utils.Logger) *AnalysisHandler {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &AnalysisHandler{service: service, maxFileSize: maxFileSize, logger: logger}
}

func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(h.logger, w, err)
		return
	}

	result, err := h.service.Analyze(r.Context(), r.Header.Get(DeviceHeader), &req)
	if err != nil {
		respondError(h.logger, w, err)
		return
	}

	w.Header().Set(ModelHeader, result.ModelUsed)
	respondJSON(h.logger, w, http.StatusOK, result)
}

func (h *AnalysisHandler) AnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	limit := fmt.Sprintf("File size exceeds %dMB limit", h.maxFileSize>>20)
	if r.ContentLength > h.maxFileSize {
		respondError(h.logger, w, utils.NewBadRequestError(limit))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(h.logger, w, utils.NewBadRequestError(limit))
			return
		}
		respondError(h.logger, w, utils.NewBadRequestError("Invalid form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(h.logger, w, utils.NewBadRequestError("No file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		respondError(h.logger, w, utils.NewInternalError("Failed to read file").WithCause(err))
		return
	}
	if int64(len(data)) > h.maxFileSize {
		respondError(h.logger, w, utils.NewBadRequestError(limit))
		return
	}

	h.logger.Info("File upload",
		"filename", header.Filename,
		"reported_content_type", header.Header.Get("Content-Type"),
		"size", len(data))

	result, err := h.service.AnalyzeUpload(r.Context(), r.Header.Get(DeviceHeader), &models.Upload{
		Data:         data,
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		ContextText:  r.FormValue("context"),
		LanguageName: r.FormValue("lang"),
		Country:      r.FormValue("country"),
		Region:       r.FormValue("region"),
	})
	if err != nil {
		respondError(h.logger, w, err)
		return
	}

	w.Header().Set(ModelHeader, result.ModelUsed)
	respondJSON(h.logger, w, http.StatusOK, result)
}

func (h *AnalysisHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		deviceID = r.Header.Get(DeviceHeader)
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.service.History(r.Context(), deviceID, limit)
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, entries)
}

func (h *AnalysisHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, entry)
}

func (h *AnalysisHandler) GetOriginal(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.service.Original(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *AnalysisHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteHistory(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
