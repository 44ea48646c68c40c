package handlers

import (
	"net/http"

	"github.com/DocExplain/DocExplain-app/internal/services"
	"github.com/DocExplain/DocExplain-app/internal/utils"
	"github.com/gorilla/mux"
)

type QuotaHandler struct {
	service services.QuotaService
	logger  *utils.Logger
}

func NewQuotaHandler(service services.QuotaService, logger *utils.Logger) *QuotaHandler {
	return &QuotaHandler{service: service, logger: logger}
}

func (h *QuotaHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), mux.Vars(r)["deviceId"])
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, status)
}

type proRequest struct {
	IsPro *bool `json:"isPro"`
}

func (h *QuotaHandler) SetPro(w http.ResponseWriter, r *http.Request) {
	var req proRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(h.logger, w, err)
		return
	}
	if req.IsPro == nil {
		respondError(h.logger, w, utils.NewBadRequestError("isPro is required"))
		return
	}

	status, err := h.service.SetPro(r.Context(), mux.Vars(r)["deviceId"], *req.IsPro)
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, status)
}

func (h *QuotaHandler) StartAd(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.service.StartAd(r.Context(), mux.Vars(r)["deviceId"])
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, ticket)
}

func (h *QuotaHandler) CloseAd(w http.ResponseWriter, r *http.Request) {
	closed, err := h.service.CloseAd(r.Context(), mux.Vars(r)["adId"])
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, closed)
}
