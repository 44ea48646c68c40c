package handlers

import (
	"errors"
	"net/http"

	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/services"
	"github.com/DocExplain/DocExplain-app/internal/utils"
	"github.com/gorilla/mux"
)

type DraftHandler struct {
	service services.DraftService
	logger  *utils.Logger
}

func NewDraftHandler(service services.DraftService, logger *utils.Logger) *DraftHandler {
	return &DraftHandler{service: service, logger: logger}
}

func (h *DraftHandler) Draft(w http.ResponseWriter, r *http.Request) {
	var req models.DraftRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(h.logger, w, err)
		return
	}

	result, err := h.service.Draft(r.Context(), &req)
	if err != nil {
		respondError(h.logger, w, err)
		return
	}

	w.Header().Set(ModelHeader, result.ModelUsed)
	respondJSON(h.logger, w, http.StatusOK, result)
}

func (h *DraftHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req services.SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(h.logger, w, err)
		return
	}

	sess, err := h.service.CreateSession(&req)
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, sess)
}

func (h *DraftHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.GetSession(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, sess)
}

type messageRequest struct {
	Text     string `json:"text"`
	Template string `json:"template"`
}

func (h *DraftHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(h.logger, w, err)
		return
	}
	text := req.Text
	if req.Template != "" {
		text = req.Template
	}

	turn, err := h.service.SendMessage(r.Context(), mux.Vars(r)["id"], text)
	if err != nil && turn == nil {
		respondError(h.logger, w, err)
		return
	}
	if turn.Result != nil {
		w.Header().Set(ModelHeader, turn.Result.ModelUsed)
	}

	status := http.StatusOK
	if err != nil {
		// the turn still carries the placeholder reply
		status = http.StatusInternalServerError
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			status = appErr.StatusCode
		}
	}
	respondJSON(h.logger, w, status, turn)
}

func (h *DraftHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.service.CancelSession(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (h *DraftHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(mux.Vars(r)["id"]); err != nil {
		respondError(h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
