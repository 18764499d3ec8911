package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bidcast/backend/internal/middleware"
	"github.com/bidcast/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type SettlementHandler struct {
	service *services.SettlementService
}

func NewSettlementHandler(service *services.SettlementService) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// Finalize settles a campaign whose deadline has passed
// @Summary Finalize campaign
// @Description Settle a campaign past its deadline, crediting the creator on success or refunding backers on failure. Safe to retry.
// @Tags settlement
// @Produce json
// @Security BearerAuth
// @Param campaignId path string true "Campaign ID"
// @Success 200 {object} object{campaignId=string,status=string}
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /campaigns/{campaignId}/finalize [post]
func (h *SettlementHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	role, _ := r.Context().Value(middleware.CtxRole).(string)
	if role != "admin" {
		services.SendErrorResponse(w, "Admin role required", http.StatusForbidden, nil)
		return
	}

	campaignID := chi.URLParam(r, "campaignId")
	if campaignID == "" {
		services.SendErrorResponse(w, "Campaign ID is required", http.StatusBadRequest, nil)
		return
	}

	status, err := h.service.Finalize(r.Context(), campaignID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCampaignNotFound):
			services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		case errors.Is(err, services.ErrTooEarly):
			services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		default:
			log.Printf("[SETTLEMENT] Finalize failed for %s: %v", campaignID, err)
			services.SendErrorResponse(w, "Settlement failed", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"campaignId": campaignID,
		"status":     status,
	})
}
