package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/bidcast/backend/internal/payments"
	"github.com/bidcast/backend/internal/services"
)

type WebhookHandler struct {
	paypal *payments.PayPalClient
}

func NewWebhookHandler(paypal *payments.PayPalClient) *WebhookHandler {
	return &WebhookHandler{paypal: paypal}
}

// HandlePayPalWebhook receives payment provider event notifications
// @Summary PayPal webhook
// @Description Verify and acknowledge PayPal webhook events. Charges are captured synchronously during pledging, so events are logged for reconciliation only.
// @Tags payments
// @Accept json
// @Produce json
// @Success 200 {object} object{received=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /payments/paypal/webhook [post]
func (h *WebhookHandler) HandlePayPalWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	valid, err := h.paypal.VerifyWebhookSignature(r.Context(), r.Header, body)
	if err != nil {
		log.Printf("[PAYPAL] Webhook verification error: %v", err)
		services.SendErrorResponse(w, "Webhook verification failed", http.StatusBadRequest, nil)
		return
	}
	if !valid {
		services.SendErrorResponse(w, "Invalid webhook signature", http.StatusUnauthorized, nil)
		return
	}

	var event struct {
		ID           string          `json:"id"`
		EventType    string          `json:"event_type"`
		ResourceType string          `json:"resource_type"`
		Resource     json.RawMessage `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		services.SendErrorResponse(w, "Invalid event payload", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[PAYPAL] Webhook event %s (%s) received", event.ID, event.EventType)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
