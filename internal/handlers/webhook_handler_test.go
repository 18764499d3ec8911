package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bidcast/backend/internal/payments"
	"github.com/stretchr/testify/assert"
)

func TestWebhookHandler_HandlePayPalWebhook(t *testing.T) {
	// Without a configured webhook ID verification is skipped, so the
	// handler acknowledges any well-formed event.
	handler := NewWebhookHandler(payments.NewPayPalClient())

	t.Run("acknowledges a payment event", func(t *testing.T) {
		body := []byte(`{"id":"WH-EVT-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource_type":"capture","resource":{}}`)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/paypal/webhook", bytes.NewReader(body))
		w := httptest.NewRecorder()
		handler.HandlePayPalWebhook(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "received")
	})

	t.Run("rejects a malformed payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/paypal/webhook", bytes.NewReader([]byte(`not json`)))
		w := httptest.NewRecorder()
		handler.HandlePayPalWebhook(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
