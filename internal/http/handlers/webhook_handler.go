package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AFixt/meetabl-api/internal/booking"
	"github.com/AFixt/meetabl-api/internal/http/response"
	"github.com/AFixt/meetabl-api/internal/payments"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

// webhookMaxBody bounds the Stripe payload; their events are small.
const webhookMaxBody = 1 << 16

type WebhookHandler struct {
	pay *payments.Client
	svc *booking.Service
}

func NewWebhookHandler(pay *payments.Client, svc *booking.Service) *WebhookHandler {
	return &WebhookHandler{pay: pay, svc: svc}
}

func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stripe", h.stripe)
	return r
}

func (h *WebhookHandler) stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBody))
	if err != nil {
		response.BadRequest(w, "cannot read payload")
		return
	}

	evt, err := h.pay.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.WarnContext(r.Context(), "rejected stripe webhook", "error", err)
		response.BadRequest(w, "invalid webhook")
		return
	}

	if err := h.svc.HandlePaymentWebhook(r.Context(), evt); err != nil {
		// Non-2xx makes Stripe redeliver, which is what we want for
		// transient store trouble.
		logger.ErrorContext(r.Context(), "webhook processing failed", "type", evt.Type, "error", err)
		response.InternalError(w, "webhook processing failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}
