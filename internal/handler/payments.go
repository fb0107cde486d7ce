package handler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/enum"
	"github.com/kainan-app/api/internal/payment"
)

// maxWebhookBody caps webhook reads; gateway events are small.
const maxWebhookBody = 1 << 20

// PaymentApplier settles gateway outcomes against orders and bookings.
// Satisfied by *payment.Reconciler.
type PaymentApplier interface {
	ApplyResult(ctx context.Context, res payment.Result) (bool, error)
	Confirm(ctx context.Context, reference string) (payment.Result, bool, error)
}

// PaymentSubjectStore loads the subject a settled payment belongs to, for
// notifications. Satisfied by *database.Queries.
type PaymentSubjectStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetBooking(ctx context.Context, id uuid.UUID) (database.Booking, error)
}

// PaymentHandler handles the gateway webhook and client-side confirmation.
type PaymentHandler struct {
	applier       PaymentApplier
	store         PaymentSubjectStore
	webhookSecret string
	notifier      Notifier
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(applier PaymentApplier, store PaymentSubjectStore, webhookSecret string, notifier Notifier) *PaymentHandler {
	return &PaymentHandler{applier: applier, store: store, webhookSecret: webhookSecret, notifier: notifier}
}

// RegisterWebhookRoutes registers the gateway callback. Mounted outside the
// authenticated group; the HMAC signature is the authentication.
func (h *PaymentHandler) RegisterWebhookRoutes(r chi.Router) {
	r.Post("/webhooks/payment", h.Webhook)
}

// RegisterRoutes registers authenticated payment endpoints.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/confirm", h.Confirm)
}

// --- Request types ---

// webhookEvent mirrors the gateway's intent payload.
type webhookEvent struct {
	Reference string            `json:"reference"`
	Status    string            `json:"status"`
	Amount    int64             `json:"amount"`
	Metadata  map[string]string `json:"metadata"`
}

type confirmRequest struct {
	Reference string `json:"reference"`
}

// --- Handlers ---

// Webhook handles POST /webhooks/payment. Returns 200 for deliveries that
// are valid but change nothing, so the gateway stops retrying duplicates.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if !payment.VerifyWebhookSignature(h.webhookSecret, body, signature) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var outcome string
	switch event.Status {
	case payment.IntentStatusSucceeded:
		outcome = enum.PaymentOutcomeSucceeded
	case payment.IntentStatusFailed:
		outcome = enum.PaymentOutcomeFailed
	default:
		// Not a settlement event. Acknowledge and move on.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	subjectID, err := uuid.Parse(event.Metadata["subject_id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid subject_id"})
		return
	}

	res := payment.Result{
		Reference:   event.Reference,
		SubjectType: event.Metadata["subject_type"],
		SubjectID:   subjectID,
		Outcome:     outcome,
		Amount:      event.Amount,
	}

	changed, err := h.applier.ApplyResult(r.Context(), res)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if changed {
		h.notifySettled(r.Context(), res)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// Confirm handles POST /payments/confirm. The client supplies only the
// intent reference; outcome and amount are re-read from the gateway.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Reference == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reference is required"})
		return
	}

	res, changed, err := h.applier.Confirm(r.Context(), req.Reference)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if changed {
		h.notifySettled(r.Context(), res)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"reference":    res.Reference,
		"subject_type": res.SubjectType,
		"subject_id":   res.SubjectID.String(),
		"outcome":      res.Outcome,
	})
}

// notifySettled pushes the refreshed subject to its owner and to staff.
func (h *PaymentHandler) notifySettled(ctx context.Context, res payment.Result) {
	if h.notifier == nil {
		return
	}

	var (
		ownerID   uuid.UUID
		eventType string
		payload   interface{}
	)
	switch res.SubjectType {
	case enum.SubjectTypeOrder:
		order, err := h.store.GetOrder(ctx, res.SubjectID)
		if err != nil {
			log.Printf("ERROR: load order %s after payment: %v", res.SubjectID, err)
			return
		}
		ownerID = order.UserID
		eventType = "order_payment_" + res.Outcome
		payload = toOrderResponse(order, nil)
	case enum.SubjectTypeBooking:
		booking, err := h.store.GetBooking(ctx, res.SubjectID)
		if err != nil {
			log.Printf("ERROR: load booking %s after payment: %v", res.SubjectID, err)
			return
		}
		ownerID = booking.UserID
		eventType = "booking_payment_" + res.Outcome
		payload = toBookingResponse(booking)
	default:
		return
	}

	event, ok := newEvent(eventType, payload)
	if !ok {
		return
	}
	h.notifier.BroadcastToUser(ownerID, event)
	h.notifier.BroadcastToStaff(event)
}
