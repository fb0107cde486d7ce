package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/enum"
	"github.com/kainan-app/api/internal/middleware"
	"github.com/kainan-app/api/internal/service"
)

// BookingServicer defines the service methods needed by booking handlers.
// Satisfied by *service.BookingService; narrow interface for testability.
type BookingServicer interface {
	CreateBooking(ctx context.Context, req service.CreateBookingRequest) (database.Booking, error)
	Approve(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error)
	Decline(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error)
}

// BookingReadStore defines the database methods needed by booking read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type BookingReadStore interface {
	GetBooking(ctx context.Context, id uuid.UUID) (database.Booking, error)
	ListBookings(ctx context.Context, arg database.ListBookingsParams) ([]database.Booking, error)
	ListBookingsByUser(ctx context.Context, arg database.ListBookingsByUserParams) ([]database.Booking, error)
}

// BookingHandler handles booking endpoints.
type BookingHandler struct {
	svc      BookingServicer
	store    BookingReadStore
	payments PaymentStarter
	notifier Notifier
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(svc BookingServicer, store BookingReadStore, payments PaymentStarter, notifier Notifier) *BookingHandler {
	return &BookingHandler{svc: svc, store: store, payments: payments, notifier: notifier}
}

// RegisterRoutes registers booking endpoints on the given Chi router.
func (h *BookingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/bookings", h.Create)
	r.Get("/bookings", h.List)
	r.Get("/bookings/{id}", h.Get)
	r.Post("/bookings/{id}/cancel", h.Cancel)
	r.Post("/bookings/{id}/payment", h.BeginPayment)
}

// RegisterStaffRoutes registers staff-only booking endpoints. Mount behind
// RequireStaff middleware.
func (h *BookingHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/bookings/{id}/approve", h.Approve)
	r.Post("/bookings/{id}/decline", h.Decline)
}

// --- Request / Response types ---

type createBookingRequest struct {
	CustomerName   string    `json:"customer_name"`
	BookedFor      time.Time `json:"booked_for"`
	PartySize      int32     `json:"party_size"`
	SpecialRequest string    `json:"special_request"`
}

type bookingResponse struct {
	ID               uuid.UUID  `json:"id"`
	CustomerName     string     `json:"customer_name"`
	BookedFor        time.Time  `json:"booked_for"`
	PartySize        int32      `json:"party_size"`
	SpecialRequest   string     `json:"special_request,omitempty"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentAmount    string     `json:"payment_amount"`
	PaymentReference *string    `json:"payment_reference"`
	PaidAt           *time.Time `json:"paid_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type bookingListResponse struct {
	Bookings []bookingResponse `json:"bookings"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// --- Handlers ---

// Create handles POST /bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	booking, err := h.svc.CreateBooking(r.Context(), service.CreateBookingRequest{
		UserID:         claims.UserID,
		CustomerName:   req.CustomerName,
		BookedFor:      req.BookedFor,
		PartySize:      req.PartySize,
		SpecialRequest: req.SpecialRequest,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := toBookingResponse(booking)
	h.notifyStaff("booking_requested", resp)
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /bookings. Staff see every booking; customers see their own.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	status := r.URL.Query().Get("status")

	var (
		bookings []database.Booking
		err      error
	)
	if claims.Staff {
		bookings, err = h.store.ListBookings(r.Context(), database.ListBookingsParams{
			Status: status,
			Limit:  int32(limit),
			Offset: int32(offset),
		})
	} else {
		bookings, err = h.store.ListBookingsByUser(r.Context(), database.ListBookingsByUserParams{
			UserID: claims.UserID,
			Status: status,
			Limit:  int32(limit),
			Offset: int32(offset),
		})
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := bookingListResponse{
		Bookings: make([]bookingResponse, len(bookings)),
		Limit:    limit,
		Offset:   offset,
	}
	for i, b := range bookings {
		resp.Bookings[i] = toBookingResponse(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /bookings/{id}. A booking that belongs to someone else
// reads as not found.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid booking ID"})
		return
	}

	booking, err := h.store.GetBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
			return
		}
		writeServiceError(w, err)
		return
	}
	if !claims.Staff && booking.UserID != claims.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
		return
	}

	writeJSON(w, http.StatusOK, toBookingResponse(booking))
}

// Approve handles POST /bookings/{id}/approve: the reservation becomes
// payable by the customer.
func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Approve, "booking_approved")
}

// Decline handles POST /bookings/{id}/decline.
func (h *BookingHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Decline, "booking_declined")
}

func (h *BookingHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id uuid.UUID, actor service.Actor) (database.Booking, error),
	eventType string,
) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid booking ID"})
		return
	}

	booking, err := op(r.Context(), bookingID, service.Actor{
		UserID: claims.UserID,
		Staff:  claims.Staff,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := toBookingResponse(booking)
	h.notifyUser(booking.UserID, eventType, resp)
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /bookings/{id}/cancel. The reservation fee, if paid,
// stays forfeited.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid booking ID"})
		return
	}

	booking, err := h.svc.Cancel(r.Context(), bookingID, service.Actor{
		UserID: claims.UserID,
		Staff:  claims.Staff,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := toBookingResponse(booking)
	h.notifyUser(booking.UserID, "booking_cancelled", resp)
	h.notifyStaff("booking_cancelled", resp)
	writeJSON(w, http.StatusOK, resp)
}

// BeginPayment handles POST /bookings/{id}/payment: opens a gateway intent
// for the frozen reservation fee.
func (h *BookingHandler) BeginPayment(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid booking ID"})
		return
	}

	booking, err := h.store.GetBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
			return
		}
		writeServiceError(w, err)
		return
	}
	if !claims.Staff && booking.UserID != claims.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
		return
	}

	begin, err := h.payments.BeginPayment(r.Context(), enum.SubjectTypeBooking, bookingID, claims.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, beginPaymentResponse{
		Reference:    begin.Reference,
		ClientSecret: begin.ClientSecret,
		Amount:       begin.Amount,
		Currency:     begin.Currency,
	})
}

// --- Helpers ---

func (h *BookingHandler) notifyUser(userID uuid.UUID, eventType string, payload interface{}) {
	if h.notifier == nil {
		return
	}
	event, ok := newEvent(eventType, payload)
	if ok {
		h.notifier.BroadcastToUser(userID, event)
	}
}

func (h *BookingHandler) notifyStaff(eventType string, payload interface{}) {
	if h.notifier == nil {
		return
	}
	event, ok := newEvent(eventType, payload)
	if ok {
		h.notifier.BroadcastToStaff(event)
	}
}

func toBookingResponse(b database.Booking) bookingResponse {
	resp := bookingResponse{
		ID:             b.ID,
		CustomerName:   b.CustomerName,
		BookedFor:      b.BookedFor,
		PartySize:      b.PartySize,
		SpecialRequest: b.SpecialRequest,
		Status:         b.Status,
		PaymentStatus:  b.PaymentStatus,
		PaymentAmount:  amountString(b.PaymentAmount),
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
	if b.PaymentReference.Valid {
		ref := b.PaymentReference.String
		resp.PaymentReference = &ref
	}
	if b.PaidAt.Valid {
		t := b.PaidAt.Time
		resp.PaidAt = &t
	}
	return resp
}
