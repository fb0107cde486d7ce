package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/enum"
	"github.com/kainan-app/api/internal/middleware"
	"github.com/kainan-app/api/internal/payment"
	"github.com/kainan-app/api/internal/service"
	"github.com/kainan-app/api/internal/ws"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next string, actor service.Actor) (database.Order, error)
}

// OrderReadStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderReadStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrdersByUser(ctx context.Context, arg database.ListOrdersByUserParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListCartLinesByUser(ctx context.Context, userID uuid.UUID) ([]database.CartLine, error)
}

// PaymentStarter opens a gateway payment for an order or booking.
// Satisfied by *payment.Reconciler.
type PaymentStarter interface {
	BeginPayment(ctx context.Context, subjectType string, subjectID uuid.UUID, payerEmail string) (payment.BeginResult, error)
}

// Notifier pushes events to connected WebSocket clients.
// Satisfied by *ws.Hub; nil disables notifications.
type Notifier interface {
	BroadcastToUser(userID uuid.UUID, event ws.Event)
	BroadcastToStaff(event ws.Event)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc      OrderServicer
	store    OrderReadStore
	payments PaymentStarter
	notifier Notifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderReadStore, payments PaymentStarter, notifier Notifier) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, payments: payments, notifier: notifier}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/{id}/payment", h.BeginPayment)
}

// --- Request / Response types ---

type createOrderRequest struct {
	Notes string `json:"notes"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	PickupCode       string              `json:"pickup_code"`
	Status           string              `json:"status"`
	Notes            string              `json:"notes,omitempty"`
	Subtotal         string              `json:"subtotal"`
	Tax              string              `json:"tax"`
	Total            string              `json:"total"`
	PaymentStatus    string              `json:"payment_status"`
	PaymentReference *string             `json:"payment_reference"`
	PaidAt           *time.Time          `json:"paid_at"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	Items            []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID         uuid.UUID `json:"id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	UnitPrice  string    `json:"unit_price"`
	Category   string    `json:"category"`
	Flavor     string    `json:"flavor,omitempty"`
	Quantity   int32     `json:"quantity"`
	Notes      string    `json:"notes,omitempty"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type beginPaymentResponse struct {
	Reference    string `json:"reference"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// --- Handlers ---

// Create handles POST /orders: checkout of the caller's cart.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	rows, err := h.store.ListCartLinesByUser(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	lines := make([]service.CheckoutLine, len(rows))
	for i, row := range rows {
		lines[i] = service.CheckoutLine{
			MenuItemID: row.MenuItemID,
			Flavor:     row.Flavor,
			Quantity:   row.Quantity,
			Notes:      row.Notes,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		UserID:    claims.UserID,
		UserEmail: claims.Email,
		Notes:     req.Notes,
		Lines:     lines,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := toOrderResponse(result.Order, result.Items)
	h.notifyStaff("order_created", resp)
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders. Staff see every order; customers see their own.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
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
		orders []database.Order
		err    error
	)
	if claims.Staff {
		orders, err = h.store.ListOrders(r.Context(), database.ListOrdersParams{
			Status: status,
			Limit:  int32(limit),
			Offset: int32(offset),
		})
	} else {
		orders, err = h.store.ListOrdersByUser(r.Context(), database.ListOrdersByUserParams{
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

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Limit:  limit,
		Offset: offset,
	}
	for i, o := range orders {
		resp.Orders[i] = toOrderResponse(o, nil)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /orders/{id}. Customers only see their own orders; an
// order that belongs to someone else reads as not found.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeServiceError(w, err)
		return
	}
	if !claims.Staff && order.UserID != claims.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, items))
}

// UpdateStatus handles PATCH /orders/{id}/status. Who may move an order
// where is the service's call; this just relays the verdict.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), orderID, req.Status, service.Actor{
		UserID: claims.UserID,
		Staff:  claims.Staff,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := toOrderResponse(order, nil)
	h.notifyUser(order.UserID, "order_status_changed", resp)
	if order.Status == enum.OrderStatusCancelled {
		h.notifyStaff("order_status_changed", resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// BeginPayment handles POST /orders/{id}/payment: opens a gateway intent
// for the order's frozen total.
func (h *OrderHandler) BeginPayment(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeServiceError(w, err)
		return
	}
	if !claims.Staff && order.UserID != claims.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	begin, err := h.payments.BeginPayment(r.Context(), enum.SubjectTypeOrder, orderID, claims.Email)
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

func (h *OrderHandler) notifyUser(userID uuid.UUID, eventType string, payload interface{}) {
	if h.notifier == nil {
		return
	}
	event, ok := newEvent(eventType, payload)
	if ok {
		h.notifier.BroadcastToUser(userID, event)
	}
}

func (h *OrderHandler) notifyStaff(eventType string, payload interface{}) {
	if h.notifier == nil {
		return
	}
	event, ok := newEvent(eventType, payload)
	if ok {
		h.notifier.BroadcastToStaff(event)
	}
}

func newEvent(eventType string, payload interface{}) (ws.Event, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal %s event: %v", eventType, err)
		return ws.Event{}, false
	}
	return ws.Event{Type: eventType, Payload: data}, true
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		PickupCode:    o.PickupCode,
		Status:        o.Status,
		Notes:         o.Notes,
		Subtotal:      amountString(o.Subtotal),
		Tax:           amountString(o.Tax),
		Total:         amountString(o.Total),
		PaymentStatus: o.PaymentStatus,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.PaymentReference.Valid {
		ref := o.PaymentReference.String
		resp.PaymentReference = &ref
	}
	if o.PaidAt.Valid {
		t := o.PaidAt.Time
		resp.PaidAt = &t
	}
	if len(items) > 0 {
		resp.Items = make([]orderItemResponse, len(items))
		for i, item := range items {
			resp.Items[i] = orderItemResponse{
				ID:         item.ID,
				MenuItemID: item.MenuItemID,
				Name:       item.Name,
				UnitPrice:  amountString(item.UnitPrice),
				Category:   item.Category,
				Flavor:     item.Flavor,
				Quantity:   item.Quantity,
				Notes:      item.Notes,
			}
		}
	}
	return resp
}
