package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/middleware"
	"github.com/shopspring/decimal"
)

// MenuStore defines the database methods needed by menu handlers.
type MenuStore interface {
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	ListMenuItems(ctx context.Context, onlyAvailable bool) ([]database.MenuItem, error)
	UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error)
	UpdateMenuItemStock(ctx context.Context, arg database.UpdateMenuItemStockParams) (database.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id uuid.UUID) error
}

// MenuHandler handles catalog endpoints.
type MenuHandler struct {
	store MenuStore
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store}
}

// RegisterRoutes registers the read-side menu endpoints.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.List)
	r.Get("/menu/{id}", h.Get)
}

// RegisterStaffRoutes registers the write-side menu endpoints. The router
// mounts these behind RequireStaff.
func (h *MenuHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/menu", h.Create)
	r.Put("/menu/{id}", h.Update)
	r.Patch("/menu/{id}/stock", h.SetStock)
	r.Delete("/menu/{id}", h.Delete)
}

// --- Request / Response types ---

type menuItemRequest struct {
	Name       string   `json:"name"`
	Price      string   `json:"price"`
	Category   string   `json:"category"`
	Flavors    []string `json:"flavors"`
	Available  *bool    `json:"available"`
	StockCount *int32   `json:"stock_count"`
}

type setStockRequest struct {
	StockCount int32 `json:"stock_count"`
}

type menuItemResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	Category   string    `json:"category"`
	Flavors    []string  `json:"flavors"`
	Available  bool      `json:"available"`
	StockCount int32     `json:"stock_count"`
}

func dbMenuItemToResponse(m database.MenuItem) menuItemResponse {
	flavors := m.Flavors
	if flavors == nil {
		flavors = []string{}
	}
	return menuItemResponse{
		ID:         m.ID,
		Name:       m.Name,
		Price:      amountString(m.Price),
		Category:   m.Category,
		Flavors:    flavors,
		Available:  m.Available,
		StockCount: m.StockCount,
	}
}

// --- Handlers ---

// List handles GET /menu. Customers see only available items; staff see the
// whole catalog with ?all=1.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	onlyAvailable := true
	if r.URL.Query().Get("all") == "1" {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims != nil && claims.Staff {
			onlyAvailable = false
		}
	}

	items, err := h.store.ListMenuItems(r.Context(), onlyAvailable)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]menuItemResponse, len(items))
	for i, m := range items {
		resp[i] = dbMenuItemToResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /menu/{id}.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	item, err := h.store.GetMenuItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbMenuItemToResponse(item))
}

// Create handles POST /menu.
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	price, ok := h.validate(w, req)
	if !ok {
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}
	var stock int32
	if req.StockCount != nil {
		if *req.StockCount < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stock_count must be >= 0"})
			return
		}
		stock = *req.StockCount
	}

	item, err := h.store.CreateMenuItem(r.Context(), database.CreateMenuItemParams{
		Name:       req.Name,
		Price:      decimalToNumeric(price),
		Category:   req.Category,
		Flavors:    req.Flavors,
		Available:  available,
		StockCount: stock,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dbMenuItemToResponse(item))
}

// Update handles PUT /menu/{id}. Price edits only affect carts and future
// orders; placed orders keep their snapshots.
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	price, ok := h.validate(w, req)
	if !ok {
		return
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}

	item, err := h.store.UpdateMenuItem(r.Context(), database.UpdateMenuItemParams{
		ID:        id,
		Name:      req.Name,
		Price:     decimalToNumeric(price),
		Category:  req.Category,
		Flavors:   req.Flavors,
		Available: available,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbMenuItemToResponse(item))
}

// SetStock handles PATCH /menu/{id}/stock, the staff restock path.
func (h *MenuHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	var req setStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.StockCount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stock_count must be >= 0"})
		return
	}

	item, err := h.store.UpdateMenuItemStock(r.Context(), database.UpdateMenuItemStockParams{
		ID:         id,
		StockCount: req.StockCount,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dbMenuItemToResponse(item))
}

// Delete handles DELETE /menu/{id}.
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	if err := h.store.DeleteMenuItem(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *MenuHandler) validate(w http.ResponseWriter, req menuItemRequest) (decimal.Decimal, bool) {
	if req.Name == "" || req.Category == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and category are required"})
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price must be a positive amount"})
		return decimal.Zero, false
	}
	return price, true
}
