package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kainan-app/api/internal/cart"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/inventory"
	"github.com/kainan-app/api/internal/middleware"
	"github.com/kainan-app/api/internal/pricing"
	"github.com/kainan-app/api/internal/service"
)

// CartStore defines the database methods needed by cart handlers.
type CartStore interface {
	ListCartLinesByUser(ctx context.Context, userID uuid.UUID) ([]database.CartLine, error)
	CreateCartLine(ctx context.Context, arg database.CreateCartLineParams) (database.CartLine, error)
	UpdateCartLineQuantity(ctx context.Context, arg database.UpdateCartLineQuantityParams) (database.CartLine, error)
	UpdateCartLineNotes(ctx context.Context, arg database.UpdateCartLineNotesParams) (database.CartLine, error)
	DeleteCartLine(ctx context.Context, arg database.DeleteCartLineParams) error
	ClearCartLines(ctx context.Context, userID uuid.UUID) error
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
}

// CartHandler handles cart endpoints. The cart aggregate does the thinking;
// the handler loads it from rows, runs one mutation, and mirrors the outcome
// back to the table.
type CartHandler struct {
	store  CartStore
	engine pricing.Engine
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(store CartStore, engine pricing.Engine) *CartHandler {
	return &CartHandler{store: store, engine: engine}
}

// RegisterRoutes registers cart endpoints on the given Chi router.
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Get("/cart", h.Get)
	r.Post("/cart/lines", h.AddLine)
	r.Patch("/cart/lines/{id}", h.UpdateLine)
	r.Delete("/cart/lines/{id}", h.RemoveLine)
	r.Delete("/cart", h.Clear)
}

// --- Request / Response types ---

type addLineRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Flavor     string `json:"flavor"`
	Quantity   int32  `json:"quantity"`
	Notes      string `json:"notes"`
}

type updateLineRequest struct {
	Quantity *int32  `json:"quantity"`
	Notes    *string `json:"notes"`
}

type cartLineResponse struct {
	ID         uuid.UUID `json:"id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Flavor     string    `json:"flavor,omitempty"`
	Quantity   int32     `json:"quantity"`
	Notes      string    `json:"notes,omitempty"`
}

type cartResponse struct {
	Lines    []cartLineResponse `json:"lines"`
	Subtotal string             `json:"subtotal"`
	Tax      string             `json:"tax"`
	Total    string             `json:"total"`
}

// --- Catalog adapter ---

// storeCatalog adapts CartStore to the cart.Catalog and inventory.StockReader
// interfaces the aggregate consumes.
type storeCatalog struct {
	store CartStore
}

func (c storeCatalog) MenuItemForCart(ctx context.Context, id uuid.UUID) (cart.CatalogItem, error) {
	m, err := c.store.GetMenuItem(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.CatalogItem{}, fmt.Errorf("menu item %s: %w", id, service.ErrNotFound)
		}
		return cart.CatalogItem{}, fmt.Errorf("get menu item: %w", err)
	}
	return cart.CatalogItem{
		ID:         m.ID,
		Name:       m.Name,
		Price:      numericToDecimal(m.Price),
		Flavors:    m.Flavors,
		Available:  m.Available,
		StockCount: m.StockCount,
	}, nil
}

func (c storeCatalog) ReadStock(ctx context.Context, menuItemID uuid.UUID) (inventory.StockInfo, error) {
	m, err := c.store.GetMenuItem(ctx, menuItemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.StockInfo{}, fmt.Errorf("menu item %s: %w", menuItemID, service.ErrNotFound)
		}
		return inventory.StockInfo{}, fmt.Errorf("get menu item: %w", err)
	}
	return inventory.StockInfo{
		Name:       m.Name,
		Available:  m.Available,
		StockCount: m.StockCount,
	}, nil
}

// loadCart builds the aggregate from the user's rows.
func (h *CartHandler) loadCart(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	rows, err := h.store.ListCartLinesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}

	lines := make([]cart.Line, len(rows))
	for i, row := range rows {
		lines[i] = cart.Line{
			ID:         row.ID,
			MenuItemID: row.MenuItemID,
			Flavor:     row.Flavor,
			Quantity:   row.Quantity,
			Notes:      row.Notes,
		}
	}

	catalog := storeCatalog{store: h.store}
	guard := inventory.NewGuard(catalog)
	return cart.New(userID, lines, catalog, guard, h.engine), nil
}

// --- Handlers ---

// Get handles GET /cart: the current lines priced against the live menu.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	c, err := h.loadCart(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	totals, err := c.Quote(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cartToResponse(c.Lines(), totals))
}

// AddLine handles POST /cart/lines. Adding the same (item, flavor) twice
// merges quantities instead of growing a second line.
func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	menuItemID, err := uuid.Parse(req.MenuItemID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu_item_id"})
		return
	}

	c, err := h.loadCart(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	res, err := c.AddItem(r.Context(), menuItemID, req.Quantity, req.Notes, req.Flavor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	line := res.Line
	if res.Created {
		row, err := h.store.CreateCartLine(r.Context(), database.CreateCartLineParams{
			UserID:     claims.UserID,
			MenuItemID: line.MenuItemID,
			Flavor:     line.Flavor,
			Quantity:   line.Quantity,
			Notes:      line.Notes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		line.ID = row.ID
	} else {
		if _, err := h.store.UpdateCartLineQuantity(r.Context(), database.UpdateCartLineQuantityParams{
			ID:       line.ID,
			UserID:   claims.UserID,
			Quantity: line.Quantity,
		}); err != nil {
			writeServiceError(w, err)
			return
		}
		if line.Notes != "" {
			if _, err := h.store.UpdateCartLineNotes(r.Context(), database.UpdateCartLineNotesParams{
				ID:     line.ID,
				UserID: claims.UserID,
				Notes:  line.Notes,
			}); err != nil {
				writeServiceError(w, err)
				return
			}
		}
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, lineWithTotalsResponse(line, res))
}

// UpdateLine handles PATCH /cart/lines/{id}: quantity and/or notes. Setting
// quantity to zero removes the line.
func (h *CartHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	lineID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	var req updateLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Quantity == nil && req.Notes == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity or notes is required"})
		return
	}

	c, err := h.loadCart(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var res cart.Result
	if req.Quantity != nil {
		res, err = c.SetQuantity(r.Context(), lineID, *req.Quantity)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if res.Removed {
			if err := h.store.DeleteCartLine(r.Context(), database.DeleteCartLineParams{
				ID:     lineID,
				UserID: claims.UserID,
			}); err != nil {
				writeServiceError(w, err)
				return
			}
		} else {
			if _, err := h.store.UpdateCartLineQuantity(r.Context(), database.UpdateCartLineQuantityParams{
				ID:       lineID,
				UserID:   claims.UserID,
				Quantity: res.Line.Quantity,
			}); err != nil {
				writeServiceError(w, err)
				return
			}
		}
	}
	if req.Notes != nil && !res.Removed {
		res, err = c.UpdateNotes(r.Context(), lineID, *req.Notes)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if _, err := h.store.UpdateCartLineNotes(r.Context(), database.UpdateCartLineNotesParams{
			ID:     lineID,
			UserID: claims.UserID,
			Notes:  *req.Notes,
		}); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, lineWithTotalsResponse(res.Line, res))
}

// RemoveLine handles DELETE /cart/lines/{id}.
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	lineID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	c, err := h.loadCart(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	res, err := c.RemoveLine(r.Context(), lineID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.store.DeleteCartLine(r.Context(), database.DeleteCartLineParams{
		ID:     lineID,
		UserID: claims.UserID,
	}); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"subtotal": res.Totals.Subtotal.StringFixed(2),
		"tax":      res.Totals.Tax.StringFixed(2),
		"total":    res.Totals.Total.StringFixed(2),
	})
}

// Clear handles DELETE /cart.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	if err := h.store.ClearCartLines(r.Context(), claims.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func cartToResponse(lines []cart.Line, totals pricing.Totals) cartResponse {
	resp := cartResponse{
		Lines:    make([]cartLineResponse, len(lines)),
		Subtotal: totals.Subtotal.StringFixed(2),
		Tax:      totals.Tax.StringFixed(2),
		Total:    totals.Total.StringFixed(2),
	}
	for i, l := range lines {
		resp.Lines[i] = cartLineResponse{
			ID:         l.ID,
			MenuItemID: l.MenuItemID,
			Flavor:     l.Flavor,
			Quantity:   l.Quantity,
			Notes:      l.Notes,
		}
	}
	return resp
}

func lineWithTotalsResponse(line cart.Line, res cart.Result) map[string]interface{} {
	return map[string]interface{}{
		"line": cartLineResponse{
			ID:         line.ID,
			MenuItemID: line.MenuItemID,
			Flavor:     line.Flavor,
			Quantity:   line.Quantity,
			Notes:      line.Notes,
		},
		"subtotal": res.Totals.Subtotal.StringFixed(2),
		"tax":      res.Totals.Tax.StringFixed(2),
		"total":    res.Totals.Total.StringFixed(2),
	}
}
