// Package cart is the per-user staging area for an order. A Cart is built
// fresh for each request from the caller's persisted lines; it is not
// authoritative inventory; stock is only committed when an order is created.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kainan-app/api/internal/pricing"
	"github.com/shopspring/decimal"
)

var (
	ErrLineNotFound  = errors.New("cart line not found")
	ErrUnknownFlavor = errors.New("flavor not offered for this item")
)

// CatalogItem is the live menu view the cart prices against.
type CatalogItem struct {
	ID         uuid.UUID
	Name       string
	Price      decimal.Decimal
	Flavors    []string
	Available  bool
	StockCount int32
}

// Catalog reads live menu items. Satisfied by the handler's store adapter.
type Catalog interface {
	MenuItemForCart(ctx context.Context, id uuid.UUID) (CatalogItem, error)
}

// Reserver is the advisory stock guard. Satisfied by *inventory.Guard.
type Reserver interface {
	Reserve(ctx context.Context, menuItemID uuid.UUID, wanted, held int32) error
}

// Line is one cart entry, keyed by (MenuItemID, Flavor).
type Line struct {
	ID         uuid.UUID
	MenuItemID uuid.UUID
	Flavor     string
	Quantity   int32
	Notes      string
}

// Result reports the outcome of a mutation together with the recomputed
// totals; every mutation reprices the cart.
type Result struct {
	Line    Line
	Created bool
	Removed bool
	Totals  pricing.Totals
}

type Cart struct {
	userID  uuid.UUID
	lines   []Line
	catalog Catalog
	guard   Reserver
	engine  pricing.Engine
}

// New builds a cart for one user from previously persisted lines.
func New(userID uuid.UUID, lines []Line, catalog Catalog, guard Reserver, engine pricing.Engine) *Cart {
	c := &Cart{
		userID:  userID,
		catalog: catalog,
		guard:   guard,
		engine:  engine,
	}
	c.lines = append(c.lines, lines...)
	return c
}

func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// AddItem merges into an existing (item, flavor) line or appends a new one.
// The guard sees the would-be total for the key; on rejection the cart is
// left untouched.
func (c *Cart) AddItem(ctx context.Context, menuItemID uuid.UUID, qty int32, notes, flavor string) (Result, error) {
	if qty <= 0 {
		return Result{}, fmt.Errorf("add %s: %w", menuItemID, pricing.ErrInvalidQuantity)
	}

	item, err := c.catalog.MenuItemForCart(ctx, menuItemID)
	if err != nil {
		return Result{}, err
	}
	if flavor != "" && !hasFlavor(item.Flavors, flavor) {
		return Result{}, fmt.Errorf("%s %q: %w", item.Name, flavor, ErrUnknownFlavor)
	}

	held := int32(0)
	idx := -1
	for i, l := range c.lines {
		if l.MenuItemID == menuItemID && l.Flavor == flavor {
			held = l.Quantity
			idx = i
			break
		}
	}

	if err := c.guard.Reserve(ctx, menuItemID, held+qty, held); err != nil {
		return Result{}, err
	}

	if idx >= 0 {
		c.lines[idx].Quantity += qty
		if notes != "" {
			c.lines[idx].Notes = notes
		}
		return c.result(ctx, c.lines[idx], false, false)
	}

	line := Line{
		ID:         uuid.New(),
		MenuItemID: menuItemID,
		Flavor:     flavor,
		Quantity:   qty,
		Notes:      notes,
	}
	c.lines = append(c.lines, line)
	return c.result(ctx, line, true, false)
}

// SetQuantity updates a line in place; a quantity of zero or less removes the
// line. A guard rejection leaves the prior quantity unchanged.
func (c *Cart) SetQuantity(ctx context.Context, lineID uuid.UUID, qty int32) (Result, error) {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return Result{}, ErrLineNotFound
	}

	if qty <= 0 {
		return c.remove(ctx, idx)
	}

	held := c.lines[idx].Quantity
	if err := c.guard.Reserve(ctx, c.lines[idx].MenuItemID, qty, held); err != nil {
		return Result{}, err
	}

	c.lines[idx].Quantity = qty
	return c.result(ctx, c.lines[idx], false, false)
}

func (c *Cart) UpdateNotes(ctx context.Context, lineID uuid.UUID, notes string) (Result, error) {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return Result{}, ErrLineNotFound
	}
	c.lines[idx].Notes = notes
	return c.result(ctx, c.lines[idx], false, false)
}

func (c *Cart) RemoveLine(ctx context.Context, lineID uuid.UUID) (Result, error) {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return Result{}, ErrLineNotFound
	}
	return c.remove(ctx, idx)
}

func (c *Cart) Clear() {
	c.lines = nil
}

// Quote reprices the cart against the live catalog.
func (c *Cart) Quote(ctx context.Context) (pricing.Totals, error) {
	lines := make([]pricing.Line, len(c.lines))
	for i, l := range c.lines {
		item, err := c.catalog.MenuItemForCart(ctx, l.MenuItemID)
		if err != nil {
			return pricing.Totals{}, fmt.Errorf("price line %s: %w", l.ID, err)
		}
		lines[i] = pricing.Line{
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  l.Quantity,
		}
	}
	return c.engine.Quote(lines)
}

func (c *Cart) indexOf(lineID uuid.UUID) int {
	for i, l := range c.lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) remove(ctx context.Context, idx int) (Result, error) {
	line := c.lines[idx]
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	res, err := c.result(ctx, line, false, true)
	return res, err
}

func (c *Cart) result(ctx context.Context, line Line, created, removed bool) (Result, error) {
	// Totals are part of every mutation's outcome, but the mutation itself
	// has already been applied; a pricing failure here is a read failure.
	totals, err := c.Quote(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Line: line, Created: created, Removed: removed, Totals: totals}, nil
}

func hasFlavor(flavors []string, flavor string) bool {
	for _, f := range flavors {
		if f == flavor {
			return true
		}
	}
	return false
}
