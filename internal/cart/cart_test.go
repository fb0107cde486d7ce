package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kainan-app/api/internal/cart"
	"github.com/kainan-app/api/internal/inventory"
	"github.com/kainan-app/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// mockCatalog serves a fixed menu and doubles as the guard's stock reader.
type mockCatalog struct {
	items map[uuid.UUID]cart.CatalogItem
}

func (m *mockCatalog) MenuItemForCart(ctx context.Context, id uuid.UUID) (cart.CatalogItem, error) {
	item, ok := m.items[id]
	if !ok {
		return cart.CatalogItem{}, errors.New("menu item not found")
	}
	return item, nil
}

func (m *mockCatalog) ReadStock(ctx context.Context, id uuid.UUID) (inventory.StockInfo, error) {
	item, ok := m.items[id]
	if !ok {
		return inventory.StockInfo{}, errors.New("menu item not found")
	}
	return inventory.StockInfo{Name: item.Name, Available: item.Available, StockCount: item.StockCount}, nil
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func newTestCart(t *testing.T, catalog *mockCatalog, lines []cart.Line) *cart.Cart {
	t.Helper()
	engine := pricing.NewEngine(dec(t, "0.12"))
	return cart.New(uuid.New(), lines, catalog, inventory.NewGuard(catalog), engine)
}

func testMenu(t *testing.T) (*mockCatalog, uuid.UUID, uuid.UUID) {
	t.Helper()
	wingsID := uuid.New()
	teaID := uuid.New()
	return &mockCatalog{items: map[uuid.UUID]cart.CatalogItem{
		wingsID: {
			ID: wingsID, Name: "Wings", Price: dec(t, "150.00"),
			Flavors: []string{"Garlic Parmesan", "Spicy Buffalo"},
			Available: true, StockCount: 10,
		},
		teaID: {
			ID: teaID, Name: "Iced Tea", Price: dec(t, "45.00"),
			Available: true, StockCount: 3,
		},
	}}, wingsID, teaID
}

func TestAddItemMergesSameKey(t *testing.T) {
	catalog, wingsID, _ := testMenu(t)
	c := newTestCart(t, catalog, nil)
	ctx := context.Background()

	first, err := c.AddItem(ctx, wingsID, 1, "", "Spicy Buffalo")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !first.Created {
		t.Error("first add should create a line")
	}

	second, err := c.AddItem(ctx, wingsID, 2, "", "Spicy Buffalo")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if second.Created {
		t.Error("second add of same key should merge, not create")
	}
	if second.Line.Quantity != 3 {
		t.Errorf("merged quantity = %d, want 3", second.Line.Quantity)
	}
	if len(c.Lines()) != 1 {
		t.Errorf("lines = %d, want 1", len(c.Lines()))
	}
}

func TestAddItemDifferentFlavorsAreSeparateLines(t *testing.T) {
	catalog, wingsID, _ := testMenu(t)
	c := newTestCart(t, catalog, nil)
	ctx := context.Background()

	if _, err := c.AddItem(ctx, wingsID, 1, "", "Spicy Buffalo"); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := c.AddItem(ctx, wingsID, 1, "", "Garlic Parmesan"); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(c.Lines()) != 2 {
		t.Errorf("lines = %d, want 2", len(c.Lines()))
	}
}

func TestAddItemRejectsUnknownFlavor(t *testing.T) {
	catalog, wingsID, _ := testMenu(t)
	c := newTestCart(t, catalog, nil)

	_, err := c.AddItem(context.Background(), wingsID, 1, "", "Bagoong")
	if !errors.Is(err, cart.ErrUnknownFlavor) {
		t.Errorf("err = %v, want ErrUnknownFlavor", err)
	}
}

func TestAddItemGuardRejectionIsNoOp(t *testing.T) {
	catalog, _, teaID := testMenu(t)
	c := newTestCart(t, catalog, nil)
	ctx := context.Background()

	if _, err := c.AddItem(ctx, teaID, 3, "", ""); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	// Stock is 3; asking for a 4th must fail and leave the cart untouched.
	_, err := c.AddItem(ctx, teaID, 1, "", "")
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if got := c.Lines()[0].Quantity; got != 3 {
		t.Errorf("quantity after rejected add = %d, want 3", got)
	}
}

func TestMutationsRecomputeTotals(t *testing.T) {
	catalog, wingsID, teaID := testMenu(t)
	c := newTestCart(t, catalog, nil)
	ctx := context.Background()

	res, err := c.AddItem(ctx, wingsID, 2, "", "Spicy Buffalo")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if got := res.Totals.Total.StringFixed(2); got != "336.00" {
		t.Errorf("total after add = %s, want 336.00", got)
	}

	res, err = c.AddItem(ctx, teaID, 2, "", "")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	// 300 + 90 = 390 subtotal, 46.80 tax
	if got := res.Totals.Total.StringFixed(2); got != "436.80" {
		t.Errorf("total after second add = %s, want 436.80", got)
	}
	if !res.Totals.Total.Equal(res.Totals.Subtotal.Add(res.Totals.Tax)) {
		t.Error("total != subtotal + tax")
	}
}

func TestSetQuantity(t *testing.T) {
	catalog, wingsID, _ := testMenu(t)
	c := newTestCart(t, catalog, nil)
	ctx := context.Background()

	added, err := c.AddItem(ctx, wingsID, 2, "", "Spicy Buffalo")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	res, err := c.SetQuantity(ctx, added.Line.ID, 5)
	if err != nil {
		t.Fatalf("SetQuantity: %v", err)
	}
	if res.Line.Quantity != 5 {
		t.Errorf("quantity = %d, want 5", res.Line.Quantity)
	}

	// Beyond stock: rejected, prior quantity kept.
	_, err = c.SetQuantity(ctx, added.Line.ID, 11)
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if got := c.Lines()[0].Quantity; got != 5 {
		t.Errorf("quantity after rejection = %d, want 5", got)
	}

	// Zero removes the line.
	res, err = c.SetQuantity(ctx, added.Line.ID, 0)
	if err != nil {
		t.Fatalf("SetQuantity(0): %v", err)
	}
	if !res.Removed {
		t.Error("SetQuantity(0) should remove the line")
	}
	if len(c.Lines()) != 0 {
		t.Errorf("lines = %d, want 0", len(c.Lines()))
	}
}

func TestSetQuantityUnknownLine(t *testing.T) {
	catalog, _, _ := testMenu(t)
	c := newTestCart(t, catalog, nil)

	_, err := c.SetQuantity(context.Background(), uuid.New(), 2)
	if !errors.Is(err, cart.ErrLineNotFound) {
		t.Errorf("err = %v, want ErrLineNotFound", err)
	}
}

func TestUpdateNotesAndRemoveLine(t *testing.T) {
	catalog, wingsID, _ := testMenu(t)
	c := newTestCart(t, catalog, nil)
	ctx := context.Background()

	added, err := c.AddItem(ctx, wingsID, 1, "", "Spicy Buffalo")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	res, err := c.UpdateNotes(ctx, added.Line.ID, "extra sauce")
	if err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	if res.Line.Notes != "extra sauce" {
		t.Errorf("notes = %q, want %q", res.Line.Notes, "extra sauce")
	}

	res, err = c.RemoveLine(ctx, added.Line.ID)
	if err != nil {
		t.Fatalf("RemoveLine: %v", err)
	}
	if !res.Removed || !res.Totals.Total.IsZero() {
		t.Errorf("remove result = %+v, want removed with zero totals", res)
	}
}

func TestQuoteReadsLivePrices(t *testing.T) {
	catalog, wingsID, _ := testMenu(t)
	c := newTestCart(t, catalog, nil)
	ctx := context.Background()

	if _, err := c.AddItem(ctx, wingsID, 2, "", "Spicy Buffalo"); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	// Staff reprice wings; the cart must pick the new price up.
	item := catalog.items[wingsID]
	item.Price = dec(t, "175.00")
	catalog.items[wingsID] = item

	totals, err := c.Quote(ctx)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got := totals.Subtotal.StringFixed(2); got != "350.00" {
		t.Errorf("subtotal = %s, want 350.00 (live price)", got)
	}
}
