// Package inventory is the advisory stock guard used while a cart is being
// built. Cart holds are never subtracted from the shared stock counter, so
// two shoppers can both be told the last unit is available; the authoritative
// check is the conditional decrement at checkout (service.OrderService).
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// StockInfo is the live catalog view the guard compares against.
type StockInfo struct {
	Name       string
	Available  bool
	StockCount int32
}

// StockReader reads current stock. Satisfied by *database.Queries via
// GetMenuItem in practice; kept narrow for tests.
type StockReader interface {
	ReadStock(ctx context.Context, menuItemID uuid.UUID) (StockInfo, error)
}

type Guard struct {
	stock StockReader
}

func NewGuard(stock StockReader) *Guard {
	return &Guard{stock: stock}
}

// Reserve checks whether a cart may hold wanted units of an item, given that
// it already holds held units. Only the marginal amount (wanted - held) is
// newly requested; the cart-side total may never exceed live catalog stock.
// The answer is advisory: callers must still expect ErrInsufficientStock at
// checkout.
func (g *Guard) Reserve(ctx context.Context, menuItemID uuid.UUID, wanted, held int32) error {
	if wanted <= held {
		// Nothing new requested; shrinking a hold always succeeds.
		return nil
	}

	info, err := g.stock.ReadStock(ctx, menuItemID)
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}

	// An unavailable item reserves as zero stock.
	if !info.Available || wanted > info.StockCount {
		return fmt.Errorf("%s: %w", info.Name, ErrInsufficientStock)
	}
	return nil
}
