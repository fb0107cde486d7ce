package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kainan-app/api/internal/cart"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/enum"
	"github.com/kainan-app/api/internal/inventory"
	"github.com/kainan-app/api/internal/pricing"
	"github.com/shopspring/decimal"
)

const maxPickupCodeRetries = 3

// pickupCodeAlphabet drops 0/O/1/I so codes survive being read over a counter.
const pickupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Errors returned by the order service.
var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = pricing.ErrInvalidQuantity
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the order lifecycle needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	DecrementMenuItemStock(ctx context.Context, arg database.DecrementMenuItemStockParams) (database.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	ClearCartLines(ctx context.Context, userID uuid.UUID) error
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	SetOrderPaymentReference(ctx context.Context, arg database.SetOrderPaymentReferenceParams) (database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	MarkOrderPaymentFailed(ctx context.Context, arg database.MarkOrderPaymentFailedParams) (database.Order, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CheckoutLine is a single cart line going into an order.
type CheckoutLine struct {
	MenuItemID uuid.UUID
	Flavor     string
	Quantity   int32
	Notes      string
}

// CreateOrderRequest is the validated input for checkout.
type CreateOrderRequest struct {
	UserID    uuid.UUID
	UserEmail string
	Notes     string
	Lines     []CheckoutLine
}

// CreateOrderResult is the created order with its item snapshots.
type CreateOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// orderTransitions lists, per current status, the statuses staff may move an
// order into. Terminal statuses have no entry.
var orderTransitions = map[string][]string{
	enum.OrderStatusPending:   {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusCompleted, enum.OrderStatusCancelled},
}

// OrderService owns the order lifecycle: checkout, status transitions, and
// the payment-result hooks the reconciler drives.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore
	newStore NewOrderStore
	engine   pricing.Engine
}

func NewOrderService(pool TxBeginner, store OrderStore, newStore NewOrderStore, engine pricing.Engine) *OrderService {
	return &OrderService{pool: pool, store: store, newStore: newStore, engine: engine}
}

// CreateOrder turns the cart into a PENDING order atomically: every line's
// stock is taken with a conditional decrement inside one transaction, so a
// single short line rolls the whole checkout back. Retries up to
// maxPickupCodeRetries times when two checkouts mint the same pickup code.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	for i, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("line[%d]: %w", i, ErrInvalidQuantity)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxPickupCodeRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isPickupCodeConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isPickupCodeConflict checks if the error is a unique constraint violation
// on the pickup code (pgconn error code 23505).
func isPickupCodeConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_pickup_code_key"
	}
	return false
}

// createOrderTx executes the full checkout in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Take stock line by line. The decrement only matches rows with enough
	// stock, so a no-row result is either a vanished item or a lost race;
	// the rollback on return hands back whatever earlier lines took.
	var (
		priceLines []pricing.Line
		itemParams []database.CreateOrderItemParams
	)
	for i, l := range req.Lines {
		item, err := store.DecrementMenuItemStock(ctx, database.DecrementMenuItemStockParams{
			ID:       l.MenuItemID,
			Quantity: l.Quantity,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, s.stockError(ctx, store, i, l)
			}
			return nil, fmt.Errorf("line[%d]: take stock: %w", i, err)
		}
		if l.Flavor != "" && !flavorOffered(item.Flavors, l.Flavor) {
			return nil, fmt.Errorf("line[%d] %s %q: %w", i, item.Name, l.Flavor, cart.ErrUnknownFlavor)
		}

		priceLines = append(priceLines, pricing.Line{
			Name:      item.Name,
			UnitPrice: numericToDecimal(item.Price),
			Quantity:  l.Quantity,
		})
		itemParams = append(itemParams, database.CreateOrderItemParams{
			MenuItemID: item.ID,
			Name:       item.Name,
			UnitPrice:  item.Price,
			Category:   item.Category,
			Flavor:     l.Flavor,
			Quantity:   l.Quantity,
			Notes:      l.Notes,
		})
	}

	totals, err := s.engine.Quote(priceLines)
	if err != nil {
		return nil, err
	}

	code, err := newPickupCode()
	if err != nil {
		return nil, fmt.Errorf("pickup code: %w", err)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		UserID:     req.UserID,
		UserEmail:  req.UserEmail,
		PickupCode: code,
		Notes:      req.Notes,
		Subtotal:   decimalToNumeric(totals.Subtotal),
		Tax:        decimalToNumeric(totals.Tax),
		Total:      decimalToNumeric(totals.Total),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var items []database.OrderItem
	for _, p := range itemParams {
		p.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := store.ClearCartLines(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Items: items}, nil
}

// stockError turns a failed decrement into the right sentinel: the item may
// be gone entirely, or present but short on stock.
func (s *OrderService) stockError(ctx context.Context, store OrderStore, i int, l CheckoutLine) error {
	item, err := store.GetMenuItem(ctx, l.MenuItemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("line[%d]: menu item %s: %w", i, l.MenuItemID, ErrNotFound)
		}
		return fmt.Errorf("line[%d]: get menu item: %w", i, err)
	}
	return fmt.Errorf("line[%d] %s: %w", i, item.Name, inventory.ErrInsufficientStock)
}

// UpdateStatus moves an order along the lifecycle. Staff may follow any edge
// of the transition matrix; customers may only cancel their own order and
// only while it is still PENDING. The write is conditional on the status the
// decision was made against, so concurrent movers cannot double-apply.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, next string, actor Actor) (database.Order, error) {
	if !validOrderStatus(next) {
		return database.Order{}, fmt.Errorf("unknown status %q: %w", next, ErrInvalidStateTransition)
	}

	cur, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if !actor.Staff && cur.UserID != actor.UserID {
		// Do not reveal other customers' orders.
		return database.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if !transitionAllowed(orderTransitions, cur.Status, next) {
		return database.Order{}, fmt.Errorf("%s -> %s: %w", cur.Status, next, ErrInvalidStateTransition)
	}
	if !actor.Staff && !(cur.Status == enum.OrderStatusPending && next == enum.OrderStatusCancelled) {
		return database.Order{}, fmt.Errorf("customers may only cancel a pending order: %w", ErrUnauthorized)
	}

	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         id,
		Status:     next,
		FromStatus: cur.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, fmt.Errorf("order %s changed concurrently: %w", id, ErrInvalidStateTransition)
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

// PaymentDue reports the amount in centavos a new payment for this order
// should charge. Cancelled and already-paid orders are not chargeable.
func (s *OrderService) PaymentDue(ctx context.Context, id uuid.UUID) (int64, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("get order: %w", err)
	}
	if o.PaymentStatus == enum.PaymentStatusPaid {
		return 0, fmt.Errorf("order already paid: %w", ErrInvalidStateTransition)
	}
	if o.Status == enum.OrderStatusCancelled {
		return 0, fmt.Errorf("order is cancelled: %w", ErrInvalidStateTransition)
	}
	return centavos(o.PaymentAmount), nil
}

// PaymentAmount reports the frozen charge amount in centavos regardless of
// lifecycle state. The reconciler verifies gateway reports against it.
func (s *OrderService) PaymentAmount(ctx context.Context, id uuid.UUID) (int64, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("get order: %w", err)
	}
	return centavos(o.PaymentAmount), nil
}

// RecordPaymentReference stores the gateway handle minted for this order.
// It never touches status or payment_status.
func (s *OrderService) RecordPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	_, err := s.store.SetOrderPaymentReference(ctx, database.SetOrderPaymentReferenceParams{
		ID:        id,
		Reference: reference,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the order is gone or it settled while the intent
			// was being created.
			if _, getErr := s.store.GetOrder(ctx, id); errors.Is(getErr, pgx.ErrNoRows) {
				return fmt.Errorf("order %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("order already paid: %w", ErrInvalidStateTransition)
		}
		return fmt.Errorf("set payment reference: %w", err)
	}
	return nil
}

// ApplyPaymentResult settles a gateway result against the order. It is
// idempotent: duplicate deliveries and late failures after a success return
// changed=false without touching the row. A succeeded result also advances a
// PENDING order into PREPARING in the same statement.
func (s *OrderService) ApplyPaymentResult(ctx context.Context, id uuid.UUID, reference, outcome string) (bool, error) {
	switch outcome {
	case enum.PaymentOutcomeSucceeded:
		_, err := s.store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{
			ID:        id,
			Reference: reference,
			PaidAt:    pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
		})
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("mark order paid: %w", err)
		}
	case enum.PaymentOutcomeFailed:
		_, err := s.store.MarkOrderPaymentFailed(ctx, database.MarkOrderPaymentFailedParams{
			ID:        id,
			Reference: reference,
		})
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("mark order payment failed: %w", err)
		}
	default:
		return false, fmt.Errorf("unknown payment outcome %q", outcome)
	}

	// No row matched the guard: the result was already applied, or the
	// order does not exist at all.
	if _, err := s.store.GetOrder(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return false, fmt.Errorf("get order: %w", err)
	}
	return false, nil
}

// --- Helpers ---

func validOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusPreparing, enum.OrderStatusReady,
		enum.OrderStatusCompleted, enum.OrderStatusCancelled:
		return true
	}
	return false
}

func transitionAllowed(matrix map[string][]string, from, to string) bool {
	for _, next := range matrix[from] {
		if next == to {
			return true
		}
	}
	return false
}

func flavorOffered(flavors []string, flavor string) bool {
	for _, f := range flavors {
		if f == flavor {
			return true
		}
	}
	return false
}

func newPickupCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, len(buf))
	for i, b := range buf {
		code[i] = pickupCodeAlphabet[int(b)%len(pickupCodeAlphabet)]
	}
	return "KN-" + string(code), nil
}

func centavos(n pgtype.Numeric) int64 {
	return numericToDecimal(n).Shift(2).IntPart()
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
