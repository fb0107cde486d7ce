package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, user_id, user_email, pickup_code, status, notes,
subtotal, tax, total, payment_status, payment_reference, payment_amount, paid_at,
created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.UserEmail, &o.PickupCode, &o.Status, &o.Notes,
		&o.Subtotal, &o.Tax, &o.Total, &o.PaymentStatus, &o.PaymentReference,
		&o.PaymentAmount, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const createOrder = `
INSERT INTO orders (user_id, user_email, pickup_code, notes, subtotal, tax, total, payment_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	UserID     uuid.UUID
	UserEmail  string
	PickupCode string
	Notes      string
	Subtotal   pgtype.Numeric
	Tax        pgtype.Numeric
	Total      pgtype.Numeric
}

// CreateOrder inserts a PENDING/UNPAID order. payment_amount starts equal to
// the order total; the reconciler later verifies the gateway amount against it.
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.UserID, arg.UserEmail, arg.PickupCode, arg.Notes, arg.Subtotal, arg.Tax, arg.Total)
	return scanOrder(row)
}

const createOrderItem = `
INSERT INTO order_items (order_id, menu_item_id, name, unit_price, category, flavor, quantity, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, order_id, menu_item_id, name, unit_price, category, flavor, quantity, notes
`

type CreateOrderItemParams struct {
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Name       string
	UnitPrice  pgtype.Numeric
	Category   string
	Flavor     string
	Quantity   int32
	Notes      string
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.MenuItemID, arg.Name, arg.UnitPrice, arg.Category,
		arg.Flavor, arg.Quantity, arg.Notes)
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice,
		&it.Category, &it.Flavor, &it.Quantity, &it.Notes)
	return it, err
}

const getOrder = `
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const listOrders = `
SELECT ` + orderColumns + ` FROM orders
WHERE ($1::text = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListOrdersParams struct {
	Status string
	Limit  int32
	Offset int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const listOrdersByUser = `
SELECT ` + orderColumns + ` FROM orders
WHERE user_id = $1 AND ($2::text = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

type ListOrdersByUserParams struct {
	UserID uuid.UUID
	Status string
	Limit  int32
	Offset int32
}

func (q *Queries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, arg.UserID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const listOrderItemsByOrder = `
SELECT id, order_id, menu_item_id, name, unit_price, category, flavor, quantity, notes
FROM order_items WHERE order_id = $1
ORDER BY name, flavor
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice,
			&it.Category, &it.Flavor, &it.Quantity, &it.Notes); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const updateOrderStatus = `
UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	FromStatus string
}

// UpdateOrderStatus commits a transition only if the order is still in
// FromStatus. pgx.ErrNoRows means the caller lost a race (or a bad id).
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.FromStatus))
}

const setOrderPaymentReference = `
UPDATE orders SET payment_reference = $2, updated_at = now()
WHERE id = $1 AND payment_status <> 'PAID'
RETURNING ` + orderColumns

type SetOrderPaymentReferenceParams struct {
	ID        uuid.UUID
	Reference string
}

// SetOrderPaymentReference records the gateway handle minted by beginPayment.
// It deliberately leaves status and payment_status untouched.
func (q *Queries) SetOrderPaymentReference(ctx context.Context, arg SetOrderPaymentReferenceParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setOrderPaymentReference, arg.ID, arg.Reference))
}

const markOrderPaid = `
UPDATE orders SET
    payment_status = 'PAID',
    payment_reference = $2,
    paid_at = $3,
    status = CASE WHEN status = 'PENDING' THEN 'PREPARING' ELSE status END,
    updated_at = now()
WHERE id = $1 AND payment_status <> 'PAID'
RETURNING ` + orderColumns

type MarkOrderPaidParams struct {
	ID        uuid.UUID
	Reference string
	PaidAt    pgtype.Timestamptz
}

// MarkOrderPaid applies a succeeded payment result exactly once: the
// payment_status guard makes a duplicate delivery a no-row no-op, and the
// CASE advances PENDING orders into PREPARING in the same statement.
func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPaid, arg.ID, arg.Reference, arg.PaidAt))
}

const markOrderPaymentFailed = `
UPDATE orders SET payment_status = 'FAILED', payment_reference = $2, updated_at = now()
WHERE id = $1 AND payment_status = 'UNPAID'
RETURNING ` + orderColumns

type MarkOrderPaymentFailedParams struct {
	ID        uuid.UUID
	Reference string
}

// MarkOrderPaymentFailed records a failed result. PAID is sticky: a late
// failure after a genuine success updates nothing.
func (q *Queries) MarkOrderPaymentFailed(ctx context.Context, arg MarkOrderPaymentFailedParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPaymentFailed, arg.ID, arg.Reference))
}
