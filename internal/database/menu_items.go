package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, name, price, category, flavors, available, stock_count, created_at, updated_at`

func scanMenuItem(row interface{ Scan(dest ...any) error }) (MenuItem, error) {
	var m MenuItem
	err := row.Scan(&m.ID, &m.Name, &m.Price, &m.Category, &m.Flavors,
		&m.Available, &m.StockCount, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

const createMenuItem = `
INSERT INTO menu_items (name, price, category, flavors, available, stock_count)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + menuItemColumns

type CreateMenuItemParams struct {
	Name       string
	Price      pgtype.Numeric
	Category   string
	Flavors    []string
	Available  bool
	StockCount int32
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem,
		arg.Name, arg.Price, arg.Category, arg.Flavors, arg.Available, arg.StockCount)
	return scanMenuItem(row)
}

const getMenuItem = `
SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, getMenuItem, id))
}

const listMenuItems = `
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE ($1::bool = false OR available)
ORDER BY category, name
`

// ListMenuItems returns the catalog; onlyAvailable hides items staff have
// taken off the menu (out-of-stock items still list so the UI can say so).
func (q *Queries) ListMenuItems(ctx context.Context, onlyAvailable bool) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems, onlyAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const updateMenuItem = `
UPDATE menu_items
SET name = $2, price = $3, category = $4, flavors = $5, available = $6, updated_at = now()
WHERE id = $1
RETURNING ` + menuItemColumns

type UpdateMenuItemParams struct {
	ID        uuid.UUID
	Name      string
	Price     pgtype.Numeric
	Category  string
	Flavors   []string
	Available bool
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItem,
		arg.ID, arg.Name, arg.Price, arg.Category, arg.Flavors, arg.Available)
	return scanMenuItem(row)
}

const updateMenuItemStock = `
UPDATE menu_items SET stock_count = $2, updated_at = now()
WHERE id = $1
RETURNING ` + menuItemColumns

type UpdateMenuItemStockParams struct {
	ID         uuid.UUID
	StockCount int32
}

// UpdateMenuItemStock is the staff restock path; the checkout path never
// uses it (see DecrementMenuItemStock).
func (q *Queries) UpdateMenuItemStock(ctx context.Context, arg UpdateMenuItemStockParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, updateMenuItemStock, arg.ID, arg.StockCount))
}

const decrementMenuItemStock = `
UPDATE menu_items SET stock_count = stock_count - $2, updated_at = now()
WHERE id = $1 AND available AND stock_count >= $2
RETURNING ` + menuItemColumns

type DecrementMenuItemStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

// DecrementMenuItemStock atomically takes stock at checkout. No rows means
// the item is gone, unavailable, or another checkout took the last units.
func (q *Queries) DecrementMenuItemStock(ctx context.Context, arg DecrementMenuItemStockParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, decrementMenuItemStock, arg.ID, arg.Quantity))
}

const deleteMenuItem = `
DELETE FROM menu_items WHERE id = $1
`

func (q *Queries) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deleteMenuItem, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
