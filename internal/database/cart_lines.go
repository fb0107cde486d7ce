package database

import (
	"context"

	"github.com/google/uuid"
)

const cartLineColumns = `id, user_id, menu_item_id, flavor, quantity, notes, created_at`

func scanCartLine(row interface{ Scan(dest ...any) error }) (CartLine, error) {
	var l CartLine
	err := row.Scan(&l.ID, &l.UserID, &l.MenuItemID, &l.Flavor, &l.Quantity, &l.Notes, &l.CreatedAt)
	return l, err
}

const listCartLinesByUser = `
SELECT ` + cartLineColumns + ` FROM cart_lines
WHERE user_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListCartLinesByUser(ctx context.Context, userID uuid.UUID) ([]CartLine, error) {
	rows, err := q.db.Query(ctx, listCartLinesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []CartLine
	for rows.Next() {
		l, err := scanCartLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

const createCartLine = `
INSERT INTO cart_lines (user_id, menu_item_id, flavor, quantity, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + cartLineColumns

type CreateCartLineParams struct {
	UserID     uuid.UUID
	MenuItemID uuid.UUID
	Flavor     string
	Quantity   int32
	Notes      string
}

func (q *Queries) CreateCartLine(ctx context.Context, arg CreateCartLineParams) (CartLine, error) {
	row := q.db.QueryRow(ctx, createCartLine,
		arg.UserID, arg.MenuItemID, arg.Flavor, arg.Quantity, arg.Notes)
	return scanCartLine(row)
}

const updateCartLineQuantity = `
UPDATE cart_lines SET quantity = $3
WHERE id = $1 AND user_id = $2
RETURNING ` + cartLineColumns

type UpdateCartLineQuantityParams struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Quantity int32
}

func (q *Queries) UpdateCartLineQuantity(ctx context.Context, arg UpdateCartLineQuantityParams) (CartLine, error) {
	return scanCartLine(q.db.QueryRow(ctx, updateCartLineQuantity, arg.ID, arg.UserID, arg.Quantity))
}

const updateCartLineNotes = `
UPDATE cart_lines SET notes = $3
WHERE id = $1 AND user_id = $2
RETURNING ` + cartLineColumns

type UpdateCartLineNotesParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Notes  string
}

func (q *Queries) UpdateCartLineNotes(ctx context.Context, arg UpdateCartLineNotesParams) (CartLine, error) {
	return scanCartLine(q.db.QueryRow(ctx, updateCartLineNotes, arg.ID, arg.UserID, arg.Notes))
}

const deleteCartLine = `
DELETE FROM cart_lines WHERE id = $1 AND user_id = $2
`

type DeleteCartLineParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) DeleteCartLine(ctx context.Context, arg DeleteCartLineParams) error {
	_, err := q.db.Exec(ctx, deleteCartLine, arg.ID, arg.UserID)
	return err
}

const clearCartLines = `
DELETE FROM cart_lines WHERE user_id = $1
`

func (q *Queries) ClearCartLines(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, clearCartLines, userID)
	return err
}
