package database

import (
	"context"

	"github.com/google/uuid"
)

const createUser = `
INSERT INTO users (email, full_name, hashed_password, is_staff)
VALUES ($1, $2, $3, $4)
RETURNING id, email, full_name, hashed_password, is_staff, created_at, updated_at
`

type CreateUserParams struct {
	Email          string
	FullName       string
	HashedPassword string
	IsStaff        bool
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.Email, arg.FullName, arg.HashedPassword, arg.IsStaff)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.IsStaff, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, email, full_name, hashed_password, is_staff, created_at, updated_at
FROM users WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.IsStaff, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const getUserByID = `
SELECT id, email, full_name, hashed_password, is_staff, created_at, updated_at
FROM users WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.IsStaff, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const setUserStaff = `
UPDATE users SET is_staff = $2, updated_at = now()
WHERE email = $1
RETURNING id, email, full_name, hashed_password, is_staff, created_at, updated_at
`

type SetUserStaffParams struct {
	Email   string
	IsStaff bool
}

// SetUserStaff grants or revokes the staff claim out-of-band (cmd/grantstaff).
func (q *Queries) SetUserStaff(ctx context.Context, arg SetUserStaffParams) (User, error) {
	row := q.db.QueryRow(ctx, setUserStaff, arg.Email, arg.IsStaff)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.IsStaff, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
