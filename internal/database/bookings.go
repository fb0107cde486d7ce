package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const bookingColumns = `id, user_id, customer_name, booked_for, party_size, special_request,
status, payment_status, payment_reference, payment_amount, paid_at, created_at, updated_at`

func scanBooking(row interface{ Scan(dest ...any) error }) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.UserID, &b.CustomerName, &b.BookedFor, &b.PartySize,
		&b.SpecialRequest, &b.Status, &b.PaymentStatus, &b.PaymentReference,
		&b.PaymentAmount, &b.PaidAt, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

const createBooking = `
INSERT INTO bookings (user_id, customer_name, booked_for, party_size, special_request, payment_amount)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + bookingColumns

type CreateBookingParams struct {
	UserID         uuid.UUID
	CustomerName   string
	BookedFor      time.Time
	PartySize      int32
	SpecialRequest string
	PaymentAmount  pgtype.Numeric
}

// CreateBooking inserts a PENDING_RESERVATION/UNPAID booking. payment_amount
// is the fixed reservation fee frozen at creation time.
func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (Booking, error) {
	row := q.db.QueryRow(ctx, createBooking,
		arg.UserID, arg.CustomerName, arg.BookedFor, arg.PartySize,
		arg.SpecialRequest, arg.PaymentAmount)
	return scanBooking(row)
}

const getBooking = `
SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1
`

func (q *Queries) GetBooking(ctx context.Context, id uuid.UUID) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, getBooking, id))
}

const listBookings = `
SELECT ` + bookingColumns + ` FROM bookings
WHERE ($1::text = '' OR status = $1)
ORDER BY booked_for DESC
LIMIT $2 OFFSET $3
`

type ListBookingsParams struct {
	Status string
	Limit  int32
	Offset int32
}

func (q *Queries) ListBookings(ctx context.Context, arg ListBookingsParams) ([]Booking, error) {
	rows, err := q.db.Query(ctx, listBookings, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

const listBookingsByUser = `
SELECT ` + bookingColumns + ` FROM bookings
WHERE user_id = $1 AND ($2::text = '' OR status = $2)
ORDER BY booked_for DESC
LIMIT $3 OFFSET $4
`

type ListBookingsByUserParams struct {
	UserID uuid.UUID
	Status string
	Limit  int32
	Offset int32
}

func (q *Queries) ListBookingsByUser(ctx context.Context, arg ListBookingsByUserParams) ([]Booking, error) {
	rows, err := q.db.Query(ctx, listBookingsByUser, arg.UserID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Booking, error) {
	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

const updateBookingStatus = `
UPDATE bookings SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + bookingColumns

type UpdateBookingStatusParams struct {
	ID         uuid.UUID
	Status     string
	FromStatus string
}

// UpdateBookingStatus commits a transition only if the booking is still in
// FromStatus; see UpdateOrderStatus.
func (q *Queries) UpdateBookingStatus(ctx context.Context, arg UpdateBookingStatusParams) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, updateBookingStatus, arg.ID, arg.Status, arg.FromStatus))
}

const setBookingPaymentReference = `
UPDATE bookings SET payment_reference = $2, updated_at = now()
WHERE id = $1 AND payment_status <> 'PAID'
RETURNING ` + bookingColumns

type SetBookingPaymentReferenceParams struct {
	ID        uuid.UUID
	Reference string
}

func (q *Queries) SetBookingPaymentReference(ctx context.Context, arg SetBookingPaymentReferenceParams) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, setBookingPaymentReference, arg.ID, arg.Reference))
}

const markBookingPaid = `
UPDATE bookings SET
    payment_status = 'PAID',
    payment_reference = $2,
    paid_at = $3,
    status = CASE WHEN status = 'UNPAID_RESERVATION' THEN 'PAID_RESERVATION' ELSE status END,
    updated_at = now()
WHERE id = $1 AND payment_status <> 'PAID'
RETURNING ` + bookingColumns

type MarkBookingPaidParams struct {
	ID        uuid.UUID
	Reference string
	PaidAt    pgtype.Timestamptz
}

func (q *Queries) MarkBookingPaid(ctx context.Context, arg MarkBookingPaidParams) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, markBookingPaid, arg.ID, arg.Reference, arg.PaidAt))
}

const markBookingPaymentFailed = `
UPDATE bookings SET payment_status = 'FAILED', payment_reference = $2, updated_at = now()
WHERE id = $1 AND payment_status = 'UNPAID'
RETURNING ` + bookingColumns

type MarkBookingPaymentFailedParams struct {
	ID        uuid.UUID
	Reference string
}

func (q *Queries) MarkBookingPaymentFailed(ctx context.Context, arg MarkBookingPaymentFailedParams) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, markBookingPaymentFailed, arg.ID, arg.Reference))
}

const sweepPastBookings = `
UPDATE bookings SET status = 'PAST_RESERVATION', updated_at = now()
WHERE booked_for <= $1 AND status IN ('PAID_RESERVATION', 'CANCELLED_RESERVATION')
RETURNING ` + bookingColumns

// SweepPastBookings retires elapsed bookings. The status predicate makes it
// idempotent: a second run over the same data matches nothing.
func (q *Queries) SweepPastBookings(ctx context.Context, now time.Time) ([]Booking, error) {
	rows, err := q.db.Query(ctx, sweepPastBookings, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}
