package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/enum"
	"github.com/shopspring/decimal"
)

const (
	minPartySize = 1
	maxPartySize = 20
)

// Errors returned by the booking service.
var (
	ErrPastBookingDate  = errors.New("booked_for must be in the future")
	ErrInvalidPartySize = fmt.Errorf("party_size must be between %d and %d", minPartySize, maxPartySize)
	ErrEmptyCustomer    = errors.New("customer_name is required")
)

// BookingStore defines the DB methods the booking lifecycle needs.
// Satisfied by *database.Queries.
type BookingStore interface {
	CreateBooking(ctx context.Context, arg database.CreateBookingParams) (database.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (database.Booking, error)
	UpdateBookingStatus(ctx context.Context, arg database.UpdateBookingStatusParams) (database.Booking, error)
	SetBookingPaymentReference(ctx context.Context, arg database.SetBookingPaymentReferenceParams) (database.Booking, error)
	MarkBookingPaid(ctx context.Context, arg database.MarkBookingPaidParams) (database.Booking, error)
	MarkBookingPaymentFailed(ctx context.Context, arg database.MarkBookingPaymentFailedParams) (database.Booking, error)
	SweepPastBookings(ctx context.Context, now time.Time) ([]database.Booking, error)
}

// CreateBookingRequest is the validated input for requesting a table.
type CreateBookingRequest struct {
	UserID         uuid.UUID
	CustomerName   string
	BookedFor      time.Time
	PartySize      int32
	SpecialRequest string
}

// bookingCancellable lists the statuses a booking may be cancelled from.
// Declined and past bookings are terminal; the reservation fee on a paid
// booking is forfeited, cancellation does not touch payment_status.
var bookingCancellable = map[string]bool{
	enum.BookingStatusPending: true,
	enum.BookingStatusUnpaid:  true,
	enum.BookingStatusPaid:    true,
}

// BookingService owns the reservation lifecycle: requests, the staff
// approve/decline gate, customer cancellation, the past-date sweep, and the
// payment-result hooks the reconciler drives.
type BookingService struct {
	store BookingStore
	fee   decimal.Decimal
	now   func() time.Time
}

// NewBookingService builds a BookingService charging the given reservation
// fee, expressed in centavos.
func NewBookingService(store BookingStore, feeCentavos int64) *BookingService {
	return &BookingService{
		store: store,
		fee:   decimal.NewFromInt(feeCentavos).Shift(-2),
		now:   time.Now,
	}
}

// CreateBooking records a PENDING_RESERVATION request. The reservation fee is
// frozen on the row at creation time so later config changes cannot reprice
// an outstanding booking.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (database.Booking, error) {
	if req.CustomerName == "" {
		return database.Booking{}, ErrEmptyCustomer
	}
	if !req.BookedFor.After(s.now()) {
		return database.Booking{}, ErrPastBookingDate
	}
	if req.PartySize < minPartySize || req.PartySize > maxPartySize {
		return database.Booking{}, ErrInvalidPartySize
	}

	b, err := s.store.CreateBooking(ctx, database.CreateBookingParams{
		UserID:         req.UserID,
		CustomerName:   req.CustomerName,
		BookedFor:      req.BookedFor.UTC(),
		PartySize:      req.PartySize,
		SpecialRequest: req.SpecialRequest,
		PaymentAmount:  decimalToNumeric(s.fee),
	})
	if err != nil {
		return database.Booking{}, fmt.Errorf("create booking: %w", err)
	}
	return b, nil
}

// Approve moves a pending request to UNPAID_RESERVATION, opening the payment
// window. Staff only.
func (s *BookingService) Approve(ctx context.Context, id uuid.UUID, actor Actor) (database.Booking, error) {
	return s.decide(ctx, id, actor, enum.BookingStatusUnpaid)
}

// Decline rejects a pending request. Staff only, terminal.
func (s *BookingService) Decline(ctx context.Context, id uuid.UUID, actor Actor) (database.Booking, error) {
	return s.decide(ctx, id, actor, enum.BookingStatusDeclined)
}

func (s *BookingService) decide(ctx context.Context, id uuid.UUID, actor Actor, next string) (database.Booking, error) {
	if !actor.Staff {
		return database.Booking{}, fmt.Errorf("only staff decide booking requests: %w", ErrUnauthorized)
	}

	b, err := s.store.UpdateBookingStatus(ctx, database.UpdateBookingStatusParams{
		ID:         id,
		Status:     next,
		FromStatus: enum.BookingStatusPending,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.decideConflict(ctx, id, next)
		}
		return database.Booking{}, fmt.Errorf("update booking status: %w", err)
	}
	return b, nil
}

func (s *BookingService) decideConflict(ctx context.Context, id uuid.UUID, next string) (database.Booking, error) {
	cur, err := s.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return database.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return database.Booking{}, fmt.Errorf("%s -> %s: %w", cur.Status, next, ErrInvalidStateTransition)
}

// Cancel withdraws a booking. Customers may only cancel their own; staff may
// cancel any. A paid booking can be cancelled but the fee stays collected.
func (s *BookingService) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (database.Booking, error) {
	cur, err := s.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return database.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	if !actor.Staff && cur.UserID != actor.UserID {
		// Do not reveal other customers' bookings.
		return database.Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if !bookingCancellable[cur.Status] {
		return database.Booking{}, fmt.Errorf("%s -> %s: %w",
			cur.Status, enum.BookingStatusCancelled, ErrInvalidStateTransition)
	}

	b, err := s.store.UpdateBookingStatus(ctx, database.UpdateBookingStatusParams{
		ID:         id,
		Status:     enum.BookingStatusCancelled,
		FromStatus: cur.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Booking{}, fmt.Errorf("booking %s changed concurrently: %w", id, ErrInvalidStateTransition)
		}
		return database.Booking{}, fmt.Errorf("update booking status: %w", err)
	}
	return b, nil
}

// SweepPastBookings retires every paid or cancelled booking whose date has
// passed. The status predicate lives in the UPDATE itself, so overlapping
// sweep runs each retire a row at most once.
func (s *BookingService) SweepPastBookings(ctx context.Context) ([]database.Booking, error) {
	swept, err := s.store.SweepPastBookings(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("sweep past bookings: %w", err)
	}
	return swept, nil
}

// PaymentDue reports the reservation fee in centavos. Only a booking sitting
// in UNPAID_RESERVATION has a payment window open.
func (s *BookingService) PaymentDue(ctx context.Context, id uuid.UUID) (int64, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("get booking: %w", err)
	}
	if b.Status != enum.BookingStatusUnpaid {
		return 0, fmt.Errorf("booking is %s, not awaiting payment: %w", b.Status, ErrInvalidStateTransition)
	}
	return centavos(b.PaymentAmount), nil
}

// PaymentAmount reports the frozen fee in centavos regardless of lifecycle
// state. The reconciler verifies gateway reports against it.
func (s *BookingService) PaymentAmount(ctx context.Context, id uuid.UUID) (int64, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("get booking: %w", err)
	}
	return centavos(b.PaymentAmount), nil
}

// RecordPaymentReference stores the gateway handle minted for this booking
// without touching its status.
func (s *BookingService) RecordPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	_, err := s.store.SetBookingPaymentReference(ctx, database.SetBookingPaymentReferenceParams{
		ID:        id,
		Reference: reference,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.store.GetBooking(ctx, id); errors.Is(getErr, pgx.ErrNoRows) {
				return fmt.Errorf("booking %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("booking already paid: %w", ErrInvalidStateTransition)
		}
		return fmt.Errorf("set payment reference: %w", err)
	}
	return nil
}

// ApplyPaymentResult settles a gateway result against the booking. Duplicate
// deliveries and late failures after a success are changed=false no-ops. A
// succeeded result advances UNPAID_RESERVATION to PAID_RESERVATION in the
// same statement.
func (s *BookingService) ApplyPaymentResult(ctx context.Context, id uuid.UUID, reference, outcome string) (bool, error) {
	switch outcome {
	case enum.PaymentOutcomeSucceeded:
		_, err := s.store.MarkBookingPaid(ctx, database.MarkBookingPaidParams{
			ID:        id,
			Reference: reference,
			PaidAt:    pgtype.Timestamptz{Time: s.now().UTC(), Valid: true},
		})
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("mark booking paid: %w", err)
		}
	case enum.PaymentOutcomeFailed:
		_, err := s.store.MarkBookingPaymentFailed(ctx, database.MarkBookingPaymentFailedParams{
			ID:        id,
			Reference: reference,
		})
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("mark booking payment failed: %w", err)
		}
	default:
		return false, fmt.Errorf("unknown payment outcome %q", outcome)
	}

	if _, err := s.store.GetBooking(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return false, fmt.Errorf("get booking: %w", err)
	}
	return false, nil
}
