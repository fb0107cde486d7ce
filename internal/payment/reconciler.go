package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kainan-app/api/internal/enum"
)

// Lifecycle is the slice of a chargeable subject the reconciler drives.
// Orders and bookings both satisfy it.
type Lifecycle interface {
	// PaymentDue reports the amount in minor units a new payment should
	// charge, or an error if the subject is not currently chargeable.
	PaymentDue(ctx context.Context, id uuid.UUID) (int64, error)
	// PaymentAmount reports the frozen charge amount regardless of state.
	PaymentAmount(ctx context.Context, id uuid.UUID) (int64, error)
	// RecordPaymentReference stores the gateway handle without changing
	// any lifecycle state.
	RecordPaymentReference(ctx context.Context, id uuid.UUID, reference string) error
	// ApplyPaymentResult settles an outcome idempotently; changed reports
	// whether this delivery was the one that took effect.
	ApplyPaymentResult(ctx context.Context, id uuid.UUID, reference, outcome string) (bool, error)
}

// BeginResult is what a client needs to drive the gateway's checkout UI.
type BeginResult struct {
	Reference    string
	ClientSecret string
	Amount       int64
	Currency     string
}

// Result is one settled gateway outcome, from a webhook delivery or a
// client-initiated confirm.
type Result struct {
	Reference   string
	SubjectType string
	SubjectID   uuid.UUID
	Outcome     string
	Amount      int64
}

// Reconciler pairs gateway intents with order and booking rows. All state
// changes go through the registered lifecycles, never directly to the DB.
type Reconciler struct {
	gateway  Gateway
	currency string
	subjects map[string]Lifecycle
}

func NewReconciler(gateway Gateway, currency string) *Reconciler {
	return &Reconciler{
		gateway:  gateway,
		currency: currency,
		subjects: make(map[string]Lifecycle),
	}
}

// Register binds a subject type (enum.SubjectTypeOrder, SubjectTypeBooking)
// to its lifecycle.
func (r *Reconciler) Register(subjectType string, lc Lifecycle) {
	r.subjects[subjectType] = lc
}

func (r *Reconciler) lifecycle(subjectType string) (Lifecycle, error) {
	lc, ok := r.subjects[subjectType]
	if !ok {
		return nil, fmt.Errorf("%q: %w", subjectType, ErrUnknownSubject)
	}
	return lc, nil
}

// BeginPayment mints a gateway intent for the subject's outstanding amount
// and records its reference. The subject's lifecycle state is untouched; an
// abandoned intent costs nothing. payerEmail rides along in the intent
// metadata so the gateway can receipt the payer.
func (r *Reconciler) BeginPayment(ctx context.Context, subjectType string, subjectID uuid.UUID, payerEmail string) (BeginResult, error) {
	lc, err := r.lifecycle(subjectType)
	if err != nil {
		return BeginResult{}, err
	}

	amount, err := lc.PaymentDue(ctx, subjectID)
	if err != nil {
		return BeginResult{}, err
	}

	intent, err := r.gateway.CreateIntent(ctx, amount, r.currency, map[string]string{
		"subject_type": subjectType,
		"subject_id":   subjectID.String(),
		"payer_email":  payerEmail,
	})
	if err != nil {
		return BeginResult{}, fmt.Errorf("create intent: %w", err)
	}

	if err := lc.RecordPaymentReference(ctx, subjectID, intent.Reference); err != nil {
		return BeginResult{}, err
	}

	return BeginResult{
		Reference:    intent.Reference,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     r.currency,
	}, nil
}

// ApplyResult settles one gateway outcome. The reported amount must match
// the amount frozen on the subject; drift means a tampered or misrouted
// delivery and nothing is written.
func (r *Reconciler) ApplyResult(ctx context.Context, res Result) (bool, error) {
	lc, err := r.lifecycle(res.SubjectType)
	if err != nil {
		return false, err
	}
	if res.Outcome != enum.PaymentOutcomeSucceeded && res.Outcome != enum.PaymentOutcomeFailed {
		return false, fmt.Errorf("unknown payment outcome %q", res.Outcome)
	}

	expected, err := lc.PaymentAmount(ctx, res.SubjectID)
	if err != nil {
		return false, err
	}
	if res.Amount != expected {
		return false, fmt.Errorf("reported %d, charge is %d: %w", res.Amount, expected, ErrPaymentMismatch)
	}

	return lc.ApplyPaymentResult(ctx, res.SubjectID, res.Reference, res.Outcome)
}

// Confirm re-reads an intent from the gateway and settles it. This is the
// client-initiated path: the caller only supplies the reference, everything
// else comes from the gateway so a client cannot vouch for its own payment.
func (r *Reconciler) Confirm(ctx context.Context, reference string) (Result, bool, error) {
	intent, err := r.gateway.RetrieveIntent(ctx, reference)
	if err != nil {
		return Result{}, false, fmt.Errorf("retrieve intent: %w", err)
	}

	res, err := resultFromIntent(intent)
	if err != nil {
		return Result{}, false, err
	}

	changed, err := r.ApplyResult(ctx, res)
	return res, changed, err
}

func resultFromIntent(intent Intent) (Result, error) {
	subjectType := intent.Metadata["subject_type"]
	subjectID, err := uuid.Parse(intent.Metadata["subject_id"])
	if err != nil {
		return Result{}, fmt.Errorf("intent %s has no usable subject_id: %w", intent.Reference, err)
	}

	var outcome string
	switch intent.Status {
	case IntentStatusSucceeded:
		outcome = enum.PaymentOutcomeSucceeded
	case IntentStatusFailed:
		outcome = enum.PaymentOutcomeFailed
	default:
		return Result{}, fmt.Errorf("intent %s is %s: %w", intent.Reference, intent.Status, ErrPaymentPending)
	}

	return Result{
		Reference:   intent.Reference,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Outcome:     outcome,
		Amount:      intent.Amount,
	}, nil
}
