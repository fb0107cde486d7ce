// Package payment talks to the card gateway and reconciles its results
// against orders and bookings. The gateway is the source of truth for money
// movement; this package's job is to make our rows agree with it exactly
// once.
package payment

import (
	"context"
	"errors"
)

// Errors returned by the gateway client and the reconciler.
var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrPaymentMismatch    = errors.New("reported amount does not match the charge")
	ErrPaymentPending     = errors.New("payment not settled at the gateway")
	ErrUnknownSubject     = errors.New("unknown payment subject")
)

// Gateway intent statuses.
const (
	IntentStatusAwaiting  = "awaiting_payment_method"
	IntentStatusSucceeded = "succeeded"
	IntentStatusFailed    = "payment_failed"
)

// Intent is the gateway-side record of one payment attempt. Amount is in
// minor units (centavos).
type Intent struct {
	Reference    string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
	Metadata     map[string]string
}

// Gateway creates and retrieves payment intents.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
	RetrieveIntent(ctx context.Context, reference string) (Intent, error)
}
