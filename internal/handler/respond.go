package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kainan-app/api/internal/cart"
	"github.com/kainan-app/api/internal/inventory"
	"github.com/kainan-app/api/internal/payment"
	"github.com/kainan-app/api/internal/pricing"
	"github.com/kainan-app/api/internal/service"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// writeServiceError maps the service and payment error taxonomy onto HTTP
// statuses. Anything unmapped is a 500 and gets logged; expected failures do
// not.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, payment.ErrPaymentPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, cart.ErrUnknownFlavor),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrPastBookingDate),
		errors.Is(err, service.ErrInvalidPartySize),
		errors.Is(err, service.ErrEmptyCustomer),
		errors.Is(err, payment.ErrPaymentMismatch),
		errors.Is(err, payment.ErrUnknownSubject):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment gateway unavailable"})
	default:
		log.Printf("ERROR: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// amountString renders a money column the way every response does: two
// decimal places, as a string so clients never touch floats.
func amountString(n pgtype.Numeric) string {
	return numericToDecimal(n).StringFixed(2)
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
