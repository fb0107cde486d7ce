package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "PENDING"
	OrderStatusPreparing = "PREPARING"
	OrderStatusReady     = "READY"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	BookingStatusPending   = "PENDING_RESERVATION"
	BookingStatusUnpaid    = "UNPAID_RESERVATION"
	BookingStatusPaid      = "PAID_RESERVATION"
	BookingStatusPast      = "PAST_RESERVATION"
	BookingStatusDeclined  = "DECLINED_RESERVATION"
	BookingStatusCancelled = "CANCELLED_RESERVATION"
)

const (
	PaymentStatusUnpaid = "UNPAID"
	PaymentStatusPaid   = "PAID"
	PaymentStatusFailed = "FAILED"
)

// ── Payment reconciliation ──

const (
	SubjectTypeOrder   = "order"
	SubjectTypeBooking = "booking"
)

const (
	PaymentOutcomeSucceeded = "succeeded"
	PaymentOutcomeFailed    = "failed"
)

// ── Configurable labels (no DB constraint) ──

const (
	CategoryMains     = "MAINS"
	CategorySides     = "SIDES"
	CategoryBeverages = "BEVERAGES"
	CategoryDesserts  = "DESSERTS"
)
