package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID             uuid.UUID
	Email          string
	FullName       string
	HashedPassword string
	IsStaff        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type MenuItem struct {
	ID         uuid.UUID
	Name       string
	Price      pgtype.Numeric
	Category   string
	Flavors    []string
	Available  bool
	StockCount int32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CartLine struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	MenuItemID uuid.UUID
	Flavor     string
	Quantity   int32
	Notes      string
	CreatedAt  time.Time
}

type Order struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	UserEmail        string
	PickupCode       string
	Status           string
	Notes            string
	Subtotal         pgtype.Numeric
	Tax              pgtype.Numeric
	Total            pgtype.Numeric
	PaymentStatus    string
	PaymentReference pgtype.Text
	PaymentAmount    pgtype.Numeric
	PaidAt           pgtype.Timestamptz
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem is an immutable snapshot of a menu item at order time.
// Later menu edits must not alter historical orders.
type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Name       string
	UnitPrice  pgtype.Numeric
	Category   string
	Flavor     string
	Quantity   int32
	Notes      string
}

type Booking struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	CustomerName     string
	BookedFor        time.Time
	PartySize        int32
	SpecialRequest   string
	Status           string
	PaymentStatus    string
	PaymentReference pgtype.Text
	PaymentAmount    pgtype.Numeric
	PaidAt           pgtype.Timestamptz
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
