package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type Restaurant struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Phone     string
	OwnerID   uuid.UUID
	CreatedAt time.Time
}

type Product struct {
	ID           uuid.UUID
	Name         string
	Description  string
	Price        pgtype.Numeric
	RestaurantID uuid.UUID
	CreatedAt    time.Time
}

type Courier struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Phone    string
	IsActive bool
}

type Order struct {
	ID           uuid.UUID
	CustomerID   uuid.UUID
	RestaurantID uuid.UUID
	CourierID    pgtype.UUID
	Status       string
	Address      string
	TotalPrice   pgtype.Numeric
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	Price     pgtype.Numeric
}

// Cart is the session-scoped cart row: product id → quantity.
type Cart struct {
	UserID    uuid.UUID
	Items     map[uuid.UUID]int32
	UpdatedAt time.Time
}

type OrderEvent struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	EventType string
	OldStatus pgtype.Text
	NewStatus pgtype.Text
	ActorID   uuid.UUID
	CreatedAt time.Time
}
