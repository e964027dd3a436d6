package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
)

// Errors returned by the lifecycle service.
var (
	ErrInvalidStatus   = errors.New("invalid status")
	ErrForbidden       = errors.New("operation not allowed for this user")
	ErrCourierInactive = errors.New("courier is not active")
	ErrOrderPending    = errors.New("cannot assign courier to a pending order")
)

// Actor identifies who is performing a lifecycle operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// LifecycleStore defines the DB methods needed for status changes and
// courier assignment. Satisfied by *database.Queries (and its WithTx variant).
type LifecycleStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	AssignOrderCourier(ctx context.Context, arg database.AssignOrderCourierParams) (database.Order, error)
	GetCourier(ctx context.Context, id uuid.UUID) (database.Courier, error)
	CreateOrderEvent(ctx context.Context, arg database.CreateOrderEventParams) (database.OrderEvent, error)
}

// NewLifecycleStore creates a LifecycleStore from a DBTX (pool or tx).
type NewLifecycleStore func(db database.DBTX) LifecycleStore

// LifecycleService handles order status changes and courier assignment.
type LifecycleService struct {
	pool     TxBeginner
	newStore NewLifecycleStore
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(pool TxBeginner, newStore NewLifecycleStore) *LifecycleService {
	return &LifecycleService{pool: pool, newStore: newStore}
}

// ChangeStatus moves an order to newStatus and records the transition.
// Admins may set any recognized status; a customer may only cancel their
// own order. There is no adjacency check between statuses: an admin can
// jump from pending straight to completed.
func (s *LifecycleService) ChangeStatus(ctx context.Context, actor Actor, orderID uuid.UUID, newStatus string) (database.Order, error) {
	if !enum.IsValidOrderStatus(newStatus) {
		return database.Order{}, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		return database.Order{}, err
	}

	switch {
	case actor.Role == enum.UserRoleAdmin:
	case actor.ID == order.CustomerID && newStatus == enum.OrderStatusCancelled:
	default:
		return database.Order{}, ErrForbidden
	}

	oldStatus := order.Status
	order, err = store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:     orderID,
		Status: newStatus,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("update status: %w", err)
	}

	if _, err := store.CreateOrderEvent(ctx, database.CreateOrderEventParams{
		OrderID:   orderID,
		EventType: enum.EventStatusChanged,
		OldStatus: pgtype.Text{String: oldStatus, Valid: true},
		NewStatus: pgtype.Text{String: newStatus, Valid: true},
		ActorID:   actor.ID,
	}); err != nil {
		return database.Order{}, fmt.Errorf("create order event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return order, nil
}

// AssignCourier attaches an active courier to an order. Admin only, and
// only once the kitchen has taken the order: a pending order has no courier.
func (s *LifecycleService) AssignCourier(ctx context.Context, actor Actor, orderID, courierID uuid.UUID) (database.Order, error) {
	if actor.Role != enum.UserRoleAdmin {
		return database.Order{}, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		return database.Order{}, err
	}
	if order.Status == enum.OrderStatusPending {
		return database.Order{}, ErrOrderPending
	}

	courier, err := store.GetCourier(ctx, courierID)
	if err != nil {
		return database.Order{}, err
	}
	if !courier.IsActive {
		return database.Order{}, ErrCourierInactive
	}

	order, err = store.AssignOrderCourier(ctx, database.AssignOrderCourierParams{
		ID:        orderID,
		CourierID: courierID,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("assign courier: %w", err)
	}

	if _, err := store.CreateOrderEvent(ctx, database.CreateOrderEventParams{
		OrderID:   orderID,
		EventType: enum.EventCourierAssigned,
		ActorID:   actor.ID,
	}); err != nil {
		return database.Order{}, fmt.Errorf("create order event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return order, nil
}
