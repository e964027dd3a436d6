package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createOrderEvent = `
INSERT INTO order_events (order_id, event_type, old_status, new_status, actor_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, event_type, old_status, new_status, actor_id, created_at
`

type CreateOrderEventParams struct {
	OrderID   uuid.UUID
	EventType string
	OldStatus pgtype.Text
	NewStatus pgtype.Text
	ActorID   uuid.UUID
}

func (q *Queries) CreateOrderEvent(ctx context.Context, arg CreateOrderEventParams) (OrderEvent, error) {
	row := q.db.QueryRow(ctx, createOrderEvent,
		arg.OrderID, arg.EventType, arg.OldStatus, arg.NewStatus, arg.ActorID)
	var e OrderEvent
	err := row.Scan(&e.ID, &e.OrderID, &e.EventType, &e.OldStatus, &e.NewStatus, &e.ActorID, &e.CreatedAt)
	return e, err
}

const listOrderEventsByOrder = `
SELECT id, order_id, event_type, old_status, new_status, actor_id, created_at
FROM order_events
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListOrderEventsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderEvent, error) {
	rows, err := q.db.Query(ctx, listOrderEventsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderEvent
	for rows.Next() {
		var e OrderEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &e.OldStatus, &e.NewStatus, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
