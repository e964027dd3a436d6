package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/timqwees/delivery-api/internal/filter"
)

const createOrder = `
INSERT INTO orders (customer_id, restaurant_id, status, address, total_price)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, customer_id, restaurant_id, courier_id, status, address, total_price, created_at, updated_at
`

type CreateOrderParams struct {
	CustomerID   uuid.UUID
	RestaurantID uuid.UUID
	Status       string
	Address      string
	TotalPrice   pgtype.Numeric
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.CustomerID, arg.RestaurantID, arg.Status, arg.Address, arg.TotalPrice)
	return scanOrder(row)
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, quantity, price)
VALUES ($1, $2, $3, $4)
RETURNING id, order_id, product_id, quantity, price
`

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	Price     pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem, arg.OrderID, arg.ProductID, arg.Quantity, arg.Price)
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price)
	return it, err
}

const getOrder = `
SELECT id, customer_id, restaurant_id, courier_id, status, address, total_price, created_at, updated_at
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const listOrderItemsByOrder = `
SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, p.name
FROM order_items oi
JOIN products p ON p.id = oi.product_id
WHERE oi.order_id = $1
ORDER BY p.name
`

type ListOrderItemsByOrderRow struct {
	OrderItem
	ProductName string
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]ListOrderItemsByOrderRow, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListOrderItemsByOrderRow
	for rows.Next() {
		var r ListOrderItemsByOrderRow
		if err := rows.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.Quantity, &r.Price, &r.ProductName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// orderFilterColumns maps the logical filter fields to columns of the
// ListOrders join.
var orderFilterColumns = map[string]string{
	"status":              "o.status",
	"total_price":         "o.total_price",
	"created_at":          "o.created_at",
	"address":             "o.address",
	"customer_id":         "o.customer_id",
	"restaurant_id":       "o.restaurant_id",
	"customer_username":   "cu.username",
	"restaurant_name":     "r.name",
	"restaurant_owner_id": "r.owner_id",
	"courier_user_id":     "c.user_id",
}

var orderSortColumns = map[string]string{
	"created_at":   "o.created_at ASC",
	"-created_at":  "o.created_at DESC",
	"total_price":  "o.total_price ASC",
	"-total_price": "o.total_price DESC",
	"status":       "o.status ASC",
	"-status":      "o.status DESC",
}

type ListOrdersParams struct {
	Pred   filter.Node
	Sort   string // empty means newest first
	Limit  int32
	Offset int32
}

type ListOrdersRow struct {
	Order
	CustomerUsername string
	RestaurantName   string
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]ListOrdersRow, error) {
	where, args, err := filter.ToSQL(arg.Pred, orderFilterColumns, 1)
	if err != nil {
		return nil, err
	}
	orderBy, ok := orderSortColumns[arg.Sort]
	if arg.Sort == "" {
		orderBy = orderSortColumns["-created_at"]
	} else if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSort, arg.Sort)
	}

	sql := fmt.Sprintf(`
SELECT o.id, o.customer_id, o.restaurant_id, o.courier_id, o.status, o.address,
       o.total_price, o.created_at, o.updated_at, cu.username, r.name
FROM orders o
JOIN users cu ON cu.id = o.customer_id
JOIN restaurants r ON r.id = o.restaurant_id
LEFT JOIN couriers c ON c.id = o.courier_id
WHERE %s
ORDER BY %s
LIMIT $%d OFFSET $%d`, where, orderBy, len(args)+1, len(args)+2)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListOrdersRow
	for rows.Next() {
		var r ListOrdersRow
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.RestaurantID, &r.CourierID, &r.Status,
			&r.Address, &r.TotalPrice, &r.CreatedAt, &r.UpdatedAt,
			&r.CustomerUsername, &r.RestaurantName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const updateOrderStatus = `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING id, customer_id, restaurant_id, courier_id, status, address, total_price, created_at, updated_at
`

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status))
}

const assignOrderCourier = `
UPDATE orders
SET courier_id = $2, updated_at = now()
WHERE id = $1
RETURNING id, customer_id, restaurant_id, courier_id, status, address, total_price, created_at, updated_at
`

type AssignOrderCourierParams struct {
	ID        uuid.UUID
	CourierID uuid.UUID
}

func (q *Queries) AssignOrderCourier(ctx context.Context, arg AssignOrderCourierParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, assignOrderCourier, arg.ID, arg.CourierID))
}

const deleteCancelledOrdersBefore = `
DELETE FROM orders
WHERE status = 'cancelled' AND created_at < $1
`

// DeleteCancelledOrdersBefore removes cancelled orders created before the
// cutoff and returns how many were deleted. Items and events go with them
// through the cascades.
func (q *Queries) DeleteCancelledOrdersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteCancelledOrdersBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.RestaurantID, &o.CourierID, &o.Status,
		&o.Address, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
