package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/timqwees/delivery-api/internal/filter"
)

const createRestaurant = `
INSERT INTO restaurants (name, address, phone, owner_id)
VALUES ($1, $2, $3, $4)
RETURNING id, name, address, phone, owner_id, created_at
`

type CreateRestaurantParams struct {
	Name    string
	Address string
	Phone   string
	OwnerID uuid.UUID
}

func (q *Queries) CreateRestaurant(ctx context.Context, arg CreateRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, createRestaurant, arg.Name, arg.Address, arg.Phone, arg.OwnerID)
	return scanRestaurant(row)
}

const getRestaurant = `
SELECT id, name, address, phone, owner_id, created_at
FROM restaurants
WHERE id = $1
`

func (q *Queries) GetRestaurant(ctx context.Context, id uuid.UUID) (Restaurant, error) {
	return scanRestaurant(q.db.QueryRow(ctx, getRestaurant, id))
}

var restaurantFilterColumns = map[string]string{
	"name":       "name",
	"address":    "address",
	"phone":      "phone",
	"owner_id":   "owner_id",
	"created_at": "created_at",
}

var restaurantSortColumns = map[string]string{
	"name":        "name ASC",
	"-name":       "name DESC",
	"created_at":  "created_at ASC",
	"-created_at": "created_at DESC",
}

type ListRestaurantsParams struct {
	Pred filter.Node
	Sort string // empty means name ascending
}

func (q *Queries) ListRestaurants(ctx context.Context, arg ListRestaurantsParams) ([]Restaurant, error) {
	where, args, err := filter.ToSQL(arg.Pred, restaurantFilterColumns, 1)
	if err != nil {
		return nil, err
	}
	orderBy, ok := restaurantSortColumns[arg.Sort]
	if arg.Sort == "" {
		orderBy = restaurantSortColumns["name"]
	} else if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSort, arg.Sort)
	}

	sql := fmt.Sprintf(`
SELECT id, name, address, phone, owner_id, created_at
FROM restaurants
WHERE %s
ORDER BY %s`, where, orderBy)

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRestaurants(rows)
}

const listRestaurantsByOwner = `
SELECT id, name, address, phone, owner_id, created_at
FROM restaurants
WHERE owner_id = $1
ORDER BY name
`

func (q *Queries) ListRestaurantsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Restaurant, error) {
	rows, err := q.db.Query(ctx, listRestaurantsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRestaurants(rows)
}

const updateRestaurant = `
UPDATE restaurants
SET name = $2, address = $3, phone = $4
WHERE id = $1
RETURNING id, name, address, phone, owner_id, created_at
`

type UpdateRestaurantParams struct {
	ID      uuid.UUID
	Name    string
	Address string
	Phone   string
}

func (q *Queries) UpdateRestaurant(ctx context.Context, arg UpdateRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, updateRestaurant, arg.ID, arg.Name, arg.Address, arg.Phone)
	return scanRestaurant(row)
}

const deleteRestaurant = `
DELETE FROM restaurants
WHERE id = $1
RETURNING id
`

func (q *Queries) DeleteRestaurant(ctx context.Context, id uuid.UUID) error {
	var deleted uuid.UUID
	return q.db.QueryRow(ctx, deleteRestaurant, id).Scan(&deleted)
}

func scanRestaurant(row pgx.Row) (Restaurant, error) {
	var r Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Address, &r.Phone, &r.OwnerID, &r.CreatedAt)
	return r, err
}

func collectRestaurants(rows pgx.Rows) ([]Restaurant, error) {
	var out []Restaurant
	for rows.Next() {
		var r Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.Address, &r.Phone, &r.OwnerID, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
