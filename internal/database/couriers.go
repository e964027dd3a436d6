package database

import (
	"context"

	"github.com/google/uuid"
)

const createCourier = `
INSERT INTO couriers (user_id, phone, is_active)
VALUES ($1, $2, $3)
RETURNING id, user_id, phone, is_active
`

type CreateCourierParams struct {
	UserID   uuid.UUID
	Phone    string
	IsActive bool
}

func (q *Queries) CreateCourier(ctx context.Context, arg CreateCourierParams) (Courier, error) {
	row := q.db.QueryRow(ctx, createCourier, arg.UserID, arg.Phone, arg.IsActive)
	var c Courier
	err := row.Scan(&c.ID, &c.UserID, &c.Phone, &c.IsActive)
	return c, err
}

const getCourier = `
SELECT id, user_id, phone, is_active
FROM couriers
WHERE id = $1
`

func (q *Queries) GetCourier(ctx context.Context, id uuid.UUID) (Courier, error) {
	row := q.db.QueryRow(ctx, getCourier, id)
	var c Courier
	err := row.Scan(&c.ID, &c.UserID, &c.Phone, &c.IsActive)
	return c, err
}

const listCouriers = `
SELECT c.id, c.user_id, c.phone, c.is_active, u.username
FROM couriers c
JOIN users u ON u.id = c.user_id
ORDER BY u.username
`

type ListCouriersRow struct {
	Courier
	Username string
}

func (q *Queries) ListCouriers(ctx context.Context) ([]ListCouriersRow, error) {
	rows, err := q.db.Query(ctx, listCouriers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListCouriersRow
	for rows.Next() {
		var r ListCouriersRow
		if err := rows.Scan(&r.ID, &r.UserID, &r.Phone, &r.IsActive, &r.Username); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const updateCourier = `
UPDATE couriers
SET phone = $2, is_active = $3
WHERE id = $1
RETURNING id, user_id, phone, is_active
`

type UpdateCourierParams struct {
	ID       uuid.UUID
	Phone    string
	IsActive bool
}

func (q *Queries) UpdateCourier(ctx context.Context, arg UpdateCourierParams) (Courier, error) {
	row := q.db.QueryRow(ctx, updateCourier, arg.ID, arg.Phone, arg.IsActive)
	var c Courier
	err := row.Scan(&c.ID, &c.UserID, &c.Phone, &c.IsActive)
	return c, err
}
