package database

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const getCart = `
SELECT user_id, items, updated_at
FROM carts
WHERE user_id = $1
`

// GetCart returns the user's cart. A user with no cart row gets an empty one.
func (q *Queries) GetCart(ctx context.Context, userID uuid.UUID) (Cart, error) {
	row := q.db.QueryRow(ctx, getCart, userID)
	var c Cart
	var raw []byte
	err := row.Scan(&c.UserID, &raw, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{UserID: userID, Items: map[uuid.UUID]int32{}}, nil
	}
	if err != nil {
		return Cart{}, err
	}
	if err := json.Unmarshal(raw, &c.Items); err != nil {
		return Cart{}, err
	}
	return c, nil
}

const saveCart = `
INSERT INTO carts (user_id, items, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE
SET items = EXCLUDED.items, updated_at = now()
`

func (q *Queries) SaveCart(ctx context.Context, userID uuid.UUID, items map[uuid.UUID]int32) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, saveCart, userID, raw)
	return err
}

const clearCart = `
DELETE FROM carts
WHERE user_id = $1
`

func (q *Queries) ClearCart(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, clearCart, userID)
	return err
}
