package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/timqwees/delivery-api/internal/filter"
)

const createProduct = `
INSERT INTO products (name, description, price, restaurant_id)
VALUES ($1, $2, $3, $4)
RETURNING id, name, description, price, restaurant_id, created_at
`

type CreateProductParams struct {
	Name         string
	Description  string
	Price        pgtype.Numeric
	RestaurantID uuid.UUID
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct, arg.Name, arg.Description, arg.Price, arg.RestaurantID)
	return scanProduct(row)
}

const getProduct = `
SELECT id, name, description, price, restaurant_id, created_at
FROM products
WHERE id = $1
`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const getProductsByIDs = `
SELECT id, name, description, price, restaurant_id, created_at
FROM products
WHERE id = ANY($1)
`

// GetProductsByIDs resolves a set of product ids. Missing ids are simply
// absent from the result; callers decide whether that is an error.
func (q *Queries) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, getProductsByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

const listProductsByRestaurant = `
SELECT id, name, description, price, restaurant_id, created_at
FROM products
WHERE restaurant_id = $1
ORDER BY name
`

func (q *Queries) ListProductsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProductsByRestaurant, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// productFilterColumns maps the logical filter fields to columns of the
// ListProducts join.
var productFilterColumns = map[string]string{
	"name":                "p.name",
	"description":         "p.description",
	"price":               "p.price",
	"created_at":          "p.created_at",
	"restaurant_id":       "p.restaurant_id",
	"restaurant_name":     "r.name",
	"restaurant_owner_id": "r.owner_id",
}

var productSortColumns = map[string]string{
	"name":        "p.name ASC",
	"-name":       "p.name DESC",
	"price":       "p.price ASC",
	"-price":      "p.price DESC",
	"created_at":  "p.created_at ASC",
	"-created_at": "p.created_at DESC",
}

type ListProductsParams struct {
	Pred   filter.Node
	Sort   string // empty means name ascending
	Limit  int32
	Offset int32
}

type ListProductsRow struct {
	Product
	RestaurantName string
}

func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]ListProductsRow, error) {
	where, args, err := filter.ToSQL(arg.Pred, productFilterColumns, 1)
	if err != nil {
		return nil, err
	}
	orderBy, ok := productSortColumns[arg.Sort]
	if arg.Sort == "" {
		orderBy = productSortColumns["name"]
	} else if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSort, arg.Sort)
	}

	sql := fmt.Sprintf(`
SELECT p.id, p.name, p.description, p.price, p.restaurant_id, p.created_at, r.name
FROM products p
JOIN restaurants r ON r.id = p.restaurant_id
WHERE %s
ORDER BY %s
LIMIT $%d OFFSET $%d`, where, orderBy, len(args)+1, len(args)+2)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListProductsRow
	for rows.Next() {
		var r ListProductsRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Price, &r.RestaurantID, &r.CreatedAt, &r.RestaurantName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const listPopularProducts = `
SELECT p.id, p.name, p.description, p.price, p.restaurant_id, p.created_at, r.name,
       SUM(oi.quantity) AS total_ordered
FROM products p
JOIN restaurants r ON r.id = p.restaurant_id
JOIN order_items oi ON oi.product_id = p.id
JOIN orders o ON o.id = oi.order_id
WHERE o.status <> 'cancelled'
GROUP BY p.id, r.name
ORDER BY total_ordered DESC
LIMIT 10
`

type ListPopularProductsRow struct {
	Product
	RestaurantName string
	TotalOrdered   int64
}

// ListPopularProducts returns the ten most ordered products, ranked by the
// total quantity across non-cancelled orders.
func (q *Queries) ListPopularProducts(ctx context.Context) ([]ListPopularProductsRow, error) {
	rows, err := q.db.Query(ctx, listPopularProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListPopularProductsRow
	for rows.Next() {
		var r ListPopularProductsRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Price, &r.RestaurantID, &r.CreatedAt, &r.RestaurantName, &r.TotalOrdered); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const updateProduct = `
UPDATE products
SET name = $2, description = $3, price = $4
WHERE id = $1
RETURNING id, name, description, price, restaurant_id, created_at
`

type UpdateProductParams struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       pgtype.Numeric
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProduct, arg.ID, arg.Name, arg.Description, arg.Price)
	return scanProduct(row)
}

const updateProductPrice = `
UPDATE products
SET price = $2
WHERE id = $1
RETURNING id, name, description, price, restaurant_id, created_at
`

type UpdateProductPriceParams struct {
	ID    uuid.UUID
	Price pgtype.Numeric
}

func (q *Queries) UpdateProductPrice(ctx context.Context, arg UpdateProductPriceParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProductPrice, arg.ID, arg.Price)
	return scanProduct(row)
}

const deleteProduct = `
DELETE FROM products
WHERE id = $1
RETURNING id
`

func (q *Queries) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	var deleted uuid.UUID
	return q.db.QueryRow(ctx, deleteProduct, id).Scan(&deleted)
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.RestaurantID, &p.CreatedAt)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.RestaurantID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
