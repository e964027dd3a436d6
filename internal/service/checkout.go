package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
)

const (
	minAddressLength = 10
	maxItemQuantity  = 100
)

// Errors returned by the checkout service.
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidAddress      = errors.New("delivery address must be at least 10 characters")
	ErrInvalidQuantity     = errors.New("quantity must be between 1 and 100")
	ErrProductNotFound     = errors.New("product not found")
	ErrMixedRestaurantCart = errors.New("cart contains products from multiple restaurants")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CheckoutStore defines the DB methods needed to turn a cart into an order.
// Satisfied by *database.Queries (and its WithTx variant).
type CheckoutStore interface {
	GetCart(ctx context.Context, userID uuid.UUID) (database.Cart, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Product, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOrderEvent(ctx context.Context, arg database.CreateOrderEventParams) (database.OrderEvent, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

// NewCheckoutStore creates a CheckoutStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewCheckoutStore func(db database.DBTX) CheckoutStore

// CheckoutResult is the created order with its priced items.
type CheckoutResult struct {
	Order database.Order
	Items []database.OrderItem
}

// CheckoutService turns the customer's cart into an order.
type CheckoutService struct {
	pool     TxBeginner
	newStore NewCheckoutStore
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(pool TxBeginner, newStore NewCheckoutStore) *CheckoutService {
	return &CheckoutService{pool: pool, newStore: newStore}
}

// Checkout reads the customer's cart, prices every line against the current
// product catalog, and creates the order atomically. The cart is read and
// cleared inside the same transaction, so a failed checkout leaves it intact.
// Item prices are copied from the catalog at this moment and never change
// afterwards, even if the product's price does.
func (s *CheckoutService) Checkout(ctx context.Context, customerID uuid.UUID, address string) (*CheckoutResult, error) {
	// Count runes, not bytes: Cyrillic addresses are two bytes per letter.
	if utf8.RuneCountInString(strings.TrimSpace(address)) < minAddressLength {
		return nil, ErrInvalidAddress
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	cart, err := store.GetCart(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	// Stable line order so inserts and totals are deterministic.
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for id := range cart.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	products, err := store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[uuid.UUID]database.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var restaurantID uuid.UUID
	total := decimal.Zero
	type line struct {
		productID uuid.UUID
		quantity  int32
		price     decimal.Decimal
	}
	lines := make([]line, 0, len(ids))

	for _, id := range ids {
		qty := cart.Items[id]
		if qty < 1 || qty > maxItemQuantity {
			return nil, fmt.Errorf("product %s: %w", id, ErrInvalidQuantity)
		}
		product, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
		}
		if restaurantID == uuid.Nil {
			restaurantID = product.RestaurantID
		} else if product.RestaurantID != restaurantID {
			return nil, ErrMixedRestaurantCart
		}
		price := numericToDecimal(product.Price)
		total = total.Add(price.Mul(decimal.NewFromInt32(qty)))
		lines = append(lines, line{productID: id, quantity: qty, price: price})
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Status:       enum.OrderStatusPending,
		Address:      strings.TrimSpace(address),
		TotalPrice:   decimalToNumeric(total),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(lines))
	for _, l := range lines {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: l.productID,
			Quantity:  l.quantity,
			Price:     decimalToNumeric(l.price),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if _, err := store.CreateOrderEvent(ctx, database.CreateOrderEventParams{
		OrderID:   order.ID,
		EventType: enum.EventOrderCreated,
		NewStatus: pgtype.Text{String: enum.OrderStatusPending, Valid: true},
		ActorID:   customerID,
	}); err != nil {
		return nil, fmt.Errorf("create order event: %w", err)
	}

	if err := store.ClearCart(ctx, customerID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CheckoutResult{Order: order, Items: items}, nil
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
