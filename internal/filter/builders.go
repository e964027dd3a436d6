package filter

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/timqwees/delivery-api/internal/enum"
)

// Principal is the authenticated caller a predicate is scoped to.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

// OrderParams are the optional listing criteria for orders. Zero values
// mean "criterion absent" and add nothing to the predicate.
type OrderParams struct {
	Status       string
	DateFrom     *time.Time
	DateTo       *time.Time
	MinTotal     *decimal.Decimal
	MaxTotal     *decimal.Decimal
	Search       string
	HighPriority bool
	Active       bool
}

// Orders builds the order-listing predicate. Criteria accumulate left to
// right with AND; high_priority then extends the accumulated predicate
// with OR, and active narrows it with AND, in that order. The accumulation
// order is load-bearing because OR and AND are mixed without explicit
// grouping by the caller.
//
// The role scope is ANDed at the outermost level last, so the
// high_priority OR extension can never widen a caller's view past the
// rows their role allows.
func Orders(p OrderParams, principal Principal) Node {
	var pred Node

	if p.Status != "" {
		pred = And(pred, Eq("status", p.Status))
	}
	if p.DateFrom != nil {
		pred = And(pred, Gte("created_at", *p.DateFrom))
	}
	if p.DateTo != nil {
		pred = And(pred, Lte("created_at", *p.DateTo))
	}
	if p.MinTotal != nil {
		pred = And(pred, Gte("total_price", *p.MinTotal))
	}
	if p.MaxTotal != nil {
		pred = And(pred, Lte("total_price", *p.MaxTotal))
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		pred = And(pred, Or(
			Or(Contains("address", s), Contains("customer_username", s)),
			Contains("restaurant_name", s),
		))
	}

	if p.HighPriority {
		pred = Or(pred, Or(
			Gte("total_price", decimal.NewFromInt(1000)),
			Not(In("status", enum.OrderStatusCompleted, enum.OrderStatusCancelled)),
		))
	}

	if p.Active {
		pred = And(pred, And(
			Ne("status", enum.OrderStatusCancelled),
			Or(Eq("status", enum.OrderStatusPreparing), Eq("status", enum.OrderStatusDelivering)),
		))
	}

	return And(pred, orderScope(principal))
}

// orderScope returns the mandatory role clause: customers see their own
// orders, owners the orders of their restaurants, couriers their assigned
// deliveries. Admins are unscoped.
func orderScope(principal Principal) Node {
	switch principal.Role {
	case enum.UserRoleAdmin:
		return nil
	case enum.UserRoleOwner:
		return Eq("restaurant_owner_id", principal.UserID)
	case enum.UserRoleCourier:
		return Eq("courier_user_id", principal.UserID)
	default:
		return Eq("customer_id", principal.UserID)
	}
}

// ProductParams are the optional listing criteria for products.
type ProductParams struct {
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	PriceRange   string // "<min>-<max>"; malformed ranges are ignored
	Search       string
	RestaurantID *uuid.UUID
}

// Products builds the product-listing predicate. principal may be nil for
// anonymous browsing; authenticated non-admin callers are restricted to
// products of restaurants they own, ANDed at the outermost level.
func Products(p ProductParams, principal *Principal) Node {
	var pred Node

	if p.RestaurantID != nil {
		pred = And(pred, Eq("restaurant_id", *p.RestaurantID))
	}
	if p.MinPrice != nil {
		pred = And(pred, Gte("price", *p.MinPrice))
	}
	if p.MaxPrice != nil {
		pred = And(pred, Lte("price", *p.MaxPrice))
	}
	if lo, hi, ok := parsePriceRange(p.PriceRange); ok {
		pred = And(pred, And(Gte("price", lo), Lte("price", hi)))
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		pred = And(pred, Or(Contains("name", s), Contains("description", s)))
	}

	if principal != nil && principal.Role != enum.UserRoleAdmin {
		pred = And(pred, Eq("restaurant_owner_id", principal.UserID))
	}

	return pred
}

// RestaurantParams are the optional listing criteria for restaurants.
type RestaurantParams struct {
	Name    string // substring match on the name
	OwnerID *uuid.UUID
	Search  string
}

// Restaurants builds the restaurant-listing predicate. The listing is a
// public catalog, so there is no role scope; owners use their dedicated
// listing for the scoped view.
func Restaurants(p RestaurantParams) Node {
	var pred Node

	if p.OwnerID != nil {
		pred = And(pred, Eq("owner_id", *p.OwnerID))
	}
	if s := strings.TrimSpace(p.Name); s != "" {
		pred = And(pred, Contains("name", s))
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		pred = And(pred, Or(
			Or(Contains("name", s), Contains("address", s)),
			Contains("phone", s),
		))
	}

	return pred
}

func parsePriceRange(s string) (lo, hi decimal.Decimal, ok bool) {
	if s == "" {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	lo, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	hi, err = decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return lo, hi, true
}
