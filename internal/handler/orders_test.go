package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
	"github.com/timqwees/delivery-api/internal/filter"
	"github.com/timqwees/delivery-api/internal/handler"
	"github.com/timqwees/delivery-api/internal/middleware"
	"github.com/timqwees/delivery-api/internal/service"
)

// --- Mock order store ---

type mockOrderStore struct {
	getOrderFn               func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOrdersFn             func(ctx context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error)
	listOrderItemsByOrderFn  func(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderItemsByOrderRow, error)
	listOrderEventsByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderEvent, error)
	getRestaurantFn          func(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
	getCourierFn             func(ctx context.Context, id uuid.UUID) (database.Courier, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.ListOrdersRow{}, nil
}

func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderItemsByOrderRow, error) {
	if m.listOrderItemsByOrderFn != nil {
		return m.listOrderItemsByOrderFn(ctx, orderID)
	}
	return []database.ListOrderItemsByOrderRow{}, nil
}

func (m *mockOrderStore) ListOrderEventsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderEvent, error) {
	if m.listOrderEventsByOrderFn != nil {
		return m.listOrderEventsByOrderFn(ctx, orderID)
	}
	return []database.OrderEvent{}, nil
}

func (m *mockOrderStore) GetRestaurant(ctx context.Context, id uuid.UUID) (database.Restaurant, error) {
	if m.getRestaurantFn != nil {
		return m.getRestaurantFn(ctx, id)
	}
	return database.Restaurant{}, pgx.ErrNoRows
}

func (m *mockOrderStore) GetCourier(ctx context.Context, id uuid.UUID) (database.Courier, error) {
	if m.getCourierFn != nil {
		return m.getCourierFn(ctx, id)
	}
	return database.Courier{}, pgx.ErrNoRows
}

// --- Mock lifecycle service ---

type mockLifecycleService struct {
	changeStatusFn  func(ctx context.Context, actor service.Actor, orderID uuid.UUID, newStatus string) (database.Order, error)
	assignCourierFn func(ctx context.Context, actor service.Actor, orderID, courierID uuid.UUID) (database.Order, error)
}

func (m *mockLifecycleService) ChangeStatus(ctx context.Context, actor service.Actor, orderID uuid.UUID, newStatus string) (database.Order, error) {
	return m.changeStatusFn(ctx, actor, orderID, newStatus)
}

func (m *mockLifecycleService) AssignCourier(ctx context.Context, actor service.Actor, orderID, courierID uuid.UUID) (database.Order, error) {
	return m.assignCourierFn(ctx, actor, orderID, courierID)
}

func newOrderRouter(store *mockOrderStore, svc *mockLifecycleService) *chi.Mux {
	h := handler.NewOrderHandler(store, svc, nil, nil)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testSecret))
	h.RegisterRoutes(r)
	return r
}

func sampleOrder(customerID uuid.UUID) database.Order {
	return database.Order{
		ID:           uuid.New(),
		CustomerID:   customerID,
		RestaurantID: uuid.New(),
		Status:       enum.OrderStatusPending,
		Address:      "ul. Lenina 10, kv. 5",
	}
}

// renderPred renders a captured predicate the way the database layer would,
// so tests can assert on the resulting WHERE clause and arguments.
func renderPred(t *testing.T, pred filter.Node) (string, []any) {
	t.Helper()
	columns := map[string]string{
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
	where, args, err := filter.ToSQL(pred, columns, 1)
	if err != nil {
		t.Fatalf("render predicate: %v", err)
	}
	return where, args
}

// --- List tests ---

func TestListOrders_CustomerScopeApplied(t *testing.T) {
	customerID := uuid.New()
	var captured database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(_ context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
			captured = arg
			return []database.ListOrdersRow{}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders", nil, customerID, enum.UserRoleCustomer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	where, args := renderPred(t, captured.Pred)
	if !strings.Contains(where, "o.customer_id = $1") {
		t.Errorf("where clause missing customer scope: %s", where)
	}
	if len(args) != 1 || args[0] != customerID {
		t.Errorf("args: got %v, want [%v]", args, customerID)
	}
}

func TestListOrders_StatusFilterANDedWithScope(t *testing.T) {
	customerID := uuid.New()
	var captured database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(_ context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
			captured = arg
			return []database.ListOrdersRow{}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders?status=preparing", nil, customerID, enum.UserRoleCustomer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	where, args := renderPred(t, captured.Pred)
	if where != "(o.status = $1 AND o.customer_id = $2)" {
		t.Errorf("where clause: got %s", where)
	}
	if len(args) != 2 || args[0] != enum.OrderStatusPreparing || args[1] != customerID {
		t.Errorf("args: got %v", args)
	}
}

func TestListOrders_HighPriorityStaysInsideScope(t *testing.T) {
	// The OR extension for high_priority must not bypass the role scope:
	// the scope is ANDed outermost.
	customerID := uuid.New()
	var captured database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(_ context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
			captured = arg
			return []database.ListOrdersRow{}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders?status=completed&high_priority=true", nil, customerID, enum.UserRoleCustomer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	where, _ := renderPred(t, captured.Pred)
	if !strings.HasSuffix(where, "AND o.customer_id = $5)") {
		t.Errorf("scope is not outermost: %s", where)
	}
	if !strings.Contains(where, "OR") {
		t.Errorf("expected OR extension in: %s", where)
	}
}

func TestListOrders_AdminUnscoped(t *testing.T) {
	var captured database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(_ context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
			captured = arg
			return []database.ListOrdersRow{}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders", nil, uuid.New(), enum.UserRoleAdmin)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	where, args := renderPred(t, captured.Pred)
	if where != "TRUE" || len(args) != 0 {
		t.Errorf("expected unscoped predicate, got %s with args %v", where, args)
	}
}

func TestListOrders_InvalidStatus(t *testing.T) {
	r := newOrderRouter(&mockOrderStore{}, nil)

	rr := doAuthRequest(t, r, "GET", "/orders?status=shipped", nil, uuid.New(), enum.UserRoleCustomer)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListOrders_UnknownSortMapsTo400(t *testing.T) {
	store := &mockOrderStore{
		listOrdersFn: func(_ context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
			return nil, fmt.Errorf("%w %q", database.ErrUnknownSort, arg.Sort)
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders?sort=address", nil, uuid.New(), enum.UserRoleCustomer)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListMyOrders_ForcesCustomerScopeForAdmin(t *testing.T) {
	adminID := uuid.New()
	var captured database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(_ context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
			captured = arg
			return []database.ListOrdersRow{}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/my", nil, adminID, enum.UserRoleAdmin)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	where, args := renderPred(t, captured.Pred)
	if !strings.Contains(where, "o.customer_id = $1") {
		t.Errorf("expected customer scope, got %s", where)
	}
	if len(args) != 1 || args[0] != adminID {
		t.Errorf("args: got %v, want [%v]", args, adminID)
	}
}

// --- Get tests ---

func TestGetOrder_CustomerSeesOwn(t *testing.T) {
	customerID := uuid.New()
	order := sampleOrder(customerID)
	store := &mockOrderStore{
		getOrderFn: func(_ context.Context, id uuid.UUID) (database.Order, error) {
			if id != order.ID {
				return database.Order{}, pgx.ErrNoRows
			}
			return order, nil
		},
		listOrderItemsByOrderFn: func(context.Context, uuid.UUID) ([]database.ListOrderItemsByOrderRow, error) {
			return []database.ListOrderItemsByOrderRow{
				{OrderItem: database.OrderItem{ProductID: uuid.New(), Quantity: 2}, ProductName: "Margherita"},
			}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/"+order.ID.String(), nil, customerID, enum.UserRoleCustomer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	items, ok := resp["items"].([]interface{})
	if !ok || len(items) != 1 {
		t.Errorf("items: got %v, want 1 entry", resp["items"])
	}
}

func TestGetOrder_StrangerCustomerForbidden(t *testing.T) {
	order := sampleOrder(uuid.New())
	store := &mockOrderStore{
		getOrderFn: func(context.Context, uuid.UUID) (database.Order, error) { return order, nil },
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/"+order.ID.String(), nil, uuid.New(), enum.UserRoleCustomer)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestGetOrder_RestaurantOwnerSeesIt(t *testing.T) {
	ownerID := uuid.New()
	order := sampleOrder(uuid.New())
	store := &mockOrderStore{
		getOrderFn: func(context.Context, uuid.UUID) (database.Order, error) { return order, nil },
		getRestaurantFn: func(_ context.Context, id uuid.UUID) (database.Restaurant, error) {
			return database.Restaurant{ID: id, OwnerID: ownerID}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/"+order.ID.String(), nil, ownerID, enum.UserRoleOwner)
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestGetOrder_OtherOwnerForbidden(t *testing.T) {
	order := sampleOrder(uuid.New())
	store := &mockOrderStore{
		getOrderFn: func(context.Context, uuid.UUID) (database.Order, error) { return order, nil },
		getRestaurantFn: func(_ context.Context, id uuid.UUID) (database.Restaurant, error) {
			return database.Restaurant{ID: id, OwnerID: uuid.New()}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/"+order.ID.String(), nil, uuid.New(), enum.UserRoleOwner)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestGetOrder_AssignedCourierSeesIt(t *testing.T) {
	courierUserID := uuid.New()
	courierID := uuid.New()
	order := sampleOrder(uuid.New())
	order.CourierID = pgtype.UUID{Bytes: courierID, Valid: true}
	store := &mockOrderStore{
		getOrderFn: func(context.Context, uuid.UUID) (database.Order, error) { return order, nil },
		getCourierFn: func(_ context.Context, id uuid.UUID) (database.Courier, error) {
			return database.Courier{ID: id, UserID: courierUserID, IsActive: true}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/"+order.ID.String(), nil, courierUserID, enum.UserRoleCourier)
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestGetOrder_UnassignedCourierForbidden(t *testing.T) {
	order := sampleOrder(uuid.New())
	store := &mockOrderStore{
		getOrderFn: func(context.Context, uuid.UUID) (database.Order, error) { return order, nil },
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/"+order.ID.String(), nil, uuid.New(), enum.UserRoleCourier)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	r := newOrderRouter(&mockOrderStore{}, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/"+uuid.New().String(), nil, uuid.New(), enum.UserRoleAdmin)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Status update tests ---

func TestUpdateStatus_Success(t *testing.T) {
	adminID := uuid.New()
	order := sampleOrder(uuid.New())
	order.Status = enum.OrderStatusPreparing

	svc := &mockLifecycleService{
		changeStatusFn: func(_ context.Context, actor service.Actor, orderID uuid.UUID, newStatus string) (database.Order, error) {
			if actor.ID != adminID || actor.Role != enum.UserRoleAdmin {
				t.Errorf("actor: got %+v", actor)
			}
			if newStatus != enum.OrderStatusPreparing {
				t.Errorf("new status: got %q", newStatus)
			}
			return order, nil
		},
	}
	r := newOrderRouter(&mockOrderStore{}, svc)

	rr := doAuthRequest(t, r, "PATCH", "/orders/"+order.ID.String()+"/status", map[string]string{
		"status": enum.OrderStatusPreparing,
	}, adminID, enum.UserRoleAdmin)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != enum.OrderStatusPreparing {
		t.Errorf("response status: got %v", resp["status"])
	}
}

func TestUpdateStatus_ErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{"invalid status", service.ErrInvalidStatus, http.StatusBadRequest},
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"not found", pgx.ErrNoRows, http.StatusNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockLifecycleService{
				changeStatusFn: func(context.Context, service.Actor, uuid.UUID, string) (database.Order, error) {
					return database.Order{}, tc.err
				},
			}
			r := newOrderRouter(&mockOrderStore{}, svc)

			rr := doAuthRequest(t, r, "PATCH", "/orders/"+uuid.New().String()+"/status", map[string]string{
				"status": enum.OrderStatusCompleted,
			}, uuid.New(), enum.UserRoleCustomer)

			if rr.Code != tc.want {
				t.Errorf("status: got %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

// --- Courier assignment tests ---

func TestAssignCourier_Success(t *testing.T) {
	adminID := uuid.New()
	courierID := uuid.New()
	order := sampleOrder(uuid.New())
	order.Status = enum.OrderStatusPreparing
	order.CourierID = pgtype.UUID{Bytes: courierID, Valid: true}

	svc := &mockLifecycleService{
		assignCourierFn: func(_ context.Context, actor service.Actor, _, gotCourier uuid.UUID) (database.Order, error) {
			if actor.Role != enum.UserRoleAdmin {
				t.Errorf("actor role: got %q", actor.Role)
			}
			if gotCourier != courierID {
				t.Errorf("courier ID: got %v, want %v", gotCourier, courierID)
			}
			return order, nil
		},
	}
	r := newOrderRouter(&mockOrderStore{}, svc)

	rr := doAuthRequest(t, r, "POST", "/orders/"+order.ID.String()+"/courier", map[string]string{
		"courier_id": courierID.String(),
	}, adminID, enum.UserRoleAdmin)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["courier_id"] != courierID.String() {
		t.Errorf("courier_id: got %v, want %v", resp["courier_id"], courierID)
	}
}

func TestAssignCourier_ErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"order pending", service.ErrOrderPending, http.StatusConflict},
		{"courier inactive", service.ErrCourierInactive, http.StatusBadRequest},
		{"not found", pgx.ErrNoRows, http.StatusNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockLifecycleService{
				assignCourierFn: func(context.Context, service.Actor, uuid.UUID, uuid.UUID) (database.Order, error) {
					return database.Order{}, tc.err
				},
			}
			r := newOrderRouter(&mockOrderStore{}, svc)

			rr := doAuthRequest(t, r, "POST", "/orders/"+uuid.New().String()+"/courier", map[string]string{
				"courier_id": uuid.New().String(),
			}, uuid.New(), enum.UserRoleAdmin)

			if rr.Code != tc.want {
				t.Errorf("status: got %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

// --- Event listing tests ---

func TestListOrderEvents(t *testing.T) {
	customerID := uuid.New()
	order := sampleOrder(customerID)
	store := &mockOrderStore{
		getOrderFn: func(context.Context, uuid.UUID) (database.Order, error) { return order, nil },
		listOrderEventsByOrderFn: func(context.Context, uuid.UUID) ([]database.OrderEvent, error) {
			return []database.OrderEvent{
				{ID: uuid.New(), OrderID: order.ID, EventType: enum.EventOrderCreated,
					NewStatus: pgtype.Text{String: enum.OrderStatusPending, Valid: true}, ActorID: customerID},
				{ID: uuid.New(), OrderID: order.ID, EventType: enum.EventStatusChanged,
					OldStatus: pgtype.Text{String: enum.OrderStatusPending, Valid: true},
					NewStatus: pgtype.Text{String: enum.OrderStatusPreparing, Valid: true}, ActorID: uuid.New()},
			}, nil
		},
	}
	r := newOrderRouter(store, nil)

	rr := doAuthRequest(t, r, "GET", "/orders/"+order.ID.String()+"/events", nil, customerID, enum.UserRoleCustomer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != 2 {
		t.Fatalf("events: got %d, want 2", len(resp))
	}
	if resp[0]["event_type"] != enum.EventOrderCreated {
		t.Errorf("first event type: got %v", resp[0]["event_type"])
	}
	if resp[1]["old_status"] != enum.OrderStatusPending {
		t.Errorf("second event old_status: got %v", resp[1]["old_status"])
	}
}
