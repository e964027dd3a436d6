package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
	"github.com/timqwees/delivery-api/internal/events"
	"github.com/timqwees/delivery-api/internal/filter"
	"github.com/timqwees/delivery-api/internal/middleware"
	"github.com/timqwees/delivery-api/internal/service"
	"github.com/timqwees/delivery-api/internal/ws"
)

// OrderStore defines the database methods needed by order handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderItemsByOrderRow, error)
	ListOrderEventsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderEvent, error)
	GetRestaurant(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
	GetCourier(ctx context.Context, id uuid.UUID) (database.Courier, error)
}

// lifecycleService is the slice of LifecycleService the handler needs.
type lifecycleService interface {
	ChangeStatus(ctx context.Context, actor service.Actor, orderID uuid.UUID, newStatus string) (database.Order, error)
	AssignCourier(ctx context.Context, actor service.Actor, orderID, courierID uuid.UUID) (database.Order, error)
}

// OrderHandler handles order queries and lifecycle endpoints.
type OrderHandler struct {
	store     OrderStore
	lifecycle lifecycleService
	hub       *ws.Hub
	publisher eventPublisher
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(store OrderStore, lifecycle lifecycleService, hub *ws.Hub, publisher eventPublisher) *OrderHandler {
	return &OrderHandler{store: store, lifecycle: lifecycle, hub: hub, publisher: publisher}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// All of them require authentication; per-order access is checked inside.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Get("/orders/my", h.My)
	r.Get("/orders/{id}", h.Get)
	r.Get("/orders/{id}/events", h.ListEvents)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/{id}/courier", h.AssignCourier)
}

// --- Request / Response types ---

type updateStatusRequest struct {
	Status string `json:"status"`
}

type assignCourierRequest struct {
	CourierID string `json:"courier_id"`
}

type orderItemResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Quantity    int32     `json:"quantity"`
	Price       string    `json:"price"`
}

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	CustomerID       uuid.UUID           `json:"customer_id"`
	CustomerUsername string              `json:"customer_username,omitempty"`
	RestaurantID     uuid.UUID           `json:"restaurant_id"`
	RestaurantName   string              `json:"restaurant_name,omitempty"`
	CourierID        *uuid.UUID          `json:"courier_id"`
	Status           string              `json:"status"`
	Address          string              `json:"address"`
	TotalPrice       string              `json:"total_price"`
	Items            []orderItemResponse `json:"items,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type orderEventResponse struct {
	ID        uuid.UUID `json:"id"`
	EventType string    `json:"event_type"`
	OldStatus *string   `json:"old_status"`
	NewStatus *string   `json:"new_status"`
	ActorID   uuid.UUID `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		RestaurantID: o.RestaurantID,
		Status:       o.Status,
		Address:      o.Address,
		TotalPrice:   numericString(o.TotalPrice),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if o.CourierID.Valid {
		id := uuid.UUID(o.CourierID.Bytes)
		resp.CourierID = &id
	}
	return resp
}

func toOrderEventResponse(e database.OrderEvent) orderEventResponse {
	resp := orderEventResponse{
		ID:        e.ID,
		EventType: e.EventType,
		ActorID:   e.ActorID,
		CreatedAt: e.CreatedAt,
	}
	if e.OldStatus.Valid {
		resp.OldStatus = &e.OldStatus.String
	}
	if e.NewStatus.Valid {
		resp.NewStatus = &e.NewStatus.String
	}
	return resp
}

// --- Query parsing ---

// parseOrderQuery maps the request's query string onto filter criteria,
// preserving the left-to-right accumulation order of the parameters.
func parseOrderQuery(r *http.Request) (filter.OrderParams, error) {
	q := r.URL.Query()
	var p filter.OrderParams

	if v := q.Get("status"); v != "" {
		if !enum.IsValidOrderStatus(v) {
			return p, errors.New("invalid status")
		}
		p.Status = v
	}
	if v := q.Get("date_from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return p, errors.New("invalid date_from")
		}
		p.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return p, errors.New("invalid date_to")
		}
		p.DateTo = &t
	}
	if v := q.Get("min_total"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return p, errors.New("invalid min_total")
		}
		p.MinTotal = &d
	}
	if v := q.Get("max_total"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return p, errors.New("invalid max_total")
		}
		p.MaxTotal = &d
	}
	p.Search = q.Get("search")
	p.HighPriority = q.Get("high_priority") == "true"
	p.Active = q.Get("active") == "true"
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// --- Handlers ---

// List returns orders matching the query filters, visible to the caller's
// role: customers see their own orders, owners their restaurants' orders,
// couriers their deliveries, admins everything.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	params, err := parseOrderQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, offset := parsePagination(r)

	pred := filter.Orders(params, filter.Principal{UserID: claims.UserID, Role: claims.Role})
	rows, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		Pred:   pred,
		Sort:   r.URL.Query().Get("sort"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		if filter.IsUnknownField(err) || errors.Is(err, database.ErrUnknownSort) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(rows))
	for i, row := range rows {
		or := toOrderResponse(row.Order)
		or.CustomerUsername = row.CustomerUsername
		or.RestaurantName = row.RestaurantName
		resp[i] = or
	}
	writeJSON(w, http.StatusOK, resp)
}

// My returns the caller's own orders regardless of role.
func (h *OrderHandler) My(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	params, err := parseOrderQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, offset := parsePagination(r)

	// Force the customer scope even for admins and owners.
	pred := filter.Orders(params, filter.Principal{UserID: claims.UserID, Role: enum.UserRoleCustomer})
	rows, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		Pred:   pred,
		Sort:   r.URL.Query().Get("sort"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		if filter.IsUnknownField(err) || errors.Is(err, database.ErrUnknownSort) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: list own orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(rows))
	for i, row := range rows {
		or := toOrderResponse(row.Order)
		or.CustomerUsername = row.CustomerUsername
		or.RestaurantName = row.RestaurantName
		resp[i] = or
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns one order with its items.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	order, ok := h.loadOrderForViewer(w, r, claims.UserID, claims.Role)
	if !ok {
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toOrderResponse(order)
	for _, item := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       numericString(item.Price),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListEvents returns the order's audit trail, oldest first.
func (h *OrderHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	order, ok := h.loadOrderForViewer(w, r, claims.UserID, claims.Role)
	if !ok {
		return
	}

	evs, err := h.store.ListOrderEventsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list order events: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderEventResponse, len(evs))
	for i, e := range evs {
		resp[i] = toOrderEventResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus moves the order through its lifecycle.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	actor := service.Actor{ID: claims.UserID, Role: claims.Role}
	order, err := h.lifecycle.ChangeStatus(r.Context(), actor, orderID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrForbidden):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		case errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		default:
			log.Printf("ERROR: change order status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.notifyStatusChanged(r.Context(), order, req.Status)
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// AssignCourier attaches a courier to the order. Admin only.
func (h *OrderHandler) AssignCourier(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req assignCourierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	courierID, err := uuid.Parse(req.CourierID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid courier_id"})
		return
	}

	actor := service.Actor{ID: claims.UserID, Role: claims.Role}
	order, err := h.lifecycle.AssignCourier(r.Context(), actor, orderID, courierID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrOrderPending):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrCourierInactive):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order or courier not found"})
		default:
			log.Printf("ERROR: assign courier: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.notifyCourierAssigned(r.Context(), order, courierID)
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// --- Helpers ---

// loadOrderForViewer fetches the order and verifies the caller may see it:
// the customer who placed it, the restaurant's owner, the assigned courier,
// or an admin. On failure the response is already written.
func (h *OrderHandler) loadOrderForViewer(w http.ResponseWriter, r *http.Request, userID uuid.UUID, role string) (database.Order, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return database.Order{}, false
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return database.Order{}, false
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Order{}, false
	}

	if role == enum.UserRoleAdmin || order.CustomerID == userID {
		return order, true
	}
	if role == enum.UserRoleOwner {
		restaurant, err := h.store.GetRestaurant(r.Context(), order.RestaurantID)
		if err != nil {
			log.Printf("ERROR: get restaurant: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return database.Order{}, false
		}
		if restaurant.OwnerID == userID {
			return order, true
		}
	}
	if role == enum.UserRoleCourier && order.CourierID.Valid {
		courier, err := h.store.GetCourier(r.Context(), uuid.UUID(order.CourierID.Bytes))
		if err != nil {
			log.Printf("ERROR: get courier: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return database.Order{}, false
		}
		if courier.UserID == userID {
			return order, true
		}
	}

	writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
	return database.Order{}, false
}

func (h *OrderHandler) notifyStatusChanged(ctx context.Context, order database.Order, newStatus string) {
	if h.hub != nil {
		payload, err := json.Marshal(map[string]string{
			"order_id":   order.ID.String(),
			"new_status": newStatus,
		})
		if err == nil {
			h.hub.BroadcastToRestaurant(order.RestaurantID, ws.Event{
				Type:    enum.EventStatusChanged,
				Payload: payload,
			})
		}
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, events.KeyStatusChanged, events.OrderMessage{
			OrderID:      order.ID.String(),
			RestaurantID: order.RestaurantID.String(),
			CustomerID:   order.CustomerID.String(),
			NewStatus:    newStatus,
		}); err != nil {
			log.Printf("ERROR: publish status change: %v", err)
		}
	}
}

func (h *OrderHandler) notifyCourierAssigned(ctx context.Context, order database.Order, courierID uuid.UUID) {
	if h.hub != nil {
		payload, err := json.Marshal(map[string]string{
			"order_id":   order.ID.String(),
			"courier_id": courierID.String(),
		})
		if err == nil {
			h.hub.BroadcastToRestaurant(order.RestaurantID, ws.Event{
				Type:    enum.EventCourierAssigned,
				Payload: payload,
			})
		}
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, events.KeyCourierAssigned, events.OrderMessage{
			OrderID:      order.ID.String(),
			RestaurantID: order.RestaurantID.String(),
			CustomerID:   order.CustomerID.String(),
			CourierID:    courierID.String(),
			NewStatus:    order.Status,
		}); err != nil {
			log.Printf("ERROR: publish courier assignment: %v", err)
		}
	}
}
