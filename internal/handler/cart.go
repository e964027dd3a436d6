package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
	"github.com/timqwees/delivery-api/internal/events"
	"github.com/timqwees/delivery-api/internal/middleware"
	"github.com/timqwees/delivery-api/internal/service"
	"github.com/timqwees/delivery-api/internal/ws"
)

// CartStore defines the database methods needed by cart handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CartStore interface {
	GetCart(ctx context.Context, userID uuid.UUID) (database.Cart, error)
	SaveCart(ctx context.Context, userID uuid.UUID, items map[uuid.UUID]int32) error
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Product, error)
}

// checkoutService is the slice of CheckoutService the handler needs.
type checkoutService interface {
	Checkout(ctx context.Context, customerID uuid.UUID, address string) (*service.CheckoutResult, error)
}

// eventPublisher is the slice of events.Publisher the handler needs.
type eventPublisher interface {
	Publish(ctx context.Context, key string, msg events.OrderMessage) error
}

// CartHandler handles the customer's cart and checkout.
type CartHandler struct {
	store     CartStore
	checkout  checkoutService
	hub       *ws.Hub
	publisher eventPublisher
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(store CartStore, checkout checkoutService, hub *ws.Hub, publisher eventPublisher) *CartHandler {
	return &CartHandler{store: store, checkout: checkout, hub: hub, publisher: publisher}
}

// RegisterRoutes registers cart endpoints on the given Chi router.
// All of them require an authenticated customer.
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Get("/cart", h.Get)
	r.Post("/cart/items", h.AddItem)
	r.Put("/cart/items/{productID}", h.UpdateItem)
	r.Delete("/cart/items/{productID}", h.RemoveItem)
	r.Post("/checkout", h.Checkout)
}

// --- Request / Response types ---

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int32 `json:"quantity"`
}

type checkoutRequest struct {
	Address string `json:"address"`
}

type cartItemResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Quantity  int32     `json:"quantity"`
	Subtotal  string    `json:"subtotal"`
}

type cartResponse struct {
	Items []cartItemResponse `json:"items"`
	Total string             `json:"total"`
}

type checkoutItemResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	Price     string    `json:"price"`
}

type checkoutResponse struct {
	ID           uuid.UUID              `json:"id"`
	RestaurantID uuid.UUID              `json:"restaurant_id"`
	Status       string                 `json:"status"`
	Address      string                 `json:"address"`
	TotalPrice   string                 `json:"total_price"`
	Items        []checkoutItemResponse `json:"items"`
}

// --- Handlers ---

// Get returns the cart with current catalog prices and a running total.
// These prices are informational; the binding snapshot happens at checkout.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	cart, err := h.store.GetCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := cartResponse{Items: []cartItemResponse{}, Total: "0.00"}
	if len(cart.Items) == 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	for id := range cart.Items {
		ids = append(ids, id)
	}
	products, err := h.store.GetProductsByIDs(r.Context(), ids)
	if err != nil {
		log.Printf("ERROR: resolve cart products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	total := decimal.Zero
	for _, p := range products {
		qty := cart.Items[p.ID]
		price, _ := decimal.NewFromString(numericString(p.Price))
		subtotal := price.Mul(decimal.NewFromInt32(qty))
		total = total.Add(subtotal)
		resp.Items = append(resp.Items, cartItemResponse{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     price.StringFixed(2),
			Quantity:  qty,
			Subtotal:  subtotal.StringFixed(2),
		})
	}
	resp.Total = total.StringFixed(2)
	writeJSON(w, http.StatusOK, resp)
}

// AddItem puts a product in the cart or increases its quantity.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
		return
	}
	if req.Quantity < 1 || req.Quantity > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be between 1 and 100"})
		return
	}

	if _, err := h.store.GetProduct(r.Context(), productID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	cart, err := h.store.GetCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	newQty := cart.Items[productID] + req.Quantity
	if newQty > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be between 1 and 100"})
		return
	}
	cart.Items[productID] = newQty

	if err := h.store.SaveCart(r.Context(), claims.UserID, cart.Items); err != nil {
		log.Printf("ERROR: save cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.Get(w, r)
}

// UpdateItem sets a cart line's quantity. Quantity zero removes the line.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Quantity < 0 || req.Quantity > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be between 1 and 100"})
		return
	}

	cart, err := h.store.GetCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if _, ok := cart.Items[productID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not in cart"})
		return
	}
	if req.Quantity == 0 {
		delete(cart.Items, productID)
	} else {
		cart.Items[productID] = req.Quantity
	}

	if err := h.store.SaveCart(r.Context(), claims.UserID, cart.Items); err != nil {
		log.Printf("ERROR: save cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.Get(w, r)
}

// RemoveItem deletes a product from the cart.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	cart, err := h.store.GetCart(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: get cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if _, ok := cart.Items[productID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not in cart"})
		return
	}
	delete(cart.Items, productID)

	if err := h.store.SaveCart(r.Context(), claims.UserID, cart.Items); err != nil {
		log.Printf("ERROR: save cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Checkout turns the cart into an order and notifies the restaurant's
// dashboard and the message broker once the transaction has committed.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.checkout.Checkout(r.Context(), claims.UserID, req.Address)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAddress),
			errors.Is(err, service.ErrEmptyCart),
			errors.Is(err, service.ErrInvalidQuantity),
			errors.Is(err, service.ErrProductNotFound),
			errors.Is(err, service.ErrMixedRestaurantCart):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: checkout: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.notifyOrderCreated(r.Context(), result.Order)

	resp := checkoutResponse{
		ID:           result.Order.ID,
		RestaurantID: result.Order.RestaurantID,
		Status:       result.Order.Status,
		Address:      result.Order.Address,
		TotalPrice:   numericString(result.Order.TotalPrice),
	}
	for _, item := range result.Items {
		resp.Items = append(resp.Items, checkoutItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     numericString(item.Price),
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CartHandler) notifyOrderCreated(ctx context.Context, order database.Order) {
	if h.hub != nil {
		payload, err := json.Marshal(map[string]string{
			"order_id":    order.ID.String(),
			"status":      order.Status,
			"total_price": numericString(order.TotalPrice),
		})
		if err == nil {
			h.hub.BroadcastToRestaurant(order.RestaurantID, ws.Event{
				Type:    enum.EventOrderCreated,
				Payload: payload,
			})
		}
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, events.KeyOrderCreated, events.OrderMessage{
			OrderID:      order.ID.String(),
			RestaurantID: order.RestaurantID.String(),
			CustomerID:   order.CustomerID.String(),
			NewStatus:    order.Status,
			TotalPrice:   numericString(order.TotalPrice),
		}); err != nil {
			log.Printf("ERROR: publish order created: %v", err)
		}
	}
}
