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
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
	"github.com/timqwees/delivery-api/internal/filter"
	"github.com/timqwees/delivery-api/internal/middleware"
)

// RestaurantStore defines the database methods needed by restaurant handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type RestaurantStore interface {
	CreateRestaurant(ctx context.Context, arg database.CreateRestaurantParams) (database.Restaurant, error)
	GetRestaurant(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
	ListRestaurants(ctx context.Context, arg database.ListRestaurantsParams) ([]database.Restaurant, error)
	ListRestaurantsByOwner(ctx context.Context, ownerID uuid.UUID) ([]database.Restaurant, error)
	UpdateRestaurant(ctx context.Context, arg database.UpdateRestaurantParams) (database.Restaurant, error)
	DeleteRestaurant(ctx context.Context, id uuid.UUID) error
	ListProductsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]database.Product, error)
}

// RestaurantHandler handles restaurant CRUD endpoints.
type RestaurantHandler struct {
	store RestaurantStore
}

// NewRestaurantHandler creates a new RestaurantHandler.
func NewRestaurantHandler(store RestaurantStore) *RestaurantHandler {
	return &RestaurantHandler{store: store}
}

// RegisterPublicRoutes registers the unauthenticated catalog endpoints.
func (h *RestaurantHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/restaurants", h.List)
	r.Get("/restaurants/{id}", h.Get)
	r.Get("/restaurants/{id}/products", h.ListProducts)
}

// RegisterProtectedRoutes registers the owner/admin management endpoints.
func (h *RestaurantHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/restaurants/my", h.My)
	r.Post("/restaurants", h.Create)
	r.Put("/restaurants/{id}", h.Update)
	r.Delete("/restaurants/{id}", h.Delete)
}

// --- Request / Response types ---

type restaurantRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type restaurantResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

func toRestaurantResponse(r database.Restaurant) restaurantResponse {
	return restaurantResponse{
		ID:        r.ID,
		Name:      r.Name,
		Address:   r.Address,
		Phone:     r.Phone,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
	}
}

// --- Handlers ---

// parseRestaurantQuery maps the request's query string onto filter criteria.
func parseRestaurantQuery(r *http.Request) (filter.RestaurantParams, error) {
	q := r.URL.Query()
	var p filter.RestaurantParams

	p.Name = q.Get("name")
	p.Search = q.Get("search")
	if v := q.Get("owner_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return p, errors.New("invalid owner_id")
		}
		p.OwnerID = &id
	}
	return p, nil
}

// List returns the restaurant catalog, filtered by the query string and
// sorted by name unless a sort key says otherwise.
func (h *RestaurantHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := parseRestaurantQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	restaurants, err := h.store.ListRestaurants(r.Context(), database.ListRestaurantsParams{
		Pred: filter.Restaurants(params),
		Sort: r.URL.Query().Get("sort"),
	})
	if err != nil {
		if filter.IsUnknownField(err) || errors.Is(err, database.ErrUnknownSort) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: list restaurants: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]restaurantResponse, len(restaurants))
	for i, rest := range restaurants {
		resp[i] = toRestaurantResponse(rest)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single restaurant by ID.
func (h *RestaurantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	restaurant, err := h.store.GetRestaurant(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
			return
		}
		log.Printf("ERROR: get restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toRestaurantResponse(restaurant))
}

// ListProducts returns a restaurant's menu.
func (h *RestaurantHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	if _, err := h.store.GetRestaurant(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
			return
		}
		log.Printf("ERROR: get restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	products, err := h.store.ListProductsByRestaurant(r.Context(), id)
	if err != nil {
		log.Printf("ERROR: list restaurant products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p, "")
	}
	writeJSON(w, http.StatusOK, resp)
}

// My returns the restaurants owned by the authenticated owner.
func (h *RestaurantHandler) My(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	restaurants, err := h.store.ListRestaurantsByOwner(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: list own restaurants: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]restaurantResponse, len(restaurants))
	for i, rest := range restaurants {
		resp[i] = toRestaurantResponse(rest)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create registers a new restaurant for the authenticated owner.
func (h *RestaurantHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req restaurantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and address are required"})
		return
	}

	restaurant, err := h.store.CreateRestaurant(r.Context(), database.CreateRestaurantParams{
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
		OwnerID: claims.UserID,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "restaurant name already taken"})
			return
		}
		log.Printf("ERROR: create restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toRestaurantResponse(restaurant))
}

// Update modifies a restaurant. Owners may only touch their own.
func (h *RestaurantHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	var req restaurantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and address are required"})
		return
	}

	existing, err := h.store.GetRestaurant(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
			return
		}
		log.Printf("ERROR: get restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if claims.Role != enum.UserRoleAdmin && existing.OwnerID != claims.UserID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not your restaurant"})
		return
	}

	restaurant, err := h.store.UpdateRestaurant(r.Context(), database.UpdateRestaurantParams{
		ID:      id,
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "restaurant name already taken"})
			return
		}
		log.Printf("ERROR: update restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toRestaurantResponse(restaurant))
}

// Delete removes a restaurant and, through cascades, its products.
func (h *RestaurantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	existing, err := h.store.GetRestaurant(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
			return
		}
		log.Printf("ERROR: get restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if claims.Role != enum.UserRoleAdmin && existing.OwnerID != claims.UserID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not your restaurant"})
		return
	}

	if err := h.store.DeleteRestaurant(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
			return
		}
		log.Printf("ERROR: delete restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
