package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
	"github.com/timqwees/delivery-api/internal/filter"
	"github.com/timqwees/delivery-api/internal/middleware"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	ListProducts(ctx context.Context, arg database.ListProductsParams) ([]database.ListProductsRow, error)
	ListPopularProducts(ctx context.Context) ([]database.ListPopularProductsRow, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	UpdateProductPrice(ctx context.Context, arg database.UpdateProductPriceParams) (database.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetRestaurant(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
}

// ProductHandler handles product catalog and management endpoints.
type ProductHandler struct {
	store ProductStore
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(store ProductStore) *ProductHandler {
	return &ProductHandler{store: store}
}

// RegisterPublicRoutes registers the unauthenticated catalog endpoints.
func (h *ProductHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/products", h.List)
	r.Get("/products/popular", h.Popular)
	r.Get("/products/{id}", h.Get)
}

// RegisterProtectedRoutes registers the owner/admin management endpoints.
func (h *ProductHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/products/my", h.My)
	r.Post("/products", h.Create)
	r.Put("/products/{id}", h.Update)
	r.Patch("/products/{id}/price", h.UpdatePrice)
	r.Delete("/products/{id}", h.Delete)
}

// --- Request / Response types ---

type createProductRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        string `json:"price"`
	RestaurantID string `json:"restaurant_id"`
}

type updateProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

type updatePriceRequest struct {
	Price string `json:"price"`
}

type productResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Price          string    `json:"price"`
	RestaurantID   uuid.UUID `json:"restaurant_id"`
	RestaurantName string    `json:"restaurant_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toProductResponse(p database.Product, restaurantName string) productResponse {
	return productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          numericString(p.Price),
		RestaurantID:   p.RestaurantID,
		RestaurantName: restaurantName,
		CreatedAt:      p.CreatedAt,
	}
}

// --- Helpers ---

var (
	errPriceRequired   = errors.New("price is required")
	errPriceNotNumber  = errors.New("price is not a number")
	errPriceOutOfRange = errors.New("price out of range")
)

// parsePrice enforces the menu price bounds: positive, at most 100000.
func parsePrice(s string) (pgtype.Numeric, error) {
	if s == "" {
		return pgtype.Numeric{}, errPriceRequired
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return pgtype.Numeric{}, errPriceNotNumber
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(100000)) {
		return pgtype.Numeric{}, errPriceOutOfRange
	}
	var n pgtype.Numeric
	if err := n.Scan(d.StringFixed(2)); err != nil {
		return pgtype.Numeric{}, err
	}
	return n, nil
}

func writePriceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errPriceRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price is required"})
	case errors.Is(err, errPriceNotNumber):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price must be a number"})
	case errors.Is(err, errPriceOutOfRange):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price must be positive and at most 100000"})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
	}
}

// parseProductQuery maps the request's query string onto filter criteria.
func parseProductQuery(r *http.Request) (filter.ProductParams, error) {
	q := r.URL.Query()
	var p filter.ProductParams

	if v := q.Get("min_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return p, errors.New("invalid min_price")
		}
		p.MinPrice = &d
	}
	if v := q.Get("max_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return p, errors.New("invalid max_price")
		}
		p.MaxPrice = &d
	}
	p.PriceRange = q.Get("price_range")
	p.Search = q.Get("search")
	if v := q.Get("restaurant_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return p, errors.New("invalid restaurant_id")
		}
		p.RestaurantID = &id
	}
	return p, nil
}

func parsePagination(r *http.Request) (limit, offset int32) {
	q := r.URL.Query()
	limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n > 0 {
			limit = int32(n)
			if limit > maxPageSize {
				limit = maxPageSize
			}
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}

// --- Handlers ---

// List is the public catalog listing with filters. Criteria accumulate
// left to right across the query string.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, nil)
}

// My lists products scoped to the authenticated owner's restaurants.
func (h *ProductHandler) My(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	h.list(w, r, &filter.Principal{UserID: claims.UserID, Role: claims.Role})
}

func (h *ProductHandler) list(w http.ResponseWriter, r *http.Request, principal *filter.Principal) {
	params, err := parseProductQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, offset := parsePagination(r)

	rows, err := h.store.ListProducts(r.Context(), database.ListProductsParams{
		Pred:   filter.Products(params, principal),
		Sort:   r.URL.Query().Get("sort"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		if filter.IsUnknownField(err) || errors.Is(err, database.ErrUnknownSort) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(rows))
	for i, row := range rows {
		resp[i] = toProductResponse(row.Product, row.RestaurantName)
	}
	writeJSON(w, http.StatusOK, resp)
}

type popularProductResponse struct {
	productResponse
	TotalOrdered int64 `json:"total_ordered"`
}

// Popular returns the ten most ordered products, ranked by total quantity
// across non-cancelled orders.
func (h *ProductHandler) Popular(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListPopularProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: list popular products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]popularProductResponse, len(rows))
	for i, row := range rows {
		resp[i] = popularProductResponse{
			productResponse: toProductResponse(row.Product, row.RestaurantName),
			TotalOrdered:    row.TotalOrdered,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single product by ID.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product, ""))
}

// Create adds a product to one of the owner's restaurants.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.RestaurantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "restaurant_id is required"})
		return
	}
	restaurantID, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant_id"})
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		writePriceError(w, err)
		return
	}

	restaurant, err := h.store.GetRestaurant(r.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
			return
		}
		log.Printf("ERROR: get restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if claims.Role != enum.UserRoleAdmin && restaurant.OwnerID != claims.UserID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not your restaurant"})
		return
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		Name:         req.Name,
		Description:  req.Description,
		Price:        price,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "product name already exists in this restaurant"})
			return
		}
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product, restaurant.Name))
}

// Update modifies a product's name, description and price.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		writePriceError(w, err)
		return
	}

	if _, err := h.authorizeProduct(w, r, claims.UserID, claims.Role, id); err != nil {
		return
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		if database.IsUniqueViolation(err, "") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "product name already exists in this restaurant"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product, ""))
}

// UpdatePrice changes only the product's price. Existing order items keep
// the price they were bought at.
func (h *ProductHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req updatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		writePriceError(w, err)
		return
	}

	if _, err := h.authorizeProduct(w, r, claims.UserID, claims.Role, id); err != nil {
		return
	}

	product, err := h.store.UpdateProductPrice(r.Context(), database.UpdateProductPriceParams{
		ID:    id,
		Price: price,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: update product price: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product, ""))
}

// Delete removes a product from the menu.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	if _, err := h.authorizeProduct(w, r, claims.UserID, claims.Role, id); err != nil {
		return
	}

	if err := h.store.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// authorizeProduct loads the product and verifies the caller may manage it.
// On failure it writes the response and returns a non-nil error.
func (h *ProductHandler) authorizeProduct(w http.ResponseWriter, r *http.Request, userID uuid.UUID, role string, productID uuid.UUID) (database.Product, error) {
	product, err := h.store.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return database.Product{}, err
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Product{}, err
	}
	if role == enum.UserRoleAdmin {
		return product, nil
	}
	restaurant, err := h.store.GetRestaurant(r.Context(), product.RestaurantID)
	if err != nil {
		log.Printf("ERROR: get restaurant: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Product{}, err
	}
	if restaurant.OwnerID != userID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not your restaurant"})
		return database.Product{}, errors.New("forbidden")
	}
	return product, nil
}
