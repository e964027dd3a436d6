package router

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/timqwees/delivery-api/internal/config"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
	"github.com/timqwees/delivery-api/internal/events"
	"github.com/timqwees/delivery-api/internal/handler"
	mw "github.com/timqwees/delivery-api/internal/middleware"
	"github.com/timqwees/delivery-api/internal/service"
	"github.com/timqwees/delivery-api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, publisher *events.Publisher) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// Public catalog
	restaurantHandler := handler.NewRestaurantHandler(queries)
	restaurantHandler.RegisterPublicRoutes(r)
	productHandler := handler.NewProductHandler(queries)
	productHandler.RegisterPublicRoutes(r)

	// WebSocket route (handles auth internally via query param)
	ownsRestaurant := func(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error) {
		restaurant, err := queries.GetRestaurant(ctx, restaurantID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return false, nil
			}
			return false, err
		}
		return restaurant.OwnerID == userID, nil
	}
	r.Get("/ws/restaurants/{rid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, ownsRestaurant, w, r)
	})

	// Services share the pool for transactional work.
	checkoutService := service.NewCheckoutService(pool, func(db database.DBTX) service.CheckoutStore {
		return database.New(db)
	})
	lifecycleService := service.NewLifecycleService(pool, func(db database.DBTX) service.LifecycleStore {
		return database.New(db)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Cart and checkout (customers)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleCustomer))
			cartHandler := handler.NewCartHandler(queries, checkoutService, hub, publisher)
			cartHandler.RegisterRoutes(r)
		})

		// Restaurant and product management (owners and admins)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleAdmin))
			restaurantHandler.RegisterProtectedRoutes(r)
			productHandler.RegisterProtectedRoutes(r)
		})

		// Courier administration (admins)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			courierHandler := handler.NewCourierHandler(queries)
			courierHandler.RegisterRoutes(r)
		})

		// Orders (any authenticated role; per-order access checked inside)
		orderHandler := handler.NewOrderHandler(queries, lifecycleService, hub, publisher)
		orderHandler.RegisterRoutes(r)
	})

	return r
}
