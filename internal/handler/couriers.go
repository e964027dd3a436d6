package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
)

// CourierStore defines the database methods needed by courier handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CourierStore interface {
	CreateCourier(ctx context.Context, arg database.CreateCourierParams) (database.Courier, error)
	GetCourier(ctx context.Context, id uuid.UUID) (database.Courier, error)
	ListCouriers(ctx context.Context) ([]database.ListCouriersRow, error)
	UpdateCourier(ctx context.Context, arg database.UpdateCourierParams) (database.Courier, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

// CourierHandler handles courier administration. Admin only.
type CourierHandler struct {
	store CourierStore
}

// NewCourierHandler creates a new CourierHandler.
func NewCourierHandler(store CourierStore) *CourierHandler {
	return &CourierHandler{store: store}
}

// RegisterRoutes registers courier endpoints on the given Chi router.
// The router group is expected to already require the admin role.
func (h *CourierHandler) RegisterRoutes(r chi.Router) {
	r.Get("/couriers", h.List)
	r.Post("/couriers", h.Create)
	r.Get("/couriers/{id}", h.Get)
	r.Put("/couriers/{id}", h.Update)
}

type courierRequest struct {
	UserID   string `json:"user_id"`
	Phone    string `json:"phone"`
	IsActive *bool  `json:"is_active"`
}

type courierResponse struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Phone    string    `json:"phone"`
	IsActive bool      `json:"is_active"`
}

func toCourierResponse(c database.Courier, username string) courierResponse {
	return courierResponse{
		ID:       c.ID,
		UserID:   c.UserID,
		Username: username,
		Phone:    c.Phone,
		IsActive: c.IsActive,
	}
}

// Create registers a courier profile for an existing user with the
// courier role.
func (h *CourierHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req courierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		log.Printf("ERROR: get user: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if user.Role != enum.UserRoleCourier {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user does not have the courier role"})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	courier, err := h.store.CreateCourier(r.Context(), database.CreateCourierParams{
		UserID:   userID,
		Phone:    req.Phone,
		IsActive: isActive,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "courier profile already exists for this user"})
			return
		}
		log.Printf("ERROR: create courier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toCourierResponse(courier, user.Username))
}

// List returns all couriers with their usernames.
func (h *CourierHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListCouriers(r.Context())
	if err != nil {
		log.Printf("ERROR: list couriers: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]courierResponse, len(rows))
	for i, row := range rows {
		resp[i] = toCourierResponse(row.Courier, row.Username)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns one courier by ID.
func (h *CourierHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid courier ID"})
		return
	}

	courier, err := h.store.GetCourier(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "courier not found"})
			return
		}
		log.Printf("ERROR: get courier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCourierResponse(courier, ""))
}

// Update changes a courier's phone or active flag.
func (h *CourierHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid courier ID"})
		return
	}

	var req courierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	existing, err := h.store.GetCourier(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "courier not found"})
			return
		}
		log.Printf("ERROR: get courier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	phone := existing.Phone
	if p := strings.TrimSpace(req.Phone); p != "" {
		phone = p
	}
	isActive := existing.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	courier, err := h.store.UpdateCourier(r.Context(), database.UpdateCourierParams{
		ID:       id,
		Phone:    phone,
		IsActive: isActive,
	})
	if err != nil {
		log.Printf("ERROR: update courier: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCourierResponse(courier, ""))
}
