package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/timqwees/delivery-api/internal/auth"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/enum"
	"github.com/timqwees/delivery-api/internal/handler"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// --- Shared helpers ---

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// doAuthRequest sends a request carrying a real bearer token so the
// Authenticate middleware populates the claims the handlers read.
func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, userID uuid.UUID, role string) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testSecret, userID, "tester", role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func newUnauthRequest(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	return httptest.NewRequest(method, path, nil), httptest.NewRecorder()
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func decodeListResponse(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	return resp
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(h)
}

func makeNumeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		t.Fatalf("scan numeric %q: %v", s, err)
	}
	return n
}

// uniqueViolation builds the error Postgres raises on a duplicate key.
func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

// --- Mock store ---

type mockAuthStore struct {
	usersByName map[string]database.User
}

func newMockAuthStore() *mockAuthStore {
	return &mockAuthStore{usersByName: make(map[string]database.User)}
}

func (m *mockAuthStore) CreateUser(_ context.Context, arg database.CreateUserParams) (database.User, error) {
	if _, exists := m.usersByName[arg.Username]; exists {
		return database.User{}, uniqueViolation()
	}
	u := database.User{
		ID:           uuid.New(),
		Username:     arg.Username,
		Email:        arg.Email,
		PasswordHash: arg.PasswordHash,
		Role:         arg.Role,
	}
	m.usersByName[u.Username] = u
	return u, nil
}

func (m *mockAuthStore) GetUserByUsername(_ context.Context, username string) (database.User, error) {
	u, ok := m.usersByName[username]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func newAuthRouter(store *mockAuthStore) *chi.Mux {
	h := handler.NewAuthHandler(store, testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// --- Register tests ---

func TestRegister_DefaultsToCustomer(t *testing.T) {
	store := newMockAuthStore()
	r := newAuthRouter(store)

	rr := postJSON(t, r, "/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@test.com",
		"password": "password123",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["token"] == nil || resp["token"] == "" {
		t.Error("expected non-empty token")
	}
	userResp, ok := resp["user"].(map[string]interface{})
	if !ok {
		t.Fatal("expected user object in response")
	}
	if userResp["role"] != enum.UserRoleCustomer {
		t.Errorf("role: got %v, want %s", userResp["role"], enum.UserRoleCustomer)
	}
}

func TestRegister_OwnerRoleAccepted(t *testing.T) {
	r := newAuthRouter(newMockAuthStore())

	rr := postJSON(t, r, "/auth/register", map[string]string{
		"username": "bob",
		"email":    "bob@test.com",
		"password": "password123",
		"role":     enum.UserRoleOwner,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
}

func TestRegister_AdminRoleRejected(t *testing.T) {
	r := newAuthRouter(newMockAuthStore())

	rr := postJSON(t, r, "/auth/register", map[string]string{
		"username": "mallory",
		"email":    "mallory@test.com",
		"password": "password123",
		"role":     enum.UserRoleAdmin,
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegister_UnknownRoleRejected(t *testing.T) {
	r := newAuthRouter(newMockAuthStore())

	rr := postJSON(t, r, "/auth/register", map[string]string{
		"username": "eve",
		"email":    "eve@test.com",
		"password": "password123",
		"role":     "superuser",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	r := newAuthRouter(newMockAuthStore())

	rr := postJSON(t, r, "/auth/register", map[string]string{
		"username": "carol",
		"email":    "carol@test.com",
		"password": "short",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	store := newMockAuthStore()
	store.usersByName["alice"] = database.User{ID: uuid.New(), Username: "alice"}
	r := newAuthRouter(store)

	rr := postJSON(t, r, "/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice2@test.com",
		"password": "password123",
	})

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

// --- Login tests ---

func TestLogin_ValidCredentials(t *testing.T) {
	store := newMockAuthStore()
	userID := uuid.New()
	store.usersByName["alice"] = database.User{
		ID:           userID,
		Username:     "alice",
		Email:        "alice@test.com",
		PasswordHash: hashPassword(t, "correct-password"),
		Role:         enum.UserRoleCustomer,
	}
	r := newAuthRouter(store)

	rr := postJSON(t, r, "/auth/login", map[string]string{
		"username": "alice",
		"password": "correct-password",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	token, ok := resp["token"].(string)
	if !ok || token == "" {
		t.Fatal("expected non-empty token string")
	}

	claims, err := auth.ValidateToken(testSecret, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("claims user ID: got %v, want %v", claims.UserID, userID)
	}
	if claims.Role != enum.UserRoleCustomer {
		t.Errorf("claims role: got %v, want %s", claims.Role, enum.UserRoleCustomer)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	store := newMockAuthStore()
	store.usersByName["alice"] = database.User{
		ID:           uuid.New(),
		Username:     "alice",
		PasswordHash: hashPassword(t, "correct-password"),
		Role:         enum.UserRoleCustomer,
	}
	r := newAuthRouter(store)

	rr := postJSON(t, r, "/auth/login", map[string]string{
		"username": "alice",
		"password": "wrong-password",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_UserNotFound(t *testing.T) {
	r := newAuthRouter(newMockAuthStore())

	rr := postJSON(t, r, "/auth/login", map[string]string{
		"username": "nobody",
		"password": "password123",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	r := newAuthRouter(newMockAuthStore())

	rr := postJSON(t, r, "/auth/login", map[string]string{
		"username": "alice",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
