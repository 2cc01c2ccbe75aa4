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
	"github.com/tapri-pos/api/internal/auth"
	"github.com/tapri-pos/api/internal/database"
	"github.com/tapri-pos/api/internal/enum"
	"github.com/tapri-pos/api/internal/handler"
	"golang.org/x/crypto/bcrypt"
)

type mockAuthStore struct {
	getUserByEmailFn func(ctx context.Context, email string) (database.User, error)
}

func (m *mockAuthStore) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	return m.getUserByEmailFn(ctx, email)
}

func loginRouter(store *mockAuthStore) chi.Router {
	r := chi.NewRouter()
	handler.NewAuthHandler(store, testJWTSecret).RegisterRoutes(r)
	return r
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("chai-pani"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	user := database.User{
		ID:           uuid.New(),
		FullName:     "Ravi Cashier",
		Email:        "ravi@tapri.in",
		PasswordHash: string(hash),
		Role:         enum.UserRoleCashier,
		IsActive:     true,
	}
	store := &mockAuthStore{
		getUserByEmailFn: func(ctx context.Context, email string) (database.User, error) {
			if email == user.Email {
				return user, nil
			}
			return database.User{}, pgx.ErrNoRows
		},
	}
	r := loginRouter(store)

	body, _ := json.Marshal(map[string]string{"email": "ravi@tapri.in", "password": "chai-pani"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		User        struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.User.Email != user.Email || resp.User.Role != enum.UserRoleCashier {
		t.Errorf("unexpected user: %+v", resp.User)
	}

	claims, err := auth.ValidateToken(testJWTSecret, resp.AccessToken)
	if err != nil {
		t.Fatalf("returned token does not validate: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enum.UserRoleCashier {
		t.Errorf("claims = %+v", claims)
	}
}

func TestLoginRejections(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	store := &mockAuthStore{
		getUserByEmailFn: func(ctx context.Context, email string) (database.User, error) {
			if email == "known@tapri.in" {
				return database.User{
					ID:           uuid.New(),
					Email:        email,
					PasswordHash: string(hash),
					Role:         enum.UserRoleAdmin,
					IsActive:     true,
				}, nil
			}
			return database.User{}, pgx.ErrNoRows
		},
	}
	r := loginRouter(store)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"unknown email", map[string]string{"email": "ghost@tapri.in", "password": "x"}, http.StatusUnauthorized},
		{"wrong password", map[string]string{"email": "known@tapri.in", "password": "wrong"}, http.StatusUnauthorized},
		{"missing fields", map[string]string{"email": "known@tapri.in"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
