//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tapri-pos/api/internal/config"
	"github.com/tapri-pos/api/internal/database"
	"github.com/tapri-pos/api/internal/enum"
	"github.com/tapri-pos/api/internal/router"
	"github.com/tapri-pos/api/internal/ws"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestOrderPlacementIntegration exercises the full stack against a real
// PostgreSQL database: seeding, placement, stock deduction, the audit log,
// lifecycle transitions, and the all-or-nothing rollback property.
func TestOrderPlacementIntegration(t *testing.T) {
	ctx := context.Background()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	cfg := &config.Config{
		Port:        "8082",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
		LockTimeout: "3s",
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit; the Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	r := router.New(cfg, queries, pool, hub)
	server := httptest.NewServer(r)
	defer server.Close()

	// --- Bootstrap an admin directly in the DB, then log in over HTTP ---
	seedStaff(t, ctx, pool, "admin@test.in", "password123", enum.UserRoleAdmin)
	token := login(t, server, "admin@test.in", "password123")

	// --- Build the menu through the admin API ---
	milk := postJSON(t, server, "/admin/ingredients", map[string]interface{}{
		"name":                "Milk",
		"current_stock":       "300",
		"unit":                "ml",
		"cost_per_unit":       "0.06",
		"low_stock_threshold": "100",
	}, token)
	milkID := milk["id"].(string)

	chai := postJSON(t, server, "/admin/menu", map[string]interface{}{
		"name":     "Adrak Chai",
		"category": "Beverages",
		"price":    "20.00",
		"cost":     "8.00",
	}, token)
	chaiID := chai["id"].(string)

	putJSON(t, server, "/admin/menu/"+chaiID+"/recipe", map[string]interface{}{
		"links": []map[string]string{
			{"ingredient_id": milkID, "quantity_required": "120"},
		},
	}, token)

	// --- Place an order for 2 cups from the storefront (no token) ---
	order := postJSON(t, server, "/orders", map[string]interface{}{
		"session_id":     "sess-integration",
		"total_amount":   "40.00",
		"payment_method": "UPI",
		"order_type":     "TAKEAWAY",
		"items": []map[string]interface{}{
			{"menu_item_id": chaiID, "quantity": 2},
		},
	}, "")
	orderID := order["id"].(string)

	if order["status"].(string) != "PENDING" {
		t.Fatalf("new order status: got %s, want PENDING", order["status"])
	}

	// 300ml - 2x120ml = 60ml
	assertStock(t, server, token, milkID, "60.00")

	// --- The deduction is on the audit trail ---
	invLog := getJSON(t, server, "/staff/orders/"+orderID+"/inventory-log", token)
	deductions := invLog["deductions"].([]interface{})
	if len(deductions) != 1 {
		t.Fatalf("inventory log deductions: got %d, want 1", len(deductions))
	}
	first := deductions[0].(map[string]interface{})
	if first["amount"].(string) != "240" {
		t.Fatalf("logged deduction: got %v, want 240", first["amount"])
	}

	// --- A second identical order inside the duplicate window is rejected ---
	resp := postJSONRaw(t, server, "/orders", map[string]interface{}{
		"session_id":     "sess-integration",
		"total_amount":   "40.00",
		"payment_method": "UPI",
		"order_type":     "TAKEAWAY",
		"items": []map[string]interface{}{
			{"menu_item_id": chaiID, "quantity": 2},
		},
	}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate order: got %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// --- The all-or-nothing property: a failed order moves no stock ---
	// 60ml left; one cup needs 120ml
	resp = postJSONRaw(t, server, "/orders", map[string]interface{}{
		"session_id":     "sess-other",
		"total_amount":   "20.00",
		"payment_method": "CASH",
		"order_type":     "DINE_IN",
		"items": []map[string]interface{}{
			{"menu_item_id": chaiID, "quantity": 1},
		},
	}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("insufficient stock: got %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
	assertStock(t, server, token, milkID, "60.00")
	countOrders(t, ctx, pool, 1)

	// --- Lifecycle: advance, observe the appended history, then finish ---
	patchStatus(t, server, token, orderID, "COOKING", http.StatusOK)
	patchStatus(t, server, token, orderID, "ACCEPTED", http.StatusConflict) // backward
	patchStatus(t, server, token, orderID, "SERVED", http.StatusOK)

	status := getJSON(t, server, "/orders/"+orderID+"/status", "")
	if !status["done"].(bool) {
		t.Fatal("served order should read as done")
	}
	history := status["status_history"].([]interface{})
	if len(history) != 3 {
		t.Fatalf("status history length: got %d, want 3", len(history))
	}

	// --- Cancelling a served order is owner-forbidden, staff-allowed ---
	cancelOrder(t, server, "", orderID, "sess-integration", http.StatusConflict)
	cancelOrder(t, server, token, orderID, "", http.StatusOK)

	final := getJSON(t, server, "/orders/"+orderID, "")
	if final["status"].(string) != "CANCELLED" {
		t.Fatalf("final status: got %s, want CANCELLED", final["status"])
	}
}

// TestConcurrentLastUnit races two placements for the final unit of a simple
// item; row locking must let exactly one through.
func TestConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	cfg := &config.Config{
		JWTSecret:   "integration-test-secret",
		LockTimeout: "3s",
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	go hub.Run()

	server := httptest.NewServer(router.New(cfg, queries, pool, hub))
	defer server.Close()

	var itemID uuid.UUID
	err = pool.QueryRow(ctx, `
		INSERT INTO menu_items (name, category, price, cost, quantity, low_stock_threshold, in_stock)
		VALUES ('Last Bun', 'Snacks', 30, 12, 1, 0, true)
		RETURNING id`).Scan(&itemID)
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}

	statuses := make([]int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := postJSONRaw(t, server, "/orders", map[string]interface{}{
				"session_id":     fmt.Sprintf("racer-%d", i),
				"total_amount":   "30.00",
				"payment_method": "CASH",
				"order_type":     "TAKEAWAY",
				"items": []map[string]interface{}{
					{"menu_item_id": itemID.String(), "quantity": 1},
				},
			}, "")
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, code := range statuses {
		switch code {
		case http.StatusCreated:
			wins++
		case http.StatusConflict, http.StatusServiceUnavailable:
			losses++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got statuses %v", statuses)
	}

	var quantity int32
	var inStock bool
	if err := pool.QueryRow(ctx, `SELECT quantity, in_stock FROM menu_items WHERE id = $1`, itemID).Scan(&quantity, &inStock); err != nil {
		t.Fatalf("read item: %v", err)
	}
	if quantity != 0 {
		t.Errorf("quantity = %d, want 0", quantity)
	}
	if inStock {
		t.Error("item should have auto-flipped to out of stock")
	}
	countOrders(t, ctx, pool, 1)
}

// --- Container and seed helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tapri_test"),
		tcpostgres.WithUsername("tapri"),
		tcpostgres.WithPassword("tapri"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}

func seedStaff(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email, password, role string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO users (full_name, email, password_hash, role, is_active)
		VALUES ('Test Staff', $1, $2, $3, true)`,
		email, string(hash), role)
	if err != nil {
		t.Fatalf("seed staff: %v", err)
	}
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := postJSON(t, server, "/auth/login", map[string]interface{}{
		"email": email, "password": password,
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login returned no token: %v", resp)
	}
	return token
}

func assertStock(t *testing.T, server *httptest.Server, token, ingredientID, want string) {
	t.Helper()
	ing := getJSON(t, server, "/admin/ingredients/"+ingredientID, token)
	if got := ing["current_stock"].(string); got != want {
		t.Fatalf("current_stock = %s, want %s", got, want)
	}
}

func countOrders(t *testing.T, ctx context.Context, pool *pgxpool.Pool, want int) {
	t.Helper()
	var got int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&got); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if got != want {
		t.Fatalf("order count = %d, want %d", got, want)
	}
}

func patchStatus(t *testing.T, server *httptest.Server, token, orderID, status string, wantCode int) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"status": status})
	req, err := http.NewRequest(http.MethodPatch, server.URL+"/staff/orders/"+orderID+"/status", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		t.Fatalf("PATCH status %s: got %d, want %d", status, resp.StatusCode, wantCode)
	}
}

func cancelOrder(t *testing.T, server *httptest.Server, token, orderID, sessionID string, wantCode int) {
	t.Helper()
	url := server.URL + "/orders/" + orderID
	if sessionID != "" {
		url += "?session_id=" + sessionID
	}
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		t.Fatalf("DELETE order: got %d, want %d", resp.StatusCode, wantCode)
	}
}

// --- HTTP helpers ---

func postJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	resp := postJSONRaw(t, server, path, body, token)
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("POST %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func postJSONRaw(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, server.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func putJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPut, server.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("PUT %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func getJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
