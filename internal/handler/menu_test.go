package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tapri-pos/api/internal/database"
)

type mockMenuStore struct {
	listMenuItemsFn      func(ctx context.Context) ([]database.MenuItem, error)
	getMenuItemFn        func(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	createMenuItemFn     func(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	updateMenuItemFn     func(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error)
	deleteMenuItemFn     func(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	listRecipeLinksFn    func(ctx context.Context, menuItemID uuid.UUID) ([]database.ListRecipeLinksRow, error)
	replaceRecipeLinksFn func(ctx context.Context, arg database.ReplaceRecipeLinksParams) error
}

func (m *mockMenuStore) ListMenuItems(ctx context.Context) ([]database.MenuItem, error) {
	return m.listMenuItemsFn(ctx)
}
func (m *mockMenuStore) GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
	if m.getMenuItemFn != nil {
		return m.getMenuItemFn(ctx, id)
	}
	return database.MenuItem{}, pgx.ErrNoRows
}
func (m *mockMenuStore) CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error) {
	return m.createMenuItemFn(ctx, arg)
}
func (m *mockMenuStore) UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error) {
	return m.updateMenuItemFn(ctx, arg)
}
func (m *mockMenuStore) DeleteMenuItem(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	return m.deleteMenuItemFn(ctx, id)
}
func (m *mockMenuStore) ListRecipeLinks(ctx context.Context, menuItemID uuid.UUID) ([]database.ListRecipeLinksRow, error) {
	if m.listRecipeLinksFn != nil {
		return m.listRecipeLinksFn(ctx, menuItemID)
	}
	return nil, nil
}
func (m *mockMenuStore) ReplaceRecipeLinks(ctx context.Context, arg database.ReplaceRecipeLinksParams) error {
	return m.replaceRecipeLinksFn(ctx, arg)
}

func fixedClock(hhmm string) func() time.Time {
	t, _ := time.Parse("15:04", hhmm)
	return func() time.Time {
		return time.Date(2025, 6, 10, t.Hour(), t.Minute(), 0, 0, time.UTC)
	}
}

func TestMenuListComputedAvailability(t *testing.T) {
	plain := database.MenuItem{ID: uuid.New(), Name: "Bun Maska", InStock: true}
	flagged := database.MenuItem{ID: uuid.New(), Name: "Vada Pav", InStock: false}
	breakfast := database.MenuItem{
		ID: uuid.New(), Name: "Poha", InStock: true, IsTimeBound: true,
		AvailableFrom:  pgtype.Text{String: "07:00", Valid: true},
		AvailableUntil: pgtype.Text{String: "11:00", Valid: true},
	}
	lateNight := database.MenuItem{
		ID: uuid.New(), Name: "Maggi", InStock: true, IsTimeBound: true,
		AvailableFrom:  pgtype.Text{String: "22:00", Valid: true},
		AvailableUntil: pgtype.Text{String: "02:00", Valid: true},
	}

	store := &mockMenuStore{
		listMenuItemsFn: func(ctx context.Context) ([]database.MenuItem, error) {
			return []database.MenuItem{plain, flagged, breakfast, lateNight}, nil
		},
	}
	h := NewMenuHandler(store)
	h.now = fixedClock("23:30")

	r := chi.NewRouter()
	r.Route("/menu", h.RegisterRoutes)

	req := httptest.NewRequest(http.MethodGet, "/menu", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		MenuItems []struct {
			Name      string `json:"name"`
			Available bool   `json:"available"`
		} `json:"menu_items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[string]bool{
		"Bun Maska": true,  // plain item in stock
		"Vada Pav":  false, // manual out-of-stock flag wins
		"Poha":      false, // 23:30 is outside 07:00-11:00
		"Maggi":     true,  // 22:00-02:00 wraps midnight
	}
	for _, item := range resp.MenuItems {
		if item.Available != want[item.Name] {
			t.Errorf("%s: available = %v, want %v", item.Name, item.Available, want[item.Name])
		}
	}
}

func TestPutRecipeReplacesAtomically(t *testing.T) {
	itemID := uuid.New()
	ing1 := uuid.New()
	ing2 := uuid.New()

	var captured database.ReplaceRecipeLinksParams
	store := &mockMenuStore{
		getMenuItemFn: func(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
			if id == itemID {
				return database.MenuItem{ID: itemID, Name: "Adrak Chai"}, nil
			}
			return database.MenuItem{}, pgx.ErrNoRows
		},
		replaceRecipeLinksFn: func(ctx context.Context, arg database.ReplaceRecipeLinksParams) error {
			captured = arg
			return nil
		},
	}
	h := NewMenuHandler(store)

	r := chi.NewRouter()
	r.Route("/admin/menu", h.RegisterAdminRoutes)

	body, _ := json.Marshal(map[string]interface{}{
		"links": []map[string]string{
			{"ingredient_id": ing1.String(), "quantity_required": "120"},
			{"ingredient_id": ing2.String(), "quantity_required": "5"},
		},
	})
	req := httptest.NewRequest(http.MethodPut, "/admin/menu/"+itemID.String()+"/recipe", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if captured.MenuItemID != itemID {
		t.Errorf("menu item = %s, want %s", captured.MenuItemID, itemID)
	}
	if len(captured.IngredientIDs) != 2 || captured.IngredientIDs[0] != ing1 || captured.IngredientIDs[1] != ing2 {
		t.Errorf("ingredient ids = %v", captured.IngredientIDs)
	}
	if len(captured.Quantities) != 2 || !numericEqualsInternal(captured.Quantities[0], "120") {
		t.Errorf("quantities = %v", captured.Quantities)
	}
}

func TestPutRecipeValidation(t *testing.T) {
	itemID := uuid.New()
	store := &mockMenuStore{
		getMenuItemFn: func(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
			return database.MenuItem{ID: itemID}, nil
		},
		replaceRecipeLinksFn: func(ctx context.Context, arg database.ReplaceRecipeLinksParams) error {
			t.Fatal("store must not be hit with invalid input")
			return nil
		},
	}
	h := NewMenuHandler(store)

	r := chi.NewRouter()
	r.Route("/admin/menu", h.RegisterAdminRoutes)

	tests := []struct {
		name string
		body string
	}{
		{"bad ingredient id", `{"links":[{"ingredient_id":"nope","quantity_required":"5"}]}`},
		{"bad quantity", `{"links":[{"ingredient_id":"` + uuid.NewString() + `","quantity_required":"lots"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/admin/menu/"+itemID.String()+"/recipe", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestMenuItemParamsValidation(t *testing.T) {
	base := menuItemRequest{Name: "Chai", Category: "Beverages", Price: "20.00", Cost: "8.00"}

	if _, err := menuItemParams(base); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	bad := base
	bad.Name = ""
	if _, err := menuItemParams(bad); err == nil {
		t.Error("missing name accepted")
	}

	bad = base
	bad.Price = "twenty"
	if _, err := menuItemParams(bad); err == nil {
		t.Error("malformed price accepted")
	}

	from := "7am"
	bad = base
	bad.AvailableFrom = &from
	if _, err := menuItemParams(bad); err == nil {
		t.Error("malformed available_from accepted")
	}

	from = "07:00"
	until := "11:00"
	good := base
	good.IsTimeBound = true
	good.AvailableFrom = &from
	good.AvailableUntil = &until
	params, err := menuItemParams(good)
	if err != nil {
		t.Fatalf("time-bound request rejected: %v", err)
	}
	if !params.AvailableFrom.Valid || params.AvailableFrom.String != "07:00" {
		t.Errorf("available_from = %+v", params.AvailableFrom)
	}
}

func numericEqualsInternal(n pgtype.Numeric, expected string) bool {
	return numericToString(n) == expected || numericToString(n) == expected+".00"
}
