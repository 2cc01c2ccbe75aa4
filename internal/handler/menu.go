package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tapri-pos/api/internal/database"
	"github.com/tapri-pos/api/internal/service"
)

// MenuStore defines the database methods needed by menu handlers.
// Satisfied by *database.Queries.
type MenuStore interface {
	ListMenuItems(ctx context.Context) ([]database.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	ListRecipeLinks(ctx context.Context, menuItemID uuid.UUID) ([]database.ListRecipeLinksRow, error)
	ReplaceRecipeLinks(ctx context.Context, arg database.ReplaceRecipeLinksParams) error
}

// MenuHandler handles menu item and recipe endpoints.
type MenuHandler struct {
	store MenuStore
	now   func() time.Time
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store, now: time.Now}
}

// RegisterRoutes registers public menu endpoints.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// RegisterAdminRoutes registers admin-only menu management endpoints.
func (h *MenuHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/recipe", h.GetRecipe)
	r.Put("/{id}/recipe", h.PutRecipe)
}

type menuItemRequest struct {
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	Price             string  `json:"price"`
	Cost              string  `json:"cost"`
	Quantity          int32   `json:"quantity"`
	LowStockThreshold int32   `json:"low_stock_threshold"`
	InStock           *bool   `json:"in_stock"`
	IsTimeBound       bool    `json:"is_time_bound"`
	AvailableFrom     *string `json:"available_from"`
	AvailableUntil    *string `json:"available_until"`
	IsSubscription    bool    `json:"is_subscription"`
}

type menuItemResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	Price             string    `json:"price"`
	Cost              string    `json:"cost"`
	Quantity          int32     `json:"quantity"`
	LowStockThreshold int32     `json:"low_stock_threshold"`
	InStock           bool      `json:"in_stock"`
	IsTimeBound       bool      `json:"is_time_bound"`
	AvailableFrom     *string   `json:"available_from"`
	AvailableUntil    *string   `json:"available_until"`
	IsSubscription    bool      `json:"is_subscription"`
	Available         bool      `json:"available"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type recipeLinkRequest struct {
	IngredientID     string `json:"ingredient_id"`
	QuantityRequired string `json:"quantity_required"`
}

type putRecipeRequest struct {
	Links []recipeLinkRequest `json:"links"`
}

type recipeLinkResponse struct {
	ID               uuid.UUID `json:"id"`
	IngredientID     uuid.UUID `json:"ingredient_id"`
	IngredientName   string    `json:"ingredient_name"`
	Unit             string    `json:"unit"`
	QuantityRequired string    `json:"quantity_required"`
}

// List handles GET /menu. Available is computed per item from the stock
// flag and, for time-bound items, the current clock.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListMenuItems(r.Context())
	if err != nil {
		log.Printf("ERROR: list menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	now := h.now().Format("15:04")
	resp := make([]menuItemResponse, len(items))
	for i, item := range items {
		resp[i] = h.toMenuItemResponse(item, now)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"menu_items": resp})
}

// Get handles GET /menu/{id}.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	item, err := h.store.GetMenuItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: get menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, h.toMenuItemResponse(item, h.now().Format("15:04")))
}

// Create handles POST /menu (admin).
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, err := menuItemParams(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	item, err := h.store.CreateMenuItem(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: create menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, h.toMenuItemResponse(item, h.now().Format("15:04")))
}

// Update handles PUT /menu/{id} (admin).
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, err := menuItemParams(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	item, err := h.store.UpdateMenuItem(r.Context(), database.UpdateMenuItemParams{
		ID:                id,
		Name:              params.Name,
		Category:          params.Category,
		Price:             params.Price,
		Cost:              params.Cost,
		Quantity:          params.Quantity,
		LowStockThreshold: params.LowStockThreshold,
		InStock:           params.InStock,
		IsTimeBound:       params.IsTimeBound,
		AvailableFrom:     params.AvailableFrom,
		AvailableUntil:    params.AvailableUntil,
		IsSubscription:    params.IsSubscription,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: update menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, h.toMenuItemResponse(item, h.now().Format("15:04")))
}

// Delete handles DELETE /menu/{id} (admin).
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	if _, err := h.store.DeleteMenuItem(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "menu item is referenced by existing orders"})
			return
		}
		log.Printf("ERROR: delete menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetRecipe handles GET /menu/{id}/recipe (admin).
func (h *MenuHandler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	links, err := h.store.ListRecipeLinks(r.Context(), id)
	if err != nil {
		log.Printf("ERROR: list recipe links: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]recipeLinkResponse, len(links))
	for i, l := range links {
		resp[i] = recipeLinkResponse{
			ID:               l.ID,
			IngredientID:     l.IngredientID,
			IngredientName:   l.IngredientName,
			Unit:             l.Unit,
			QuantityRequired: numericToString(l.QuantityRequired),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"links": resp})
}

// PutRecipe handles PUT /menu/{id}/recipe (admin). The whole recipe is
// replaced atomically; an empty links array turns the item back into a
// simple counted item.
func (h *MenuHandler) PutRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	var req putRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if _, err := h.store.GetMenuItem(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: get menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	ids := make([]uuid.UUID, len(req.Links))
	quantities := make([]pgtype.Numeric, len(req.Links))
	for i, l := range req.Links {
		ingID, err := uuid.Parse(l.IngredientID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid ingredient ID %q", l.IngredientID)})
			return
		}
		qty, err := parseNumeric(l.QuantityRequired)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid quantity_required %q", l.QuantityRequired)})
			return
		}
		ids[i] = ingID
		quantities[i] = qty
	}

	if err := h.store.ReplaceRecipeLinks(r.Context(), database.ReplaceRecipeLinksParams{
		MenuItemID:    id,
		IngredientIDs: ids,
		Quantities:    quantities,
	}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23503":
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown ingredient in recipe"})
				return
			case "23505":
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duplicate ingredient in recipe"})
				return
			}
		}
		log.Printf("ERROR: replace recipe links: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.GetRecipe(w, r)
}

func (h *MenuHandler) toMenuItemResponse(item database.MenuItem, now string) menuItemResponse {
	available := item.InStock
	if available && item.IsTimeBound {
		available = service.WithinWindow(now, item.AvailableFrom.String, item.AvailableUntil.String)
	}

	resp := menuItemResponse{
		ID:                item.ID,
		Name:              item.Name,
		Category:          item.Category,
		Price:             numericToString(item.Price),
		Cost:              numericToString(item.Cost),
		Quantity:          item.Quantity,
		LowStockThreshold: item.LowStockThreshold,
		InStock:           item.InStock,
		IsTimeBound:       item.IsTimeBound,
		IsSubscription:    item.IsSubscription,
		Available:         available,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
	if item.AvailableFrom.Valid {
		resp.AvailableFrom = &item.AvailableFrom.String
	}
	if item.AvailableUntil.Valid {
		resp.AvailableUntil = &item.AvailableUntil.String
	}
	return resp
}

func menuItemParams(req menuItemRequest) (database.CreateMenuItemParams, error) {
	if req.Name == "" {
		return database.CreateMenuItemParams{}, errors.New("name is required")
	}
	if req.Category == "" {
		return database.CreateMenuItemParams{}, errors.New("category is required")
	}

	price, err := parseNumeric(req.Price)
	if err != nil {
		return database.CreateMenuItemParams{}, fmt.Errorf("invalid price %q", req.Price)
	}
	cost, err := parseNumeric(req.Cost)
	if err != nil {
		return database.CreateMenuItemParams{}, fmt.Errorf("invalid cost %q", req.Cost)
	}

	params := database.CreateMenuItemParams{
		Name:              req.Name,
		Category:          req.Category,
		Price:             price,
		Cost:              cost,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		InStock:           true,
		IsTimeBound:       req.IsTimeBound,
		IsSubscription:    req.IsSubscription,
	}
	if req.InStock != nil {
		params.InStock = *req.InStock
	}
	if req.AvailableFrom != nil {
		if !validClock(*req.AvailableFrom) {
			return database.CreateMenuItemParams{}, fmt.Errorf("invalid available_from %q, want HH:MM", *req.AvailableFrom)
		}
		params.AvailableFrom = pgtype.Text{String: *req.AvailableFrom, Valid: true}
	}
	if req.AvailableUntil != nil {
		if !validClock(*req.AvailableUntil) {
			return database.CreateMenuItemParams{}, fmt.Errorf("invalid available_until %q, want HH:MM", *req.AvailableUntil)
		}
		params.AvailableUntil = pgtype.Text{String: *req.AvailableUntil, Valid: true}
	}
	return params, nil
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

func parseNumeric(s string) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if s == "" {
		s = "0"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return n, err
	}
	err = n.Scan(d.String())
	return n, err
}
