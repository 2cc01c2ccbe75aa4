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
	"github.com/shopspring/decimal"
	"github.com/tapri-pos/api/internal/database"
	"github.com/tapri-pos/api/internal/enum"
)

// IngredientStore defines the database methods needed by ingredient handlers.
// Satisfied by *database.Queries.
type IngredientStore interface {
	ListIngredients(ctx context.Context) ([]database.Ingredient, error)
	ListLowStockIngredients(ctx context.Context) ([]database.Ingredient, error)
	GetIngredient(ctx context.Context, id uuid.UUID) (database.Ingredient, error)
	CreateIngredient(ctx context.Context, arg database.CreateIngredientParams) (database.Ingredient, error)
	UpdateIngredient(ctx context.Context, arg database.UpdateIngredientParams) (database.Ingredient, error)
	DeleteIngredient(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	RestockIngredient(ctx context.Context, arg database.RestockIngredientParams) (database.Ingredient, error)
}

// IngredientHandler handles inventory management endpoints.
type IngredientHandler struct {
	store IngredientStore
}

// NewIngredientHandler creates a new IngredientHandler.
func NewIngredientHandler(store IngredientStore) *IngredientHandler {
	return &IngredientHandler{store: store}
}

// RegisterRoutes registers admin-only ingredient endpoints.
func (h *IngredientHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/low-stock", h.LowStock)
	r.Get("/{id}", h.Get)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/restock", h.Restock)
}

type ingredientRequest struct {
	Name              string `json:"name"`
	CurrentStock      string `json:"current_stock"`
	Unit              string `json:"unit"`
	CostPerUnit       string `json:"cost_per_unit"`
	LowStockThreshold string `json:"low_stock_threshold"`
}

type ingredientResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	CurrentStock      string    `json:"current_stock"`
	Unit              string    `json:"unit"`
	CostPerUnit       string    `json:"cost_per_unit"`
	LowStockThreshold string    `json:"low_stock_threshold"`
	LowStock          bool      `json:"low_stock"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type restockRequest struct {
	Amount string `json:"amount"`
}

// List handles GET /ingredients.
func (h *IngredientHandler) List(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.store.ListIngredients(r.Context())
	if err != nil {
		log.Printf("ERROR: list ingredients: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ingredients": toIngredientResponses(ingredients)})
}

// LowStock handles GET /ingredients/low-stock, the restock worklist.
func (h *IngredientHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.store.ListLowStockIngredients(r.Context())
	if err != nil {
		log.Printf("ERROR: list low stock ingredients: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ingredients": toIngredientResponses(ingredients)})
}

// Get handles GET /ingredients/{id}.
func (h *IngredientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	ing, err := h.store.GetIngredient(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		log.Printf("ERROR: get ingredient: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toIngredientResponse(ing))
}

// Create handles POST /ingredients.
func (h *IngredientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ingredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if !enum.IsValidUnit(req.Unit) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid unit %q", req.Unit)})
		return
	}

	stock, err := parseNumeric(req.CurrentStock)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid current_stock %q", req.CurrentStock)})
		return
	}
	cost, err := parseNumeric(req.CostPerUnit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid cost_per_unit %q", req.CostPerUnit)})
		return
	}
	threshold, err := parseNumeric(req.LowStockThreshold)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid low_stock_threshold %q", req.LowStockThreshold)})
		return
	}

	ing, err := h.store.CreateIngredient(r.Context(), database.CreateIngredientParams{
		Name:              req.Name,
		CurrentStock:      stock,
		Unit:              req.Unit,
		CostPerUnit:       cost,
		LowStockThreshold: threshold,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "ingredient with this name already exists"})
			return
		}
		log.Printf("ERROR: create ingredient: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, toIngredientResponse(ing))
}

// Update handles PUT /ingredients/{id}. Stock level is not updatable here;
// use the restock endpoint so adjustments stay relative.
func (h *IngredientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	var req ingredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if !enum.IsValidUnit(req.Unit) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid unit %q", req.Unit)})
		return
	}

	cost, err := parseNumeric(req.CostPerUnit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid cost_per_unit %q", req.CostPerUnit)})
		return
	}
	threshold, err := parseNumeric(req.LowStockThreshold)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid low_stock_threshold %q", req.LowStockThreshold)})
		return
	}

	ing, err := h.store.UpdateIngredient(r.Context(), database.UpdateIngredientParams{
		ID:                id,
		Name:              req.Name,
		Unit:              req.Unit,
		CostPerUnit:       cost,
		LowStockThreshold: threshold,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		log.Printf("ERROR: update ingredient: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toIngredientResponse(ing))
}

// Delete handles DELETE /ingredients/{id}.
func (h *IngredientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	if _, err := h.store.DeleteIngredient(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "ingredient is used by a recipe"})
			return
		}
		log.Printf("ERROR: delete ingredient: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Restock handles POST /ingredients/{id}/restock.
func (h *IngredientHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be a positive number"})
		return
	}
	numeric, err := parseNumeric(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid amount %q", req.Amount)})
		return
	}

	ing, err := h.store.RestockIngredient(r.Context(), database.RestockIngredientParams{
		ID:     id,
		Amount: numeric,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		log.Printf("ERROR: restock ingredient: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toIngredientResponse(ing))
}

func toIngredientResponses(ingredients []database.Ingredient) []ingredientResponse {
	resp := make([]ingredientResponse, len(ingredients))
	for i, ing := range ingredients {
		resp[i] = toIngredientResponse(ing)
	}
	return resp
}

func toIngredientResponse(ing database.Ingredient) ingredientResponse {
	stock := numericToString(ing.CurrentStock)
	threshold := numericToString(ing.LowStockThreshold)

	low := false
	if s, err1 := decimal.NewFromString(stock); err1 == nil {
		if t, err2 := decimal.NewFromString(threshold); err2 == nil {
			low = s.LessThanOrEqual(t)
		}
	}

	return ingredientResponse{
		ID:                ing.ID,
		Name:              ing.Name,
		CurrentStock:      stock,
		Unit:              ing.Unit,
		CostPerUnit:       numericToString(ing.CostPerUnit),
		LowStockThreshold: threshold,
		LowStock:          low,
		CreatedAt:         ing.CreatedAt,
		UpdatedAt:         ing.UpdatedAt,
	}
}
