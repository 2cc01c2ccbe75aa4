package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/tapri-pos/api/internal/enum"
)

// SettingsStore defines the database methods needed by settings handlers.
// Satisfied by *database.Queries.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (bool, error)
	SetSetting(ctx context.Context, key string, value bool) error
}

// SettingsHandler handles the kitchen master switch.
type SettingsHandler struct {
	store    SettingsStore
	notifier Notifier
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store SettingsStore, notifier Notifier) *SettingsHandler {
	return &SettingsHandler{store: store, notifier: notifier}
}

// RegisterRoutes registers the public kitchen-status endpoint.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/kitchen", h.GetKitchen)
}

// RegisterAdminRoutes registers the admin toggle.
func (h *SettingsHandler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/kitchen", h.PutKitchen)
}

type kitchenStatusResponse struct {
	Open bool `json:"open"`
}

type putKitchenRequest struct {
	Open *bool `json:"open"`
}

// GetKitchen handles GET /settings/kitchen. A missing row reads as open,
// matching order placement.
func (h *SettingsHandler) GetKitchen(w http.ResponseWriter, r *http.Request) {
	open, err := h.store.GetSetting(r.Context(), enum.SettingKitchenOpen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusOK, kitchenStatusResponse{Open: true})
			return
		}
		log.Printf("ERROR: get kitchen setting: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, kitchenStatusResponse{Open: open})
}

// PutKitchen handles PUT /settings/kitchen (admin).
func (h *SettingsHandler) PutKitchen(w http.ResponseWriter, r *http.Request) {
	var req putKitchenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Open == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "open is required"})
		return
	}

	if err := h.store.SetSetting(r.Context(), enum.SettingKitchenOpen, *req.Open); err != nil {
		log.Printf("ERROR: set kitchen setting: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := kitchenStatusResponse{Open: *req.Open}
	h.notifier.Broadcast("kitchen.toggled", resp)
	writeJSON(w, http.StatusOK, resp)
}
