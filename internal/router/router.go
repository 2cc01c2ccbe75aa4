package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tapri-pos/api/internal/config"
	"github.com/tapri-pos/api/internal/database"
	"github.com/tapri-pos/api/internal/enum"
	"github.com/tapri-pos/api/internal/handler"
	mw "github.com/tapri-pos/api/internal/middleware"
	"github.com/tapri-pos/api/internal/service"
	"github.com/tapri-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Storefront routes are public, the POS and kitchen surfaces sit behind
// JWT auth with role checks.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // storefront dev server
			"http://localhost:5174", // admin dev server
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/kitchen", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Handlers shared between surfaces
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, cfg.LockTimeout)
	statusService := service.NewStatusService(queries)
	orderHandler := handler.NewOrderHandler(orderService, statusService, queries, hub)
	menuHandler := handler.NewMenuHandler(queries)
	settingsHandler := handler.NewSettingsHandler(queries, hub)

	// Storefront surface. Order creation runs with optional auth so the
	// POS can reuse the same endpoint with a staff token.
	r.Route("/menu", menuHandler.RegisterRoutes)
	r.Route("/settings", settingsHandler.RegisterRoutes)
	r.Route("/orders", func(r chi.Router) {
		r.Use(mw.OptionalAuthenticate(cfg.JWTSecret))
		orderHandler.RegisterRoutes(r)
	})

	// Staff surface (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Kitchen and cashier share the order board
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleCashier, enum.UserRoleKitchen))
			r.Route("/staff/orders", orderHandler.RegisterStaffRoutes)
		})

		// Cashier-facing customer directory
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleCashier))
			customerHandler := handler.NewCustomerHandler(queries)
			r.Route("/customers", customerHandler.RegisterRoutes)
		})

		// Admin-only management
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))

			r.Route("/admin/menu", menuHandler.RegisterAdminRoutes)
			r.Route("/admin/settings", settingsHandler.RegisterAdminRoutes)

			ingredientHandler := handler.NewIngredientHandler(queries)
			r.Route("/admin/ingredients", ingredientHandler.RegisterRoutes)
		})
	})

	return r
}
