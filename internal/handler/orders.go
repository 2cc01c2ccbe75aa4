package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tapri-pos/api/internal/database"
	"github.com/tapri-pos/api/internal/enum"
	"github.com/tapri-pos/api/internal/middleware"
	"github.com/tapri-pos/api/internal/service"
)

// OrderPlacer defines the service method needed to place orders.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*service.PlaceOrderResult, error)
}

// OrderLifecycle defines the status-machine methods.
// Satisfied by *service.StatusService.
type OrderLifecycle interface {
	Advance(ctx context.Context, orderID uuid.UUID, newStatus, actorRole string) (database.Order, error)
	Cancel(ctx context.Context, req service.CancelRequest) (database.Order, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsDetail(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderItemsDetailRow, error)
	GetInventoryLogByOrder(ctx context.Context, orderID uuid.UUID) (database.InventoryLog, error)
}

// Notifier pushes order events to the kitchen display feed.
// Satisfied by *ws.Hub.
type Notifier interface {
	Broadcast(eventType string, payload interface{})
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc      OrderPlacer
	status   OrderLifecycle
	store    OrderStore
	notifier Notifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderPlacer, status OrderLifecycle, store OrderStore, notifier Notifier) *OrderHandler {
	return &OrderHandler{svc: svc, status: status, store: store, notifier: notifier}
}

// RegisterRoutes registers customer-facing order endpoints.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/status", h.Status)
	r.Delete("/{id}", h.Cancel)
}

// RegisterStaffRoutes registers endpoints that require staff authentication.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Get("/{id}/inventory-log", h.InventoryLog)
}

// --- Request / Response types ---

type createOrderRequest struct {
	SessionID       string                   `json:"session_id"`
	TotalAmount     string                   `json:"total_amount"`
	PaymentMethod   string                   `json:"payment_method"`
	OrderType       string                   `json:"order_type"`
	Source          string                   `json:"source"`
	CustomerID      string                   `json:"customer_id"`
	GuestName       string                   `json:"guest_name"`
	GuestPhone      string                   `json:"guest_phone"`
	DeliveryAddress string                   `json:"delivery_address"`
	DeliverySlot    string                   `json:"delivery_slot"`
	CouponCode      string                   `json:"coupon_code"`
	DiscountAmount  string                   `json:"discount_amount"`
	Items           []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID    string `json:"menu_item_id"`
	Quantity      int32  `json:"quantity"`
	Customization string `json:"customization"`
	UnitPrice     string `json:"unit_price"`
}

type statusChangeResponse struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

type orderResponse struct {
	ID              uuid.UUID              `json:"id"`
	SessionID       string                 `json:"session_id"`
	CustomerID      *string                `json:"customer_id"`
	GuestName       *string                `json:"guest_name"`
	GuestPhone      *string                `json:"guest_phone"`
	TotalAmount     string                 `json:"total_amount"`
	PaymentMethod   string                 `json:"payment_method"`
	OrderType       string                 `json:"order_type"`
	Source          string                 `json:"source"`
	DeliveryAddress *string                `json:"delivery_address"`
	DeliverySlot    *string                `json:"delivery_slot"`
	CouponCode      *string                `json:"coupon_code"`
	DiscountAmount  *string                `json:"discount_amount"`
	Status          string                 `json:"status"`
	Done            bool                   `json:"done"`
	StatusHistory   []statusChangeResponse `json:"status_history"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Items           []orderItemResponse    `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID            uuid.UUID `json:"id"`
	MenuItemID    uuid.UUID `json:"menu_item_id"`
	MenuItemName  string    `json:"menu_item_name"`
	Quantity      int32     `json:"quantity"`
	UnitPrice     string    `json:"unit_price"`
	Customization *string   `json:"customization"`
}

type orderStatusResponse struct {
	ID            uuid.UUID              `json:"id"`
	Status        string                 `json:"status"`
	Done          bool                   `json:"done"`
	StatusHistory []statusChangeResponse `json:"status_history"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type cancelOrderRequest struct {
	SessionID  string `json:"session_id"`
	CustomerID string `json:"customer_id"`
}

type deductionResponse struct {
	IngredientID   uuid.UUID `json:"ingredient_id"`
	IngredientName string    `json:"ingredient_name"`
	Amount         string    `json:"amount"`
	Unit           string    `json:"unit"`
}

type inventoryLogResponse struct {
	ID         uuid.UUID           `json:"id"`
	OrderID    uuid.UUID           `json:"order_id"`
	Deductions []deductionResponse `json:"deductions"`
	CreatedAt  time.Time           `json:"created_at"`
}

// --- Handlers ---

// Create handles POST /orders. The storefront calls it anonymously; the POS
// calls it with a staff token and source="pos".
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	// Trusted mode is reserved for authenticated staff.
	if req.Source == enum.SourcePOS {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil || (claims.Role != enum.UserRoleAdmin && claims.Role != enum.UserRoleCashier) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "pos orders require staff authentication"})
			return
		}
	}

	items := make([]service.PlaceOrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.PlaceOrderItem{
			MenuItemID:        item.MenuItemID,
			Quantity:          item.Quantity,
			Customization:     item.Customization,
			UnitPriceOverride: item.UnitPrice,
		}
	}

	result, err := h.svc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		SessionID:       req.SessionID,
		TotalAmount:     req.TotalAmount,
		PaymentMethod:   req.PaymentMethod,
		OrderType:       req.OrderType,
		Source:          req.Source,
		CustomerID:      req.CustomerID,
		GuestName:       req.GuestName,
		GuestPhone:      req.GuestPhone,
		DeliveryAddress: req.DeliveryAddress,
		DeliverySlot:    req.DeliverySlot,
		CouponCode:      req.CouponCode,
		DiscountAmount:  req.DiscountAmount,
		Items:           items,
	})
	if err != nil {
		writePlaceOrderError(w, err)
		return
	}

	resp := toOrderResponse(result.Order)
	resp.Items = toOrderItemResponses(result.Items)

	h.notifier.Broadcast("order.created", resp)
	writeJSON(w, http.StatusCreated, resp)
}

// writePlaceOrderError maps service errors onto HTTP statuses. Business-rule
// failures get 4xx; retryable contention gets 503 so clients know to retry.
func writePlaceOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrKitchenClosed):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateOrder),
		errors.Is(err, service.ErrItemUnavailable),
		errors.Is(err, service.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrStockContention):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: place order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsDetail(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toOrderResponse(order)
	resp.Items = toOrderItemResponses(items)
	writeJSON(w, http.StatusOK, resp)
}

// Status handles GET /orders/{id}/status, the cheap polling endpoint.
func (h *OrderHandler) Status(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, orderStatusResponse{
		ID:            order.ID,
		Status:        order.Status,
		Done:          service.IsDone(order.Status),
		StatusHistory: toStatusHistory(order.StatusHistory),
	})
}

// List handles GET /orders for staff.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		if !service.IsValidStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("session_id"); s != "" {
		params.SessionID = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// UpdateStatus handles PATCH /orders/{id}/status (staff only).
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	updated, err := h.status.Advance(r.Context(), orderID, req.Status, claims.Role)
	if err != nil {
		writeLifecycleError(w, err, "update order status")
		return
	}

	resp := toOrderResponse(updated)
	h.notifier.Broadcast("order.status_updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles DELETE /orders/{id}. Guests prove ownership with their
// session id (body or query); staff cancel on their token's role.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req cancelOrderRequest
	if r.Body != nil {
		// Body is optional; a decode failure on an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("session_id")
	}

	role := ""
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		role = claims.Role
	}

	cancelled, err := h.status.Cancel(r.Context(), service.CancelRequest{
		OrderID:    orderID,
		ActorRole:  role,
		CustomerID: req.CustomerID,
		SessionID:  req.SessionID,
	})
	if err != nil {
		writeLifecycleError(w, err, "cancel order")
		return
	}

	resp := toOrderResponse(cancelled)
	h.notifier.Broadcast("order.status_updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// InventoryLog handles GET /orders/{id}/inventory-log (admin audit view).
func (h *OrderHandler) InventoryLog(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	logEntry, err := h.store.GetInventoryLogByOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no inventory log for this order"})
			return
		}
		log.Printf("ERROR: get inventory log: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := inventoryLogResponse{
		ID:        logEntry.ID,
		OrderID:   logEntry.OrderID,
		CreatedAt: logEntry.CreatedAt,
	}
	resp.Deductions = make([]deductionResponse, len(logEntry.Deductions))
	for i, d := range logEntry.Deductions {
		resp.Deductions[i] = deductionResponse{
			IngredientID:   d.IngredientID,
			IngredientName: d.IngredientName,
			Amount:         d.Amount.String(),
			Unit:           d.Unit,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func writeLifecycleError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		SessionID:     o.SessionID,
		TotalAmount:   numericToString(o.TotalAmount),
		PaymentMethod: o.PaymentMethod,
		OrderType:     o.OrderType,
		Source:        o.Source,
		Status:        o.Status,
		Done:          service.IsDone(o.Status),
		StatusHistory: toStatusHistory(o.StatusHistory),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}

	if o.CustomerID.Valid {
		s := uuid.UUID(o.CustomerID.Bytes).String()
		resp.CustomerID = &s
	}
	if o.GuestName.Valid {
		resp.GuestName = &o.GuestName.String
	}
	if o.GuestPhone.Valid {
		resp.GuestPhone = &o.GuestPhone.String
	}
	if o.DeliveryAddress.Valid {
		resp.DeliveryAddress = &o.DeliveryAddress.String
	}
	if o.DeliverySlot.Valid {
		resp.DeliverySlot = &o.DeliverySlot.String
	}
	if o.CouponCode.Valid {
		resp.CouponCode = &o.CouponCode.String
	}
	if o.DiscountAmount.Valid {
		s := numericToString(o.DiscountAmount)
		resp.DiscountAmount = &s
	}

	return resp
}

func toOrderItemResponses(items []database.ListOrderItemsDetailRow) []orderItemResponse {
	resp := make([]orderItemResponse, len(items))
	for i, it := range items {
		resp[i] = orderItemResponse{
			ID:           it.ID,
			MenuItemID:   it.MenuItemID,
			MenuItemName: it.MenuItemName,
			Quantity:     it.Quantity,
			UnitPrice:    numericToString(it.UnitPrice),
		}
		if it.Customization.Valid {
			resp[i].Customization = &it.Customization.String
		}
	}
	return resp
}

func toStatusHistory(history []database.StatusChange) []statusChangeResponse {
	resp := make([]statusChangeResponse, len(history))
	for i, h := range history {
		resp[i] = statusChangeResponse{Status: h.Status, ChangedAt: h.ChangedAt}
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
