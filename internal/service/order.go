package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tapri-pos/api/internal/database"
	"github.com/tapri-pos/api/internal/enum"
)

// duplicateWindow is the heuristic resubmission guard interval: a second
// order from the same session with the same total inside this window is
// rejected. Cart contents are not hashed, so a resubmit with a different
// total slips through.
const duplicateWindow = 30 * time.Second

// One loyalty point per 100 currency units spent, floored.
const loyaltyPointUnit = 100

// Errors returned by the order service. Every one of them aborts the whole
// placement transaction; the caller never sees a partial write.
var (
	ErrKitchenClosed     = errors.New("kitchen is closed")
	ErrInvalidRequest    = errors.New("invalid order request")
	ErrDuplicateOrder    = errors.New("duplicate order")
	ErrItemNotFound      = errors.New("menu item not found")
	ErrItemUnavailable   = errors.New("item unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockContention is retryable: a stock row lock could not be
	// acquired within the configured timeout.
	ErrStockContention = errors.New("stock contention, retry")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to place orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetSetting(ctx context.Context, key string) (bool, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	CountRecentDuplicateOrders(ctx context.Context, arg database.CountRecentDuplicateOrdersParams) (int64, error)
	GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	ListRecipeForOrder(ctx context.Context, menuItemID uuid.UUID) ([]database.ListRecipeForOrderRow, error)
	DecrementIngredientStock(ctx context.Context, arg database.DecrementIngredientStockParams) error
	DecrementMenuItemQuantity(ctx context.Context, arg database.DecrementMenuItemQuantityParams) (database.DecrementMenuItemQuantityRow, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateInventoryLog(ctx context.Context, arg database.CreateInventoryLogParams) (database.InventoryLog, error)
	ApplyCustomerOrderStats(ctx context.Context, arg database.ApplyCustomerOrderStatsParams) error
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsDetail(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderItemsDetailRow, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// PlaceOrderRequest is the validated input for placing an order.
type PlaceOrderRequest struct {
	SessionID       string
	TotalAmount     string
	PaymentMethod   string
	OrderType       string
	Source          string
	CustomerID      string
	GuestName       string
	GuestPhone      string
	DeliveryAddress string
	DeliverySlot    string
	CouponCode      string
	DiscountAmount  string
	Items           []PlaceOrderItem
}

// PlaceOrderItem is a single cart line.
type PlaceOrderItem struct {
	MenuItemID        string
	Quantity          int32
	Customization     string
	UnitPriceOverride string
}

// PlaceOrderResult is the fully hydrated order after commit.
type PlaceOrderResult struct {
	Order    database.Order
	Items    []database.ListOrderItemsDetailRow
	Customer *database.Customer
}

// OrderService owns the order placement transaction.
type OrderService struct {
	pool        TxBeginner
	newStore    NewOrderStore
	lockTimeout string
	now         func() time.Time
}

// NewOrderService creates a new OrderService. lockTimeout is a Postgres
// interval string bounding stock row lock acquisition per transaction.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, lockTimeout string) *OrderService {
	return &OrderService{
		pool:        pool,
		newStore:    newStore,
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// stagedDeduction accumulates the total draw on one ingredient across all
// cart lines before anything is written.
type stagedDeduction struct {
	name   string
	unit   string
	stock  decimal.Decimal
	amount decimal.Decimal
}

// stagedLine is a cart line ready to insert, with its price snapshot.
type stagedLine struct {
	menuItemID    uuid.UUID
	quantity      int32
	unitPrice     decimal.Decimal
	customization string
}

// PlaceOrder validates business rules, reserves stock, and persists the
// order aggregate as one atomic unit. POS-sourced requests run in trusted
// mode: availability and sufficiency gates are skipped but deductions still
// apply.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	mode := ModeStrict
	if req.Source == enum.SourcePOS {
		mode = ModeTrusted
	}

	total, err := validatePlaceOrder(req)
	if err != nil {
		return nil, err
	}

	result, err := s.placeOrderTx(ctx, req, mode, total)
	if err != nil {
		if isLockTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrStockContention, err)
		}
		return nil, err
	}
	return result, nil
}

// validatePlaceOrder checks field presence and enum validity before any
// database work, returning the parsed total.
func validatePlaceOrder(req PlaceOrderRequest) (decimal.Decimal, error) {
	if len(req.Items) == 0 {
		return decimal.Zero, fmt.Errorf("%w: items are required", ErrInvalidRequest)
	}
	if req.SessionID == "" {
		return decimal.Zero, fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	}
	if req.PaymentMethod == "" {
		return decimal.Zero, fmt.Errorf("%w: payment_method is required", ErrInvalidRequest)
	}
	if !isValidPaymentMethod(req.PaymentMethod) {
		return decimal.Zero, fmt.Errorf("%w: unknown payment_method %q", ErrInvalidRequest, req.PaymentMethod)
	}
	if !isValidOrderType(req.OrderType) {
		return decimal.Zero, fmt.Errorf("%w: unknown order_type %q", ErrInvalidRequest, req.OrderType)
	}
	if req.TotalAmount == "" {
		return decimal.Zero, fmt.Errorf("%w: total_amount is required", ErrInvalidRequest)
	}
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || total.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: invalid total_amount %q", ErrInvalidRequest, req.TotalAmount)
	}
	for i, item := range req.Items {
		if item.MenuItemID == "" {
			return decimal.Zero, fmt.Errorf("%w: items[%d]: menu_item_id is required", ErrInvalidRequest, i)
		}
		if _, err := uuid.Parse(item.MenuItemID); err != nil {
			return decimal.Zero, fmt.Errorf("%w: items[%d]: invalid menu_item_id", ErrInvalidRequest, i)
		}
		if item.Quantity <= 0 {
			return decimal.Zero, fmt.Errorf("%w: items[%d]: quantity must be > 0", ErrInvalidRequest, i)
		}
	}
	return total, nil
}

// placeOrderTx executes the full placement in a single transaction.
// Any error rolls back everything: no deduction, order row, or loyalty
// update survives a failed placement.
func (s *OrderService) placeOrderTx(ctx context.Context, req PlaceOrderRequest, mode ValidationMode, total decimal.Decimal) (*PlaceOrderResult, error) {
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Bound lock waits so contention surfaces as a retryable error
	// instead of a stuck transaction. SET LOCAL cannot take a bind
	// parameter; the value comes from config, not user input.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", s.lockTimeout)); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	store := s.newStore(tx)

	// --- Kitchen switch (customer-facing orders only) ---
	if mode == ModeStrict {
		open, err := store.GetSetting(ctx, enum.SettingKitchenOpen)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("read kitchen switch: %w", err)
		}
		// A missing flag counts as open.
		if err == nil && !open {
			return nil, ErrKitchenClosed
		}
	}

	// --- Resolve identity ---
	var customer *database.Customer
	guestName := req.GuestName
	if req.CustomerID != "" {
		cid, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid customer_id", ErrInvalidRequest)
		}
		c, err := store.GetCustomer(ctx, cid)
		switch {
		case err == nil:
			customer = &c
		case errors.Is(err, pgx.ErrNoRows):
			// Stale customer reference: fall through to the guest path.
		default:
			return nil, fmt.Errorf("get customer: %w", err)
		}
	}
	if customer == nil && req.GuestPhone != "" && guestName == "" {
		guestName = "Guest"
	}

	// --- Duplicate guard ---
	count, err := store.CountRecentDuplicateOrders(ctx, database.CountRecentDuplicateOrdersParams{
		SessionID:   req.SessionID,
		TotalAmount: decimalToNumeric(total),
		Since:       now.Add(-duplicateWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: an identical order was placed moments ago", ErrDuplicateOrder)
	}

	// --- Stage all lines and deductions before writing anything ---
	clock := now.Format("15:04")

	ingredientTotals := make(map[uuid.UUID]*stagedDeduction)
	var ingredientOrder []uuid.UUID
	itemDecrements := make(map[uuid.UUID]int32)
	var itemDecrementOrder []uuid.UUID
	var lines []stagedLine

	for i, line := range req.Items {
		menuItemID := uuid.MustParse(line.MenuItemID) // validated above

		item, err := store.GetMenuItemForOrder(ctx, menuItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: items[%d]: %s", ErrItemNotFound, i, line.MenuItemID)
			}
			return nil, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}

		if mode == ModeStrict {
			if !item.InStock {
				return nil, fmt.Errorf("%w: %s is currently out of stock", ErrItemUnavailable, item.Name)
			}
			if item.IsTimeBound {
				start := item.AvailableFrom.String
				end := item.AvailableUntil.String
				if !WithinWindow(clock, start, end) {
					if start == "" {
						start = defaultWindowStart
					}
					if end == "" {
						end = defaultWindowEnd
					}
					return nil, fmt.Errorf("%w: %s is only available between %s and %s",
						ErrItemUnavailable, item.Name, start, end)
				}
			}
		}

		recipe, err := store.ListRecipeForOrder(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: load recipe: %w", i, err)
		}

		qty := decimal.NewFromInt32(line.Quantity)
		if len(recipe) > 0 {
			for _, link := range recipe {
				required := numericToDecimal(link.QuantityRequired).Mul(qty)
				staged := ingredientTotals[link.IngredientID]
				if staged == nil {
					staged = &stagedDeduction{
						name:  link.IngredientName,
						unit:  link.Unit,
						stock: numericToDecimal(link.CurrentStock),
					}
					ingredientTotals[link.IngredientID] = staged
					ingredientOrder = append(ingredientOrder, link.IngredientID)
				}
				if mode == ModeStrict && staged.stock.Sub(staged.amount).LessThan(required) {
					return nil, fmt.Errorf("%w: not enough %s for %s",
						ErrInsufficientStock, link.IngredientName, item.Name)
				}
				staged.amount = staged.amount.Add(required)
			}
		} else {
			// Simple item: the flat quantity field is the stock.
			already := itemDecrements[item.ID]
			if mode == ModeStrict && item.Quantity-already < line.Quantity {
				return nil, fmt.Errorf("%w: only %d of %s left",
					ErrInsufficientStock, item.Quantity-already, item.Name)
			}
			if already == 0 {
				itemDecrementOrder = append(itemDecrementOrder, item.ID)
			}
			itemDecrements[item.ID] = already + line.Quantity
		}

		unitPrice := numericToDecimal(item.Price)
		if line.UnitPriceOverride != "" {
			p, err := decimal.NewFromString(line.UnitPriceOverride)
			if err != nil || p.IsNegative() {
				return nil, fmt.Errorf("%w: items[%d]: invalid unit price override", ErrInvalidRequest, i)
			}
			unitPrice = p
		}

		lines = append(lines, stagedLine{
			menuItemID:    item.ID,
			quantity:      line.Quantity,
			unitPrice:     unitPrice,
			customization: line.Customization,
		})
	}

	// --- Apply staged decrements ---
	for _, id := range ingredientOrder {
		staged := ingredientTotals[id]
		if err := store.DecrementIngredientStock(ctx, database.DecrementIngredientStockParams{
			ID:     id,
			Amount: decimalToNumeric(staged.amount),
		}); err != nil {
			return nil, fmt.Errorf("deduct %s: %w", staged.name, err)
		}
	}
	for _, id := range itemDecrementOrder {
		if _, err := store.DecrementMenuItemQuantity(ctx, database.DecrementMenuItemQuantityParams{
			ID:       id,
			Quantity: itemDecrements[id],
		}); err != nil {
			return nil, fmt.Errorf("deduct item quantity: %w", err)
		}
	}

	// --- Insert the order aggregate ---
	customerID := pgtype.UUID{}
	if customer != nil {
		customerID = pgtype.UUID{Bytes: customer.ID, Valid: true}
	}

	discount := pgtype.Numeric{}
	if req.DiscountAmount != "" {
		d, err := decimal.NewFromString(req.DiscountAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid discount_amount", ErrInvalidRequest)
		}
		discount = decimalToNumeric(d)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		SessionID:       req.SessionID,
		CustomerID:      customerID,
		GuestName:       textOrNull(guestName),
		GuestPhone:      textOrNull(req.GuestPhone),
		TotalAmount:     decimalToNumeric(total),
		PaymentMethod:   req.PaymentMethod,
		OrderType:       req.OrderType,
		Source:          sourceOrDefault(req.Source),
		DeliveryAddress: textOrNull(req.DeliveryAddress),
		DeliverySlot:    textOrNull(req.DeliverySlot),
		CouponCode:      textOrNull(req.CouponCode),
		DiscountAmount:  discount,
		Status:          enum.OrderStatusPending,
		StatusHistory: []database.StatusChange{
			{Status: enum.OrderStatusPending, ChangedAt: now},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	for _, line := range lines {
		if _, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:       order.ID,
			MenuItemID:    line.menuItemID,
			Quantity:      line.quantity,
			UnitPrice:     decimalToNumeric(line.unitPrice),
			Customization: textOrNull(line.customization),
		}); err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
	}

	// --- Audit trail for ingredient deductions ---
	if len(ingredientOrder) > 0 {
		deductions := make([]database.Deduction, 0, len(ingredientOrder))
		for _, id := range ingredientOrder {
			staged := ingredientTotals[id]
			deductions = append(deductions, database.Deduction{
				IngredientID:   id,
				IngredientName: staged.name,
				Amount:         staged.amount,
				Unit:           staged.unit,
			})
		}
		if _, err := store.CreateInventoryLog(ctx, database.CreateInventoryLogParams{
			OrderID:    order.ID,
			Deductions: deductions,
		}); err != nil {
			return nil, fmt.Errorf("create inventory log: %w", err)
		}
	}

	// --- Loyalty counters ---
	if customer != nil {
		points := int32(total.Div(decimal.NewFromInt(loyaltyPointUnit)).Floor().IntPart())
		if err := store.ApplyCustomerOrderStats(ctx, database.ApplyCustomerOrderStatsParams{
			ID:     customer.ID,
			Points: points,
			Amount: decimalToNumeric(total),
		}); err != nil {
			return nil, fmt.Errorf("update customer stats: %w", err)
		}
	}

	// --- Hydrate the response from inside the transaction ---
	created, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	items, err := store.ListOrderItemsDetail(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	result := &PlaceOrderResult{Order: created, Items: items}
	if customer != nil {
		c, err := store.GetCustomer(ctx, customer.ID)
		if err != nil {
			return nil, fmt.Errorf("reload customer: %w", err)
		}
		result.Customer = &c
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return result, nil
}

// --- Helpers ---

func isValidOrderType(s string) bool {
	switch s {
	case enum.OrderTypeDineIn, enum.OrderTypeTakeaway, enum.OrderTypeDelivery:
		return true
	}
	return false
}

func isValidPaymentMethod(s string) bool {
	switch s {
	case enum.PaymentMethodCash, enum.PaymentMethodCard,
		enum.PaymentMethodUPI, enum.PaymentMethodOnline:
		return true
	}
	return false
}

func sourceOrDefault(s string) string {
	if s == "" {
		return enum.SourceOnline
	}
	return s
}

// isLockTimeout checks for Postgres error 55P03 (lock_not_available), raised
// when lock_timeout expires while waiting for a stock row.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
