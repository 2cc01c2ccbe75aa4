package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, session_id, customer_id, guest_name, guest_phone,
	total_amount, payment_method, order_type, source, delivery_address,
	delivery_slot, coupon_code, discount_amount, status, status_history,
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.SessionID, &o.CustomerID, &o.GuestName, &o.GuestPhone,
		&o.TotalAmount, &o.PaymentMethod, &o.OrderType, &o.Source,
		&o.DeliveryAddress, &o.DeliverySlot, &o.CouponCode, &o.DiscountAmount,
		&o.Status, &o.StatusHistory, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

type CreateOrderParams struct {
	SessionID       string
	CustomerID      pgtype.UUID
	GuestName       pgtype.Text
	GuestPhone      pgtype.Text
	TotalAmount     pgtype.Numeric
	PaymentMethod   string
	OrderType       string
	Source          string
	DeliveryAddress pgtype.Text
	DeliverySlot    pgtype.Text
	CouponCode      pgtype.Text
	DiscountAmount  pgtype.Numeric
	Status          string
	StatusHistory   []StatusChange
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `
		INSERT INTO orders (
			session_id, customer_id, guest_name, guest_phone, total_amount,
			payment_method, order_type, source, delivery_address,
			delivery_slot, coupon_code, discount_amount, status, status_history
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+orderColumns,
		arg.SessionID, arg.CustomerID, arg.GuestName, arg.GuestPhone,
		arg.TotalAmount, arg.PaymentMethod, arg.OrderType, arg.Source,
		arg.DeliveryAddress, arg.DeliverySlot, arg.CouponCode,
		arg.DiscountAmount, arg.Status, arg.StatusHistory,
	))
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

type ListOrdersParams struct {
	Status    pgtype.Text
	SessionID pgtype.Text
	Limit     int32
	Offset    int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR session_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		arg.Status, arg.SessionID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type CountRecentDuplicateOrdersParams struct {
	SessionID   string
	TotalAmount pgtype.Numeric
	Since       time.Time
}

// CountRecentDuplicateOrders backs the duplicate guard: same session, same
// total, created after Since. Cart contents are not compared.
func (q *Queries) CountRecentDuplicateOrders(ctx context.Context, arg CountRecentDuplicateOrdersParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE session_id = $1 AND total_amount = $2 AND created_at > $3`,
		arg.SessionID, arg.TotalAmount, arg.Since,
	).Scan(&count)
	return count, err
}

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	PrevStatus string
	Change     StatusChange
}

// UpdateOrderStatus appends to the jsonb history and flips the status in one
// statement, guarded by the expected current status; pgx.ErrNoRows means the
// order moved underneath the caller.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, `
		UPDATE orders SET
			status = $2,
			status_history = status_history || $4,
			updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+orderColumns,
		arg.ID, arg.Status, arg.PrevStatus, arg.Change,
	))
}

// --- Order items ---

type CreateOrderItemParams struct {
	OrderID       uuid.UUID
	MenuItemID    uuid.UUID
	Quantity      int32
	UnitPrice     pgtype.Numeric
	Customization pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var oi OrderItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, menu_item_id, quantity, unit_price, customization)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, order_id, menu_item_id, quantity, unit_price, customization`,
		arg.OrderID, arg.MenuItemID, arg.Quantity, arg.UnitPrice, arg.Customization,
	).Scan(&oi.ID, &oi.OrderID, &oi.MenuItemID, &oi.Quantity, &oi.UnitPrice, &oi.Customization)
	return oi, err
}

type ListOrderItemsDetailRow struct {
	ID            uuid.UUID
	MenuItemID    uuid.UUID
	MenuItemName  string
	Quantity      int32
	UnitPrice     pgtype.Numeric
	Customization pgtype.Text
}

func (q *Queries) ListOrderItemsDetail(ctx context.Context, orderID uuid.UUID) ([]ListOrderItemsDetailRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT oi.id, oi.menu_item_id, m.name, oi.quantity, oi.unit_price, oi.customization
		FROM order_items oi
		JOIN menu_items m ON m.id = oi.menu_item_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListOrderItemsDetailRow
	for rows.Next() {
		var it ListOrderItemsDetailRow
		if err := rows.Scan(&it.ID, &it.MenuItemID, &it.MenuItemName,
			&it.Quantity, &it.UnitPrice, &it.Customization); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// --- Inventory logs ---

type CreateInventoryLogParams struct {
	OrderID    uuid.UUID
	Deductions []Deduction
}

func (q *Queries) CreateInventoryLog(ctx context.Context, arg CreateInventoryLogParams) (InventoryLog, error) {
	var l InventoryLog
	err := q.db.QueryRow(ctx, `
		INSERT INTO inventory_logs (order_id, deductions)
		VALUES ($1, $2)
		RETURNING id, order_id, deductions, created_at`,
		arg.OrderID, arg.Deductions,
	).Scan(&l.ID, &l.OrderID, &l.Deductions, &l.CreatedAt)
	return l, err
}

func (q *Queries) GetInventoryLogByOrder(ctx context.Context, orderID uuid.UUID) (InventoryLog, error) {
	var l InventoryLog
	err := q.db.QueryRow(ctx, `
		SELECT id, order_id, deductions, created_at
		FROM inventory_logs WHERE order_id = $1`,
		orderID,
	).Scan(&l.ID, &l.OrderID, &l.Deductions, &l.CreatedAt)
	return l, err
}
