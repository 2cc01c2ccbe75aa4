package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// MenuItem is a sellable catalog entry. Quantity is the flat stock counter
// used only when the item has no recipe links; recipe-backed items derive
// their stock from ingredient levels instead.
type MenuItem struct {
	ID                uuid.UUID
	Name              string
	Category          string
	Price             pgtype.Numeric
	Cost              pgtype.Numeric
	Quantity          int32
	LowStockThreshold int32
	InStock           bool
	IsTimeBound       bool
	AvailableFrom     pgtype.Text
	AvailableUntil    pgtype.Text
	IsSubscription    bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Ingredient stock is only ever mutated through relative updates
// (DecrementIngredientStock / RestockIngredient).
type Ingredient struct {
	ID                uuid.UUID
	Name              string
	CurrentStock      pgtype.Numeric
	Unit              string
	CostPerUnit       pgtype.Numeric
	LowStockThreshold pgtype.Numeric
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RecipeLink is the explicit (menu item, ingredient) junction row:
// QuantityRequired of the ingredient, in the ingredient's unit, is consumed
// per one unit of the menu item.
type RecipeLink struct {
	ID               uuid.UUID
	MenuItemID       uuid.UUID
	IngredientID     uuid.UUID
	QuantityRequired pgtype.Numeric
}

// StatusChange is one entry of an order's append-only status history,
// stored as jsonb.
type StatusChange struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

type Order struct {
	ID              uuid.UUID
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
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem captures the unit price at submission time; later menu price
// changes must not affect it.
type OrderItem struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	MenuItemID    uuid.UUID
	Quantity      int32
	UnitPrice     pgtype.Numeric
	Customization pgtype.Text
}

// Deduction is one (ingredient, amount) tuple of an inventory log entry,
// stored as jsonb.
type Deduction struct {
	IngredientID   uuid.UUID       `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	Amount         decimal.Decimal `json:"amount"`
	Unit           string          `json:"unit"`
}

// InventoryLog is the append-only audit record of the ingredient deductions
// applied for one order.
type InventoryLog struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	Deductions []Deduction
	CreatedAt  time.Time
}

type Customer struct {
	ID            uuid.UUID
	Phone         string
	Name          string
	LoyaltyPoints int32
	TotalSpent    pgtype.Numeric
	VisitCount    int32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type User struct {
	ID           uuid.UUID
	FullName     string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
