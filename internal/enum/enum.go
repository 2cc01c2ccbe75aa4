package enum

// ── State machines (CHECK constrained in DB) ──

// Order statuses form a forward-only progression; SERVED, DELIVERED, PAID
// and COMPLETED all count as "done" for customer-facing queries.
const (
	OrderStatusPending        = "PENDING"
	OrderStatusAccepted       = "ACCEPTED"
	OrderStatusCooking        = "COOKING"
	OrderStatusReady          = "READY"
	OrderStatusServed         = "SERVED"
	OrderStatusOutForDelivery = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      = "DELIVERED"
	OrderStatusPaid           = "PAID"
	OrderStatusCompleted      = "COMPLETED"
	OrderStatusCancelled      = "CANCELLED"
)

// ── Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin   = "ADMIN"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeTakeaway = "TAKEAWAY"
	OrderTypeDelivery = "DELIVERY"
)

// Ingredient units of measure.
const (
	UnitGram       = "g"
	UnitMillilitre = "ml"
	UnitPiece      = "pcs"
	UnitSlice      = "slice"
	UnitKilogram   = "kg"
	UnitLitre      = "l"
)

// IsValidUnit reports whether unit is one of the accepted measures. The DB
// enforces the same set via CHECK; validating here gives a readable error.
func IsValidUnit(unit string) bool {
	switch unit {
	case UnitGram, UnitMillilitre, UnitPiece, UnitSlice, UnitKilogram, UnitLitre:
		return true
	}
	return false
}

// ── Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash   = "CASH"
	PaymentMethodCard   = "CARD"
	PaymentMethodUPI    = "UPI"
	PaymentMethodOnline = "ONLINE"
)

// Order sources. POS-sourced orders are staff-entered and bypass the
// customer-facing availability and stock gates.
const (
	SourceOnline = "online"
	SourcePOS    = "pos"
)

const SettingKitchenOpen = "kitchen_open"
