package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tapri-pos/api/internal/database"
	"github.com/tapri-pos/api/internal/enum"
)

// Errors returned by the status service.
var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrUnauthorized           = errors.New("not allowed to modify this order")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrStatusConflict means the order's status changed between read and
	// write; the caller should re-read and retry.
	ErrStatusConflict = errors.New("order status changed, please retry")
)

// statusRank orders the lifecycle. Progression is forward-only but not
// strictly adjacent: staff may jump e.g. PENDING straight to READY. SERVED
// and OUT_FOR_DELIVERY share a rank because they are the two branches after
// READY; neither can follow the other.
var statusRank = map[string]int{
	enum.OrderStatusPending:        0,
	enum.OrderStatusAccepted:       1,
	enum.OrderStatusCooking:        2,
	enum.OrderStatusReady:          3,
	enum.OrderStatusServed:         4,
	enum.OrderStatusOutForDelivery: 4,
	enum.OrderStatusDelivered:      5,
	enum.OrderStatusPaid:           6,
	enum.OrderStatusCompleted:      7,
}

// IsValidStatus reports whether s names any lifecycle status, CANCELLED
// included.
func IsValidStatus(s string) bool {
	if s == enum.OrderStatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// IsDone reports whether the status counts as finished for customer-facing
// "is this done" queries.
func IsDone(s string) bool {
	switch s {
	case enum.OrderStatusServed, enum.OrderStatusDelivered,
		enum.OrderStatusPaid, enum.OrderStatusCompleted:
		return true
	}
	return false
}

func isStaffRole(role string) bool {
	return role == enum.UserRoleAdmin || role == enum.UserRoleCashier
}

// StatusStore defines the DB methods needed for lifecycle transitions.
// Satisfied by *database.Queries; narrow interface for testability.
type StatusStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

// StatusService governs post-creation lifecycle transitions and who may
// invoke them. Every transition appends to the order's status history; the
// history is never truncated or rewritten.
type StatusService struct {
	store StatusStore
	now   func() time.Time
}

func NewStatusService(store StatusStore) *StatusService {
	return &StatusService{store: store, now: time.Now}
}

// Advance moves an order to a later status on behalf of a kitchen/staff
// actor. Cancellation goes through Cancel, not here.
func (s *StatusService) Advance(ctx context.Context, orderID uuid.UUID, newStatus, actorRole string) (database.Order, error) {
	if !IsValidStatus(newStatus) {
		return database.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	if newStatus == enum.OrderStatusCancelled {
		return database.Order{}, fmt.Errorf("%w: use the cancellation endpoint", ErrInvalidStatus)
	}
	switch actorRole {
	case enum.UserRoleAdmin, enum.UserRoleCashier, enum.UserRoleKitchen:
	default:
		return database.Order{}, ErrUnauthorized
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if order.Status == enum.OrderStatusCancelled {
		return database.Order{}, fmt.Errorf("%w: order is cancelled", ErrInvalidStateTransition)
	}
	if statusRank[newStatus] <= statusRank[order.Status] {
		return database.Order{}, fmt.Errorf("%w: cannot move from %s to %s",
			ErrInvalidStateTransition, order.Status, newStatus)
	}

	return s.applyTransition(ctx, order, newStatus)
}

// CancelRequest identifies the order and the acting identity. Non-staff
// actors must own the order (matching session or customer id) and may only
// cancel while it is still PENDING.
type CancelRequest struct {
	OrderID    uuid.UUID
	ActorRole  string
	CustomerID string
	SessionID  string
}

// Cancel marks an order CANCELLED. Cancellation is a status, not a
// deletion: the row and its history stay.
func (s *StatusService) Cancel(ctx context.Context, req CancelRequest) (database.Order, error) {
	order, err := s.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if order.Status == enum.OrderStatusCancelled {
		return database.Order{}, fmt.Errorf("%w: order is already cancelled", ErrInvalidStateTransition)
	}

	if !isStaffRole(req.ActorRole) {
		if !ownsOrder(order, req) {
			return database.Order{}, ErrUnauthorized
		}
		if order.Status != enum.OrderStatusPending {
			return database.Order{}, fmt.Errorf("%w: only pending orders can be cancelled",
				ErrInvalidStateTransition)
		}
	}

	return s.applyTransition(ctx, order, enum.OrderStatusCancelled)
}

func (s *StatusService) applyTransition(ctx context.Context, order database.Order, newStatus string) (database.Order, error) {
	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         order.ID,
		Status:     newStatus,
		PrevStatus: order.Status,
		Change: database.StatusChange{
			Status:    newStatus,
			ChangedAt: s.now(),
		},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStatusConflict
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

func ownsOrder(order database.Order, req CancelRequest) bool {
	if req.SessionID != "" && req.SessionID == order.SessionID {
		return true
	}
	if req.CustomerID != "" && order.CustomerID.Valid {
		if cid, err := uuid.Parse(req.CustomerID); err == nil {
			return cid == uuid.UUID(order.CustomerID.Bytes)
		}
	}
	return false
}
