package ordering

import (
	"time"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/option"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCancelled OrderStatus = "CANCELLED"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderCancelled is returned when confirming an order that was rolled back.
	ErrOrderCancelled = errors.New("order is cancelled")
	// ErrApprovalAlreadyRecorded guards the single approval status update per order.
	ErrApprovalAlreadyRecorded = errors.New("order approval already recorded")
)

// Order is the row owned by the order store.
type Order struct {
	ID             string
	UserID         string
	ProductID      string
	Quantity       int
	Amount         float64
	TenantID       string
	Status         OrderStatus
	ApprovalStatus option.Option[string]
	ApprovedBy     option.Option[string]
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
