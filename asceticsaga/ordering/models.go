package ordering

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/option"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
)

var ErrInvalidRequest = errors.New("invalid order request")

// Request is the input of the order creation saga.
type Request struct {
	UserID    string  `json:"userId"`
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Amount    float64 `json:"amount"`
	TenantID  string  `json:"tenantId"`
}

func (r Request) Validate() error {
	switch {
	case r.UserID == "":
		return errors.WithMessage(ErrInvalidRequest, "user id is required")
	case r.ProductID == "":
		return errors.WithMessage(ErrInvalidRequest, "product id is required")
	case r.Quantity <= 0:
		return errors.WithMessagef(ErrInvalidRequest, "quantity must be positive, got %d", r.Quantity)
	case r.Amount < 0:
		return errors.WithMessagef(ErrInvalidRequest, "amount must not be negative, got %.2f", r.Amount)
	}
	return nil
}

// OrderSagaContext is the typed state shared by the steps of one saga run.
// Later steps read what earlier steps produced; compensations capture it.
type OrderSagaContext struct {
	Request           Request
	OrderID           string
	InventoryReserved bool
	BalanceDebited    bool
}

// Result is the final outcome of an order creation saga.
// Status is COMPLETED or COMPENSATED for every executed run. FAILED means the
// request was rejected by validation before any step ran: SagaID, OrderID and
// FailedStep are then empty and Message carries the validation error.
// On COMPENSATED the OrderID may still be set: the order row exists but is
// cancelled and must be treated as non-existent.
type Result struct {
	SagaID     string                `json:"sagaId"`
	OrderID    option.Option[string] `json:"orderId"`
	Status     saga.Status           `json:"status"`
	Message    string                `json:"message"`
	Success    bool                  `json:"success"`
	FailedStep string                `json:"failedStep,omitempty"`
}
