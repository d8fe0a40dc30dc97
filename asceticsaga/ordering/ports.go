package ordering

import "context"

// OrderService owns the order rows.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (string, error)
	// CancelOrder must be a no-op for an order that is already cancelled.
	CancelOrder(ctx context.Context, orderID string) error
	ConfirmOrder(ctx context.Context, orderID string) error
}

// InventoryService reserves stock. A false result means insufficient stock.
type InventoryService interface {
	ReserveInventory(ctx context.Context, productID string, quantity int, tenantID string) (bool, error)
	ReleaseInventory(ctx context.Context, productID string, quantity int, tenantID string) error
}

// LedgerService moves user balance. A false result means insufficient funds.
type LedgerService interface {
	DebitBalance(ctx context.Context, userID string, amount float64, tenantID string) (bool, error)
	CreditBalance(ctx context.Context, userID string, amount float64, tenantID string) error
}

type CreateOrderCommand struct {
	UserID    string
	ProductID string
	Quantity  int
	Amount    float64
	TenantID  string
}
