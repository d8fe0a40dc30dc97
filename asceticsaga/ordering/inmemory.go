package ordering

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/option"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
)

// MemoryOrderStore keeps orders in process memory.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	now    func() time.Time
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[string]*Order),
		now:    time.Now,
	}
}

func (s *MemoryOrderStore) CreateOrder(_ context.Context, cmd CreateOrderCommand) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	order := &Order{
		ID:             uuid.NewString(),
		UserID:         cmd.UserID,
		ProductID:      cmd.ProductID,
		Quantity:       cmd.Quantity,
		Amount:         cmd.Amount,
		TenantID:       cmd.TenantID,
		Status:         OrderCreated,
		ApprovalStatus: option.Nothing[string](),
		ApprovedBy:     option.Nothing[string](),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.orders[order.ID] = order
	return order.ID, nil
}

// CancelOrder is idempotent: cancelling a cancelled order changes nothing.
func (s *MemoryOrderStore) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return saga.NonRetryable(errors.Wrapf(ErrOrderNotFound, "order %s", orderID))
	}
	if order.Status == OrderCancelled {
		return nil
	}
	order.Status = OrderCancelled
	order.UpdatedAt = s.now()
	return nil
}

func (s *MemoryOrderStore) ConfirmOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return saga.NonRetryable(errors.Wrapf(ErrOrderNotFound, "order %s", orderID))
	}
	if order.Status == OrderCancelled {
		return saga.NonRetryable(errors.Wrapf(ErrOrderCancelled, "order %s", orderID))
	}
	order.Status = OrderConfirmed
	order.UpdatedAt = s.now()
	return nil
}

// RecordApproval stores the approval outcome of an order. Only the first call succeeds.
func (s *MemoryOrderStore) RecordApproval(_ context.Context, orderID, status, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return saga.NonRetryable(errors.Wrapf(ErrOrderNotFound, "order %s", orderID))
	}
	if order.ApprovalStatus.IsSome() {
		return saga.NonRetryable(errors.Wrapf(ErrApprovalAlreadyRecorded, "order %s", orderID))
	}
	order.ApprovalStatus = option.Some(status)
	order.ApprovedBy = option.Some(actor)
	order.UpdatedAt = s.now()
	return nil
}

// Get returns a copy of the order.
func (s *MemoryOrderStore) Get(orderID string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *order, true
}

func stockKey(tenantID, productID string) string {
	return tenantID + "/" + productID
}

// MemoryInventory tracks available stock per tenant and product.
type MemoryInventory struct {
	mu    sync.Mutex
	stock map[string]int
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{stock: make(map[string]int)}
}

func (i *MemoryInventory) SetStock(tenantID, productID string, quantity int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stock[stockKey(tenantID, productID)] = quantity
}

func (i *MemoryInventory) Stock(tenantID, productID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stock[stockKey(tenantID, productID)]
}

func (i *MemoryInventory) ReserveInventory(_ context.Context, productID string, quantity int, tenantID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := stockKey(tenantID, productID)
	if i.stock[key] < quantity {
		return false, nil
	}
	i.stock[key] -= quantity
	return true, nil
}

func (i *MemoryInventory) ReleaseInventory(_ context.Context, productID string, quantity int, tenantID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stock[stockKey(tenantID, productID)] += quantity
	return nil
}

// MemoryLedger tracks user balances per tenant.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]float64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]float64)}
}

func (l *MemoryLedger) SetBalance(tenantID, userID string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[stockKey(tenantID, userID)] = amount
}

func (l *MemoryLedger) Balance(tenantID, userID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[stockKey(tenantID, userID)]
}

func (l *MemoryLedger) DebitBalance(_ context.Context, userID string, amount float64, tenantID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := stockKey(tenantID, userID)
	if l.balances[key] < amount {
		return false, nil
	}
	l.balances[key] -= amount
	return true, nil
}

func (l *MemoryLedger) CreditBalance(_ context.Context, userID string, amount float64, tenantID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[stockKey(tenantID, userID)] += amount
	return nil
}
