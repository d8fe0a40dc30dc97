package ordering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/option"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
)

const SagaName = "OrderCreation"

// Step names double as the failing role reported in Result.Message.
const (
	StepCreateOrder      = "create order"
	StepReserveInventory = "reserve inventory"
	StepDebitBalance     = "debit balance"
	StepConfirmOrder     = "confirm order"
)

// Option configures an OrderCreationSaga.
type Option func(*options)

type options struct {
	retry    saga.RetryPolicy
	mode     saga.CompensationMode
	observer saga.Observer
}

// WithRetryPolicy sets the policy applied to the create, reserve and debit steps.
func WithRetryPolicy(policy saga.RetryPolicy) Option {
	return func(o *options) {
		o.retry = policy
	}
}

func WithCompensationMode(mode saga.CompensationMode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

func WithObserver(observer saga.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// OrderCreationSaga creates an order, reserves stock, debits the buyer and
// confirms the order. Any failure rolls back the steps already done.
type OrderCreationSaga struct {
	orders    OrderService
	inventory InventoryService
	ledger    LedgerService
	executor  *saga.Executor
	retry     saga.RetryPolicy
	logger    *zap.Logger
}

func NewOrderCreationSaga(
	orders OrderService,
	inventory InventoryService,
	ledger LedgerService,
	logger *zap.Logger,
	opts ...Option,
) *OrderCreationSaga {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{
		retry: saga.DefaultRetryPolicy(),
		mode:  saga.ParallelCompensation,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &OrderCreationSaga{
		orders:    orders,
		inventory: inventory,
		ledger:    ledger,
		executor: saga.NewExecutor(SagaName, logger,
			saga.WithCompensationMode(o.mode),
			saga.WithObserver(o.observer),
		),
		retry:  o.retry,
		logger: logger,
	}
}

// Execute runs the saga to completion or to full compensation. An invalid
// request is not executed and yields a FAILED result.
func (s *OrderCreationSaga) Execute(ctx context.Context, req Request) Result {
	if err := req.Validate(); err != nil {
		s.logger.Warn("Order saga request rejected", zap.Error(err))
		return Result{
			Status:  saga.StatusFailed,
			Message: err.Error(),
			Success: false,
		}
	}

	sagaCtx := &OrderSagaContext{Request: req}
	run, err := s.executor.Execute(ctx, s.activities(sagaCtx))

	result := Result{
		SagaID:  run.ID(),
		OrderID: option.Nothing[string](),
		Status:  run.Status(),
	}
	if sagaCtx.OrderID != "" {
		result.OrderID = option.Some(sagaCtx.OrderID)
	}

	if err != nil {
		result.FailedStep = run.FailedActivity()
		result.Message = fmt.Sprintf("order saga failed at %s: %v", run.FailedActivity(), err)
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("order %s created", sagaCtx.OrderID)
	return result
}

func (s *OrderCreationSaga) activities(sc *OrderSagaContext) []*saga.Activity {
	req := sc.Request
	return []*saga.Activity{
		saga.NewActivity(StepCreateOrder, 1,
			func(ctx context.Context) (saga.WorkResult, error) {
				orderID, err := s.orders.CreateOrder(ctx, CreateOrderCommand{
					UserID:    req.UserID,
					ProductID: req.ProductID,
					Quantity:  req.Quantity,
					Amount:    req.Amount,
					TenantID:  req.TenantID,
				})
				if err != nil {
					return nil, err
				}
				sc.OrderID = orderID
				return saga.WorkResult{"orderId": orderID}, nil
			},
			func(ctx context.Context, _ saga.WorkLog) error {
				return s.orders.CancelOrder(ctx, sc.OrderID)
			},
			saga.WithRetry(s.retry),
		),
		saga.NewActivity(StepReserveInventory, 2,
			func(ctx context.Context) (saga.WorkResult, error) {
				ok, err := s.inventory.ReserveInventory(ctx, req.ProductID, req.Quantity, req.TenantID)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, saga.Reject("insufficient stock for product %s", req.ProductID)
				}
				sc.InventoryReserved = true
				return saga.WorkResult{"productId": req.ProductID, "quantity": req.Quantity}, nil
			},
			func(ctx context.Context, _ saga.WorkLog) error {
				return s.inventory.ReleaseInventory(ctx, req.ProductID, req.Quantity, req.TenantID)
			},
			saga.WithRetry(s.retry),
		),
		saga.NewActivity(StepDebitBalance, 3,
			func(ctx context.Context) (saga.WorkResult, error) {
				ok, err := s.ledger.DebitBalance(ctx, req.UserID, req.Amount, req.TenantID)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, saga.Reject("insufficient funds for user %s", req.UserID)
				}
				sc.BalanceDebited = true
				return saga.WorkResult{"userId": req.UserID, "amount": req.Amount}, nil
			},
			func(ctx context.Context, _ saga.WorkLog) error {
				return s.ledger.CreditBalance(ctx, req.UserID, req.Amount, req.TenantID)
			},
			saga.WithRetry(s.retry),
		),
		saga.NewActivity(StepConfirmOrder, 4,
			func(ctx context.Context) (saga.WorkResult, error) {
				return nil, s.orders.ConfirmOrder(ctx, sc.OrderID)
			},
			nil,
		),
	}
}
