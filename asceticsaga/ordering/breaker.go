package ordering

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures a circuit breaker around a remote service.
type BreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// The breaker trips once MinRequests were seen and the failure ratio reaches FailureThreshold.
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

func newCircuitBreaker(settings BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		// A cancelled caller says nothing about the health of the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// IsBreakerOpen reports whether err was produced by a breaker refusing the call.
// Such errors are transient: the saga retry policy will try again after backoff.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

type inventoryBreaker struct {
	next InventoryService
	cb   *gobreaker.CircuitBreaker
}

// NewInventoryBreaker guards reservations with a circuit breaker.
// Releases go straight to the wrapped service: a rollback is never refused.
func NewInventoryBreaker(next InventoryService, settings BreakerSettings, logger *zap.Logger) InventoryService {
	return &inventoryBreaker{next: next, cb: newCircuitBreaker(settings, logger)}
}

func (b *inventoryBreaker) ReserveInventory(ctx context.Context, productID string, quantity int, tenantID string) (bool, error) {
	reserved, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.ReserveInventory(ctx, productID, quantity, tenantID)
	})
	if err != nil {
		return false, errors.Wrap(err, "reserve inventory")
	}
	return reserved.(bool), nil
}

func (b *inventoryBreaker) ReleaseInventory(ctx context.Context, productID string, quantity int, tenantID string) error {
	return b.next.ReleaseInventory(ctx, productID, quantity, tenantID)
}

type ledgerBreaker struct {
	next LedgerService
	cb   *gobreaker.CircuitBreaker
}

// NewLedgerBreaker guards debits with a circuit breaker. Credits bypass it.
func NewLedgerBreaker(next LedgerService, settings BreakerSettings, logger *zap.Logger) LedgerService {
	return &ledgerBreaker{next: next, cb: newCircuitBreaker(settings, logger)}
}

func (b *ledgerBreaker) DebitBalance(ctx context.Context, userID string, amount float64, tenantID string) (bool, error) {
	debited, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.DebitBalance(ctx, userID, amount, tenantID)
	})
	if err != nil {
		return false, errors.Wrap(err, "debit balance")
	}
	return debited.(bool), nil
}

func (b *ledgerBreaker) CreditBalance(ctx context.Context, userID string, amount float64, tenantID string) error {
	return b.next.CreditBalance(ctx, userID, amount, tenantID)
}
