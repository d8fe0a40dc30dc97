package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/application"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/config"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/observability"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/ordering"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/ordering/pgstore"
	pgxsession "github.com/krew-solutions/ascetic-saga-go/asceticsaga/session/pgx"
)

const (
	demoTenant  = "acme"
	demoProduct = "widget"
	demoUser    = "alice"
	poorUser    = "bob"
)

type orderStore interface {
	ordering.OrderService
	approval.Recorder
}

type environment struct {
	app       *application.Application
	host      *approval.LocalHost
	inventory *ordering.MemoryInventory
	ledger    *ordering.MemoryLedger
	logger    *zap.Logger
	closers   []func()
}

func newEnvironment(ctx context.Context, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) (*environment, error) {
	env := &environment{
		inventory: ordering.NewMemoryInventory(),
		ledger:    ordering.NewMemoryLedger(),
		logger:    logger,
	}
	env.inventory.SetStock(demoTenant, demoProduct, 20)
	env.ledger.SetBalance(demoTenant, demoUser, 10000)
	env.ledger.SetBalance(demoTenant, poorUser, 10)

	var orders orderStore
	var states approval.StateStore
	if cfg.Database.URL == "" {
		logger.Info("Using in-memory order and workflow stores")
		orders = ordering.NewMemoryOrderStore()
		states = approval.NewMemoryStateStore()
	} else {
		pool, err := pgxsession.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, pool.Close)
		if err := pgstore.Setup(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "prepare database")
		}
		orders = pgstore.NewOrderStore(pool)
		states = pgstore.NewStateStore(pool)
	}

	orderSaga := ordering.NewOrderCreationSaga(
		orders,
		ordering.NewInventoryBreaker(env.inventory, ordering.DefaultBreakerSettings("inventory"), logger),
		ordering.NewLedgerBreaker(env.ledger, ordering.DefaultBreakerSettings("ledger"), logger),
		logger,
		ordering.WithRetryPolicy(cfg.RetryPolicy()),
		ordering.WithCompensationMode(cfg.CompensationMode()),
		ordering.WithObserver(collector),
	)

	env.host = approval.NewLocalHost(logger, states,
		approval.WithPolicy(cfg.ApprovalPolicy()),
		approval.WithRecorder(orders),
		approval.WithNotifier(logNotifier{logger: logger}),
		approval.WithRecordRetry(cfg.RetryPolicy()),
	)
	env.host.Transitions().Attach(collector.ObserveTransition, "metrics")

	env.app = application.New(orderSaga, env.host, logger)
	env.app.ApproveCompletedOrders()
	return env, nil
}

func (e *environment) Close() {
	for _, closer := range e.closers {
		closer()
	}
}

// logNotifier stands in for the approver notification channel.
type logNotifier struct {
	logger *zap.Logger
}

func (n logNotifier) Notify(_ context.Context, role approval.Role, orderID string, amount float64) error {
	n.logger.Info("Approval requested",
		zap.String("approver", string(role)),
		zap.String("order_id", orderID),
		zap.Float64("amount", amount),
	)
	return nil
}
