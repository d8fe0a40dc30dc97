package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/option"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/ordering"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/session"
)

// OrderStore implements ordering.OrderService and approval.Recorder on the orders table.
type OrderStore struct {
	pool  session.SessionPool
	now   func() time.Time
	newID func() string
}

func NewOrderStore(pool session.SessionPool) *OrderStore {
	return &OrderStore{
		pool:  pool,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (s *OrderStore) CreateOrder(ctx context.Context, cmd ordering.CreateOrderCommand) (string, error) {
	id := s.newID()
	now := s.now()
	err := withConnection(ctx, s.pool, func(conn session.DbConnection) error {
		_, err := conn.Exec(
			`INSERT INTO orders (id, user_id, product_id, quantity, amount, tenant_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			id, cmd.UserID, cmd.ProductID, cmd.Quantity, cmd.Amount, cmd.TenantID, string(ordering.OrderCreated), now,
		)
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "insert order")
	}
	return id, nil
}

// CancelOrder is idempotent: a second cancel updates nothing and succeeds.
func (s *OrderStore) CancelOrder(ctx context.Context, orderID string) error {
	return withTransaction(ctx, s.pool, func(conn session.DbConnection) error {
		result, err := conn.Exec(
			`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1 AND status <> $2`,
			orderID, string(ordering.OrderCancelled), s.now(),
		)
		if err != nil {
			return errors.Wrap(err, "cancel order")
		}
		if result.RowsAffected() > 0 {
			return nil
		}
		_, err = currentStatus(conn, orderID)
		return err
	})
}

func (s *OrderStore) ConfirmOrder(ctx context.Context, orderID string) error {
	return withTransaction(ctx, s.pool, func(conn session.DbConnection) error {
		result, err := conn.Exec(
			`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
			orderID, string(ordering.OrderConfirmed), s.now(), string(ordering.OrderCreated),
		)
		if err != nil {
			return errors.Wrap(err, "confirm order")
		}
		if result.RowsAffected() > 0 {
			return nil
		}
		status, err := currentStatus(conn, orderID)
		if err != nil {
			return err
		}
		if status == ordering.OrderCancelled {
			return saga.NonRetryable(errors.Wrapf(ordering.ErrOrderCancelled, "order %s", orderID))
		}
		return nil
	})
}

// RecordApproval sets the approval outcome. Only the first call for an order succeeds.
func (s *OrderStore) RecordApproval(ctx context.Context, orderID, status, actor string) error {
	return withTransaction(ctx, s.pool, func(conn session.DbConnection) error {
		result, err := conn.Exec(
			`UPDATE orders SET approval_status = $2, approved_by = $3, updated_at = $4
			WHERE id = $1 AND approval_status IS NULL`,
			orderID, status, actor, s.now(),
		)
		if err != nil {
			return errors.Wrap(err, "record approval")
		}
		if result.RowsAffected() > 0 {
			return nil
		}
		if _, err := currentStatus(conn, orderID); err != nil {
			return err
		}
		return saga.NonRetryable(errors.Wrapf(ordering.ErrApprovalAlreadyRecorded, "order %s", orderID))
	})
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (ordering.Order, error) {
	var order ordering.Order
	err := withConnection(ctx, s.pool, func(conn session.DbConnection) error {
		var status string
		var approvalStatus, approvedBy *string
		err := conn.QueryRow(
			`SELECT id, user_id, product_id, quantity, amount, tenant_id, status,
				approval_status, approved_by, created_at, updated_at
			FROM orders WHERE id = $1`,
			orderID,
		).Scan(
			&order.ID, &order.UserID, &order.ProductID, &order.Quantity, &order.Amount, &order.TenantID, &status,
			&approvalStatus, &approvedBy, &order.CreatedAt, &order.UpdatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(ordering.ErrOrderNotFound, "order %s", orderID)
		}
		if err != nil {
			return errors.Wrap(err, "select order")
		}
		order.Status = ordering.OrderStatus(status)
		order.ApprovalStatus = fromNullable(approvalStatus)
		order.ApprovedBy = fromNullable(approvedBy)
		return nil
	})
	return order, err
}

func currentStatus(conn session.DbConnection, orderID string) (ordering.OrderStatus, error) {
	var status string
	err := conn.QueryRow(`SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", saga.NonRetryable(errors.Wrapf(ordering.ErrOrderNotFound, "order %s", orderID))
	}
	if err != nil {
		return "", errors.Wrap(err, "select order status")
	}
	return ordering.OrderStatus(status), nil
}

func fromNullable(val *string) option.Option[string] {
	if val == nil {
		return option.Nothing[string]()
	}
	return option.Some(*val)
}
