// Package pgstore keeps orders and approval workflow snapshots in PostgreSQL.
package pgstore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/session"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	product_id      TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	amount          DOUBLE PRECISION NOT NULL,
	tenant_id       TEXT NOT NULL,
	status          TEXT NOT NULL,
	approval_status TEXT NULL,
	approved_by     TEXT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS approval_workflows (
	workflow_id TEXT PRIMARY KEY,
	order_id    TEXT NOT NULL,
	status      TEXT NOT NULL,
	state       JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);`

// Setup creates the tables used by this package.
func Setup(ctx context.Context, pool session.SessionPool) error {
	return withConnection(ctx, pool, func(conn session.DbConnection) error {
		_, err := conn.Exec(schemaSQL)
		return errors.Wrap(err, "create schema")
	})
}

func withConnection(ctx context.Context, pool session.SessionPool, fn func(session.DbConnection) error) error {
	return pool.Session(ctx, func(s session.Session) error {
		db, ok := session.DbSessionOf(s)
		if !ok {
			return errors.New("pgstore: session has no database connection")
		}
		return fn(db.Connection())
	})
}

func withTransaction(ctx context.Context, pool session.SessionPool, fn func(session.DbConnection) error) error {
	return pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			db, ok := session.DbSessionOf(tx)
			if !ok {
				return errors.New("pgstore: session has no database connection")
			}
			return fn(db.Connection())
		})
	})
}
