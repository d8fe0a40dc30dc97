package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/session"
)

// Query is one statement seen by a DbSessionStub.
type Query struct {
	SQL    string
	Params []any
}

func NewDbSessionStub(rows ...*RowsStub) *DbSessionStub {
	stub := &DbSessionStub{
		rows:         rows,
		RowsAffected: 1,
	}
	stub.conn = &connectionStub{session: stub}
	return stub
}

// DbSessionStub records every statement and serves canned rows in order.
type DbSessionStub struct {
	mu           sync.Mutex
	rows         []*RowsStub
	queries      []Query
	conn         *connectionStub
	ActualQuery  string
	ActualParams []any
	RowsAffected int64
	ExecErr      error
	Atomics      int
}

func (s *DbSessionStub) Context() context.Context {
	return context.Background()
}

func (s *DbSessionStub) Atomic(callback session.SessionCallback) error {
	s.mu.Lock()
	s.Atomics++
	s.mu.Unlock()
	return callback(s)
}

func (s *DbSessionStub) Connection() session.DbConnection {
	return s.conn
}

func (s *DbSessionStub) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Query(nil), s.queries...)
}

func (s *DbSessionStub) record(query string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActualQuery = query
	s.ActualParams = args
	s.queries = append(s.queries, Query{SQL: query, Params: args})
}

func (s *DbSessionStub) nextRows() *RowsStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 {
		return NewRowsStub()
	}
	rows := s.rows[0]
	s.rows = s.rows[1:]
	return rows
}

// SessionPoolStub hands out the same stub session on every call.
type SessionPoolStub struct {
	Stub *DbSessionStub
}

func NewSessionPoolStub(stub *DbSessionStub) *SessionPoolStub {
	return &SessionPoolStub{Stub: stub}
}

func (p *SessionPoolStub) Session(ctx context.Context, callback session.SessionPoolCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return callback(p.Stub)
}

type connectionStub struct {
	session *DbSessionStub
}

func (c *connectionStub) Exec(query string, args ...any) (session.Result, error) {
	c.session.record(query, args)
	if c.session.ExecErr != nil {
		return nil, c.session.ExecErr
	}
	return resultStub(c.session.RowsAffected), nil
}

func (c *connectionStub) Query(query string, args ...any) (session.Rows, error) {
	c.session.record(query, args)
	return c.session.nextRows(), nil
}

func (c *connectionStub) QueryRow(query string, args ...any) session.Row {
	c.session.record(query, args)
	return &RowStub{rows: c.session.nextRows()}
}

type resultStub int64

func (r resultStub) RowsAffected() int64 {
	return int64(r)
}

// ErrNoRows is returned by RowStub when no canned row is left, matching the pgx driver.
var ErrNoRows = pgx.ErrNoRows

func NewRowsStub(rows ...[]any) *RowsStub {
	return &RowsStub{
		rows:   rows,
		idx:    -1,
		Closed: false,
	}
}

type RowsStub struct {
	rows   [][]any
	idx    int
	Closed bool
}

func (r *RowsStub) Close() {
	r.Closed = true
}

func (r *RowsStub) Err() error {
	return nil
}

func (r *RowsStub) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *RowsStub) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return errors.New("no current row")
	}

	row := r.rows[r.idx]
	for i, val := range row {
		if i >= len(dest) {
			break
		}

		switch d := dest[i].(type) {
		case *int:
			*d = val.(int)
		case *int64:
			*d = val.(int64)
		case *string:
			*d = val.(string)
		case *bool:
			*d = val.(bool)
		case *[]byte:
			*d = val.([]byte)
		case *float64:
			*d = val.(float64)
		case *time.Time:
			*d = val.(time.Time)
		case **string:
			if val == nil {
				*d = nil
			} else {
				s := val.(string)
				*d = &s
			}
		default:
			return errors.Errorf("unsupported scan type %T", d)
		}
	}
	return nil
}

type RowStub struct {
	rows *RowsStub
}

func (r *RowStub) Scan(dest ...any) error {
	if !r.rows.Next() {
		return ErrNoRows
	}
	return r.rows.Scan(dest...)
}
