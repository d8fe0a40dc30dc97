package pgstore

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/approval"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/session"
)

// StateStore implements approval.StateStore with one JSONB row per workflow.
type StateStore struct {
	pool session.SessionPool
}

func NewStateStore(pool session.SessionPool) *StateStore {
	return &StateStore{pool: pool}
}

func (s *StateStore) SaveState(ctx context.Context, state approval.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encode approval state")
	}
	return withConnection(ctx, s.pool, func(conn session.DbConnection) error {
		_, err := conn.Exec(
			`INSERT INTO approval_workflows (workflow_id, order_id, status, state, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (workflow_id) DO UPDATE
			SET status = EXCLUDED.status, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
			state.WorkflowID, state.OrderID, string(state.Status), data, state.UpdatedAt,
		)
		return errors.Wrap(err, "upsert approval state")
	})
}

func (s *StateStore) LoadState(ctx context.Context, workflowID string) (approval.State, error) {
	var state approval.State
	err := withConnection(ctx, s.pool, func(conn session.DbConnection) error {
		var data []byte
		err := conn.QueryRow(`SELECT state FROM approval_workflows WHERE workflow_id = $1`, workflowID).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(approval.ErrWorkflowNotFound, "workflow %s", workflowID)
		}
		if err != nil {
			return errors.Wrap(err, "select approval state")
		}
		return errors.Wrap(json.Unmarshal(data, &state), "decode approval state")
	})
	return state, err
}
