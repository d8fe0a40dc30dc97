package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHost(clock Clock, store StateStore, recorder Recorder) *LocalHost {
	return NewLocalHost(nil, store, WithClock(clock), WithRecorder(recorder))
}

func TestLocalHost_StartSignalAwait(t *testing.T) {
	clock := NewManualClock(epoch)
	recorder := &recorderSpy{}
	host := newTestHost(clock, NewMemoryStateStore(), recorder)

	var mu sync.Mutex
	var statuses []Status
	host.Transitions().Attach(func(e Transition) error {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, e.To)
		return nil
	}, "test")

	handle, err := host.Start(context.Background(), "", Request{OrderID: "order-9", Amount: 250})
	require.NoError(t, err)
	require.NotEmpty(t, handle.WorkflowID())

	require.Eventually(t, func() bool {
		state, err := handle.Query(context.Background())
		return err == nil && state.Status == StatusWaitingSupervisor
	}, time.Second, time.Millisecond)

	require.NoError(t, handle.Signal(Decision{ApproverID: "sup-1", Approved: true}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := handle.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, state.Status)

	host.Wait()
	assert.Equal(t, []recordedApproval{{"order-9", "APPROVED", "sup-1"}}, recorder.Calls())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusWaitingSupervisor, StatusApproved}, statuses)
}

func TestLocalHost_UnknownWorkflow(t *testing.T) {
	host := newTestHost(NewManualClock(epoch), nil, nil)

	assert.ErrorIs(t, host.Signal("missing", Decision{ApproverID: "a"}), ErrWorkflowNotFound)
	_, err := host.Query(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	_, err = host.Await(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestLocalHost_DuplicateWorkflowID(t *testing.T) {
	host := newTestHost(NewManualClock(epoch), nil, nil)

	_, err := host.Start(context.Background(), "wf", Request{OrderID: "o", Amount: 1})
	require.NoError(t, err)
	_, err = host.Start(context.Background(), "wf", Request{OrderID: "o", Amount: 1})
	assert.ErrorIs(t, err, ErrWorkflowExists)
	host.Wait()
}

func TestLocalHost_FinishedWorkflowIsEvicted(t *testing.T) {
	store := NewMemoryStateStore()
	host := newTestHost(NewManualClock(epoch), store, nil)

	handle, err := host.Start(context.Background(), "wf-small", Request{OrderID: "o", Amount: 10})
	require.NoError(t, err)
	host.Wait()

	_, running := host.workflow(handle.WorkflowID())
	assert.False(t, running)

	state, err := handle.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, state.Status)

	state, err = handle.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, state.Status)

	assert.NoError(t, handle.Signal(Decision{ApproverID: "late", Approved: false}), "late decision is ignored")
	assert.ErrorIs(t, handle.Signal(Decision{}), ErrInvalidDecision)

	_, err = host.Start(context.Background(), "wf-small", Request{OrderID: "o", Amount: 10})
	assert.ErrorIs(t, err, ErrWorkflowExists)
}

func TestLocalHost_KeepsWorkflowsWithoutStore(t *testing.T) {
	host := newTestHost(NewManualClock(epoch), nil, nil)

	_, err := host.Start(context.Background(), "wf-small", Request{OrderID: "o", Amount: 10})
	require.NoError(t, err)
	host.Wait()

	state, err := host.Query(context.Background(), "wf-small")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, state.Status)
}

func TestLocalHost_QueryFallsBackToStore(t *testing.T) {
	store := NewMemoryStateStore()
	require.NoError(t, store.SaveState(context.Background(), State{
		WorkflowID: "finished-elsewhere",
		OrderID:    "o",
		Status:     StatusTimeout,
	}))
	host := newTestHost(NewManualClock(epoch), store, nil)

	state, err := host.Query(context.Background(), "finished-elsewhere")
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, state.Status)

	state, err = host.Await(context.Background(), "finished-elsewhere")
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, state.Status)
}

func TestManualClock_FiresDueTimersOnly(t *testing.T) {
	clock := NewManualClock(epoch)
	short := clock.NewTimer(time.Minute)
	long := clock.NewTimer(time.Hour)

	clock.Advance(time.Minute)

	select {
	case at := <-short.C():
		assert.Equal(t, epoch.Add(time.Minute), at)
	default:
		t.Fatal("short timer did not fire")
	}
	select {
	case <-long.C():
		t.Fatal("long timer fired early")
	default:
	}
	assert.True(t, long.Stop())
	assert.Zero(t, clock.PendingTimers())
}
