package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func succeeding(rec *callRecorder, name string, order int) *Activity {
	return NewActivity(name, order,
		func(ctx context.Context) (WorkResult, error) {
			rec.record("do:" + name)
			return WorkResult{"name": name}, nil
		},
		func(ctx context.Context, workLog WorkLog) error {
			rec.record("undo:" + name)
			return nil
		},
	)
}

func failing(rec *callRecorder, name string, order int, err error) *Activity {
	return NewActivity(name, order,
		func(ctx context.Context) (WorkResult, error) {
			rec.record("do:" + name)
			return nil, err
		},
		func(ctx context.Context, workLog WorkLog) error {
			rec.record("undo:" + name)
			return nil
		},
	)
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Backoff:         BackoffExponential,
	}
}

func TestExecutor_CompletesAllActivitiesInOrder(t *testing.T) {
	rec := &callRecorder{}
	executor := NewExecutor("test", nil)

	run, err := executor.Execute(context.Background(), []*Activity{
		succeeding(rec, "third", 3),
		succeeding(rec, "first", 1),
		succeeding(rec, "second", 2),
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status())
	assert.Equal(t, []string{"do:first", "do:second", "do:third"}, rec.Calls())
	assert.Equal(t, []string{"first", "second", "third"}, run.ExecutedActivities())
	assert.NotEmpty(t, run.ID())
	assert.Nil(t, run.Failure())
}

func TestExecutor_StableSortKeepsInputOrderForTies(t *testing.T) {
	rec := &callRecorder{}
	executor := NewExecutor("test", nil)

	_, err := executor.Execute(context.Background(), []*Activity{
		succeeding(rec, "b", 1),
		succeeding(rec, "a", 1),
		succeeding(rec, "c", 0),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"do:c", "do:b", "do:a"}, rec.Calls())
}

func TestExecutor_CompensatesExecutedActivitiesInReverse(t *testing.T) {
	rec := &callRecorder{}
	boom := errors.New("boom")
	executor := NewExecutor("test", nil)

	run, err := executor.Execute(context.Background(), []*Activity{
		succeeding(rec, "a", 1),
		succeeding(rec, "b", 2),
		failing(rec, "c", 3, boom),
		succeeding(rec, "d", 4),
	})

	assert.Same(t, boom, err)
	assert.Equal(t, StatusCompensated, run.Status())
	assert.Equal(t, "c", run.FailedActivity())
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}, rec.Calls())
	assert.Equal(t, []string{"b", "a"}, run.CompensatedActivities())
	assert.NoError(t, run.CompensationErrors())
}

func TestExecutor_FirstActivityFailureCompensatesNothing(t *testing.T) {
	rec := &callRecorder{}
	boom := errors.New("boom")
	executor := NewExecutor("test", nil)

	run, err := executor.Execute(context.Background(), []*Activity{
		failing(rec, "a", 1, boom),
		succeeding(rec, "b", 2),
	})

	assert.Same(t, boom, err)
	assert.Equal(t, StatusCompensated, run.Status())
	assert.Equal(t, []string{"do:a"}, rec.Calls())
	assert.Empty(t, run.ExecutedActivities())
}

func TestExecutor_CompensationFailureDoesNotStopRollback(t *testing.T) {
	rec := &callRecorder{}
	boom := errors.New("boom")
	undoErr := errors.New("undo failed")
	executor := NewExecutor("test", nil)

	brokenUndo := NewActivity("b", 2,
		func(ctx context.Context) (WorkResult, error) {
			rec.record("do:b")
			return nil, nil
		},
		func(ctx context.Context, workLog WorkLog) error {
			rec.record("undo:b")
			return undoErr
		},
	)
	panickingUndo := NewActivity("c", 3,
		func(ctx context.Context) (WorkResult, error) {
			rec.record("do:c")
			return nil, nil
		},
		func(ctx context.Context, workLog WorkLog) error {
			rec.record("undo:c")
			panic("compensation exploded")
		},
	)

	run, err := executor.Execute(context.Background(), []*Activity{
		succeeding(rec, "a", 1),
		brokenUndo,
		panickingUndo,
		failing(rec, "d", 4, boom),
	})

	assert.Same(t, boom, err)
	assert.Equal(t, StatusCompensated, run.Status())
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "do:d", "undo:c", "undo:b", "undo:a"}, rec.Calls())
	assert.Equal(t, []string{"a"}, run.CompensatedActivities())

	compErr := run.CompensationErrors()
	require.Error(t, compErr)
	assert.ErrorIs(t, compErr, undoErr)
	assert.Contains(t, compErr.Error(), "compensation exploded")
}

func TestExecutor_SkipsActivitiesWithoutCompensation(t *testing.T) {
	rec := &callRecorder{}
	boom := errors.New("boom")
	executor := NewExecutor("test", nil)

	terminal := NewActivity("terminal", 2, func(ctx context.Context) (WorkResult, error) {
		rec.record("do:terminal")
		return nil, nil
	}, nil)

	run, err := executor.Execute(context.Background(), []*Activity{
		succeeding(rec, "a", 1),
		terminal,
		failing(rec, "c", 3, boom),
	})

	assert.Same(t, boom, err)
	assert.Equal(t, []string{"do:a", "do:terminal", "do:c", "undo:a"}, rec.Calls())
	assert.Equal(t, []string{"a"}, run.CompensatedActivities())
}

func TestExecutor_ParallelCompensationJoinsAll(t *testing.T) {
	rec := &callRecorder{}
	boom := errors.New("boom")
	executor := NewExecutor("test", nil, WithCompensationMode(ParallelCompensation))

	var started sync.WaitGroup
	started.Add(3)
	release := make(chan struct{})
	slowUndo := func(name string, order int) *Activity {
		return NewActivity(name, order,
			func(ctx context.Context) (WorkResult, error) { return nil, nil },
			func(ctx context.Context, workLog WorkLog) error {
				started.Done()
				<-release
				rec.record("undo:" + name)
				if name == "b" {
					return errors.New("b cannot be undone")
				}
				return nil
			},
		)
	}

	go func() {
		// every compensation must be in flight at the same time before any finishes
		started.Wait()
		close(release)
	}()

	run, err := executor.Execute(context.Background(), []*Activity{
		slowUndo("a", 1),
		slowUndo("b", 2),
		slowUndo("c", 3),
		failing(rec, "d", 4, boom),
	})

	assert.Same(t, boom, err)
	assert.Equal(t, StatusCompensated, run.Status())
	assert.ElementsMatch(t, []string{"do:d", "undo:a", "undo:b", "undo:c"}, rec.Calls())
	assert.ElementsMatch(t, []string{"a", "c"}, run.CompensatedActivities())
	assert.Error(t, run.CompensationErrors())
}

func TestExecutor_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	flaky := NewActivity("flaky", 1, func(ctx context.Context) (WorkResult, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection reset")
		}
		return WorkResult{"attempts": attempts}, nil
	}, nil, WithRetry(fastRetry(3)))

	run, err := NewExecutor("test", nil).Execute(context.Background(), []*Activity{flaky})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	result, ok := run.Result("flaky")
	require.True(t, ok)
	assert.Equal(t, 3, result["attempts"])
}

func TestExecutor_ExhaustedRetriesAreAForwardFailure(t *testing.T) {
	rec := &callRecorder{}
	attempts := 0
	lastErr := errors.New("timeout")
	flaky := NewActivity("flaky", 2, func(ctx context.Context) (WorkResult, error) {
		attempts++
		return nil, lastErr
	}, nil, WithRetry(fastRetry(3)))

	run, err := NewExecutor("test", nil).Execute(context.Background(), []*Activity{
		succeeding(rec, "a", 1),
		flaky,
	})

	assert.Same(t, lastErr, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"do:a", "undo:a"}, rec.Calls())
	assert.Equal(t, StatusCompensated, run.Status())
}

func TestExecutor_RejectionIsNotRetried(t *testing.T) {
	attempts := 0
	rejecting := NewActivity("reserve", 1, func(ctx context.Context) (WorkResult, error) {
		attempts++
		return nil, Reject("insufficient stock")
	}, nil, WithRetry(fastRetry(3)))

	_, err := NewExecutor("test", nil).Execute(context.Background(), []*Activity{rejecting})

	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.Equal(t, 1, attempts)
}

func TestExecutor_CompensationIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compensationCtxErr error = errors.New("not called")

	first := NewActivity("first", 1,
		func(ctx context.Context) (WorkResult, error) { return nil, nil },
		func(ctx context.Context, workLog WorkLog) error {
			compensationCtxErr = ctx.Err()
			return nil
		},
	)
	second := NewActivity("second", 2, func(ctx context.Context) (WorkResult, error) {
		cancel()
		return nil, ctx.Err()
	}, nil)

	run, err := NewExecutor("test", nil).Execute(ctx, []*Activity{first, second})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, compensationCtxErr)
	assert.Equal(t, []string{"first"}, run.CompensatedActivities())
}

func TestExecutor_ForwardPanicTriggersCompensation(t *testing.T) {
	rec := &callRecorder{}
	panicking := NewActivity("panicking", 2, func(ctx context.Context) (WorkResult, error) {
		panic("unexpected")
	}, nil, WithRetry(fastRetry(3)))

	run, err := NewExecutor("test", nil).Execute(context.Background(), []*Activity{
		succeeding(rec, "a", 1),
		panicking,
	})

	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "unexpected")
	assert.Equal(t, []string{"do:a", "undo:a"}, rec.Calls())
	assert.Equal(t, StatusCompensated, run.Status())
}

func TestExecutor_RejectsEmptySaga(t *testing.T) {
	run, err := NewExecutor("test", nil).Execute(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNoActivities)
	assert.Equal(t, StatusFailed, run.Status())
}

func TestExecutor_RejectsActivityWithoutWork(t *testing.T) {
	run, err := NewExecutor("test", nil).Execute(context.Background(), []*Activity{
		NewActivity("broken", 1, nil, nil),
	})

	assert.ErrorIs(t, err, ErrInvalidActivity)
	assert.Equal(t, StatusFailed, run.Status())
}

func TestExecutor_CompensationReceivesOwnWorkLog(t *testing.T) {
	var seen WorkResult
	create := NewActivity("create", 1,
		func(ctx context.Context) (WorkResult, error) {
			return WorkResult{"orderId": "o-1"}, nil
		},
		func(ctx context.Context, workLog WorkLog) error {
			seen = workLog.Result()
			return nil
		},
	)
	fail := NewActivity("fail", 2, func(ctx context.Context) (WorkResult, error) {
		return nil, Reject("no")
	}, nil)

	_, err := NewExecutor("test", nil).Execute(context.Background(), []*Activity{create, fail})

	require.Error(t, err)
	assert.Equal(t, WorkResult{"orderId": "o-1"}, seen)
}

type recordingObserver struct {
	mu          sync.Mutex
	attempts    map[string]int
	compensated []string
	finished    []Status
}

func (o *recordingObserver) ActivityAttempted(saga, activity string, attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempts == nil {
		o.attempts = map[string]int{}
	}
	o.attempts[activity] = attempt
}

func (o *recordingObserver) ActivityCompensated(saga, activity string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compensated = append(o.compensated, activity)
}

func (o *recordingObserver) RunFinished(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, run.Status())
}

func TestExecutor_NotifiesObserver(t *testing.T) {
	rec := &callRecorder{}
	observer := &recordingObserver{}
	attempts := 0
	flaky := NewActivity("flaky", 2, func(ctx context.Context) (WorkResult, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return nil, Reject("rejected")
	}, nil, WithRetry(fastRetry(3)))

	_, err := NewExecutor("test", nil, WithObserver(observer)).Execute(context.Background(), []*Activity{
		succeeding(rec, "a", 1),
		flaky,
	})

	require.Error(t, err)
	assert.Equal(t, map[string]int{"a": 1, "flaky": 2}, observer.attempts)
	assert.Equal(t, []string{"a"}, observer.compensated)
	assert.Equal(t, []Status{StatusCompensated}, observer.finished)
}
