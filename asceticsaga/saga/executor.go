package saga

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CompensationMode selects how executed activities are rolled back.
type CompensationMode int

const (
	// SequentialCompensation undoes activities one by one in reverse execution order.
	SequentialCompensation CompensationMode = iota
	// ParallelCompensation undoes all executed activities concurrently and joins on all of them.
	ParallelCompensation
)

func (m CompensationMode) String() string {
	if m == ParallelCompensation {
		return "parallel"
	}
	return "sequential"
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithCompensationMode(mode CompensationMode) ExecutorOption {
	return func(e *Executor) {
		e.mode = mode
	}
}

func WithObserver(observer Observer) ExecutorOption {
	return func(e *Executor) {
		if observer != nil {
			e.observer = observer
		}
	}
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// Executor runs saga activities. It holds no per-run state, so a single
// Executor may serve any number of concurrent runs.
type Executor struct {
	name     string
	logger   *zap.Logger
	mode     CompensationMode
	observer Observer
	now      func() time.Time
}

// NewExecutor creates an executor for sagas of the given name.
func NewExecutor(name string, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		name:     name,
		logger:   logger,
		mode:     SequentialCompensation,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Name() string {
	return e.name
}

func (e *Executor) CompensationMode() CompensationMode {
	return e.mode
}

// Execute runs the activities sorted by order (stable, ties keep input order).
// On a forward failure every executed activity is compensated and the
// original failure is returned together with the run record.
func (e *Executor) Execute(ctx context.Context, activities []*Activity) (*Run, error) {
	sorted := make([]*Activity, len(activities))
	copy(sorted, activities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})

	run := newRun(ulid.Make().String(), e.name, sorted, e.now())
	logger := e.logger.With(zap.String("saga_id", run.ID()), zap.String("saga_name", e.name))

	if err := validate(sorted); err != nil {
		run.failure = err
		e.finish(run, StatusFailed)
		logger.Error("Saga rejected before execution", zap.Error(err))
		return run, err
	}

	logger.Info("Starting saga execution", zap.Int("total_activities", len(sorted)))

	for !run.IsCompleted() {
		activity := run.nextActivity()
		result, err := e.doWork(ctx, logger, activity)
		if err != nil {
			run.failedActivity = activity.Name()
			run.failure = err
			logger.Error("Saga activity failed",
				zap.String("activity", activity.Name()),
				zap.Int("order", activity.Order()),
				zap.Bool("rejected", IsRejection(err)),
				zap.Error(err),
			)
			e.compensate(context.WithoutCancel(ctx), logger, run)
			return run, err
		}

		run.addCompletedWork(NewWorkLog(activity, result, e.now()))
		logger.Debug("Saga activity completed", zap.String("activity", activity.Name()))
	}

	e.finish(run, StatusCompleted)
	logger.Info("Saga completed successfully",
		zap.Int("completed_activities", len(run.executed)),
		zap.Duration("duration", run.Duration()),
	)
	return run, nil
}

func validate(activities []*Activity) error {
	if len(activities) == 0 {
		return ErrNoActivities
	}
	for i, a := range activities {
		if a == nil || a.work == nil {
			return errors.Wrapf(ErrInvalidActivity, "activity at position %d has no forward step", i)
		}
	}
	return nil
}

func (e *Executor) doWork(ctx context.Context, logger *zap.Logger, activity *Activity) (WorkResult, error) {
	var result WorkResult
	attempt := 0
	op := func(ctx context.Context) error {
		attempt++
		e.observer.ActivityAttempted(e.name, activity.Name(), attempt)
		if attempt > 1 {
			logger.Warn("Retrying saga activity",
				zap.String("activity", activity.Name()),
				zap.Int("attempt", attempt),
			)
		}
		r, err := activity.doWork(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	policy, ok := activity.RetryPolicy()
	if !ok {
		return result, op(ctx)
	}
	return result, policy.Do(ctx, op)
}

func (e *Executor) compensate(ctx context.Context, logger *zap.Logger, run *Run) {
	run.setStatus(StatusCompensating)
	logger.Info("Starting saga compensation",
		zap.Int("activities_to_compensate", len(run.completedWorkLogs)),
		zap.Stringer("mode", e.mode),
	)

	workLogs := make([]WorkLog, 0, len(run.completedWorkLogs))
	for run.IsInProgress() {
		workLogs = append(workLogs, run.lastCompletedWork())
	}

	if e.mode == ParallelCompensation {
		var wg sync.WaitGroup
		for _, workLog := range workLogs {
			wg.Add(1)
			go func(wl WorkLog) {
				defer wg.Done()
				e.compensateOne(ctx, logger, run, wl)
			}(workLog)
		}
		wg.Wait()
	} else {
		for _, workLog := range workLogs {
			e.compensateOne(ctx, logger, run, workLog)
		}
	}

	e.finish(run, StatusCompensated)
	if err := run.CompensationErrors(); err != nil {
		logger.Error("Saga compensated with failures", zap.Error(err))
		return
	}
	logger.Info("Saga compensated", zap.Strings("compensated", run.CompensatedActivities()))
}

func (e *Executor) compensateOne(ctx context.Context, logger *zap.Logger, run *Run, workLog WorkLog) {
	activity := workLog.Activity()
	if !activity.IsCompensable() {
		logger.Debug("Activity has no compensation", zap.String("activity", activity.Name()))
		return
	}

	err := activity.undo(ctx, workLog)
	if err != nil {
		err = errors.Wrapf(err, "compensate %s", activity.Name())
		logger.Error("Compensation failed",
			zap.String("activity", activity.Name()),
			zap.Error(err),
		)
	} else {
		logger.Debug("Compensation completed", zap.String("activity", activity.Name()))
	}
	run.recordCompensation(activity.Name(), err)
	e.observer.ActivityCompensated(e.name, activity.Name(), err)
}

func (e *Executor) finish(run *Run, status Status) {
	run.finishedAt = e.now()
	run.setStatus(status)
	e.observer.RunFinished(run)
}
