package saga

import (
	"context"
	"fmt"
)

// WorkFunc performs the forward step of an activity.
type WorkFunc func(ctx context.Context) (WorkResult, error)

// CompensateFunc undoes a previously completed forward step.
// It receives the WorkLog produced by that step.
type CompensateFunc func(ctx context.Context, workLog WorkLog) error

// Activity is one forward+compensate unit of a saga.
// It is immutable once constructed and owned by the saga that built it.
type Activity struct {
	name       string
	order      int
	work       WorkFunc
	compensate CompensateFunc
	retry      *RetryPolicy
}

// ActivityOption configures an Activity at construction time.
type ActivityOption func(*Activity)

// WithRetry attaches a retry policy to the activity's forward step.
func WithRetry(policy RetryPolicy) ActivityOption {
	return func(a *Activity) {
		a.retry = &policy
	}
}

// NewActivity creates an activity. compensate may be nil for terminal steps
// that have nothing to undo.
func NewActivity(name string, order int, work WorkFunc, compensate CompensateFunc, opts ...ActivityOption) *Activity {
	a := &Activity{
		name:       name,
		order:      order,
		work:       work,
		compensate: compensate,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Activity) Name() string {
	return a.name
}

func (a *Activity) Order() int {
	return a.order
}

// IsCompensable reports whether the activity has a compensating counterpart.
func (a *Activity) IsCompensable() bool {
	return a.compensate != nil
}

// RetryPolicy returns the activity's retry policy, if any.
func (a *Activity) RetryPolicy() (RetryPolicy, bool) {
	if a.retry == nil {
		return RetryPolicy{}, false
	}
	return *a.retry, true
}

// doWork runs a single attempt of the forward step. A panic is converted
// into a non-retryable error.
func (a *Activity) doWork(ctx context.Context) (result WorkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NonRetryable(fmt.Errorf("activity %s panicked: %v", a.name, r))
		}
	}()
	return a.work(ctx)
}

// undo runs the compensation. A panic is converted into an error.
func (a *Activity) undo(ctx context.Context, workLog WorkLog) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation of %s panicked: %v", a.name, r)
		}
	}()
	return a.compensate(ctx, workLog)
}
