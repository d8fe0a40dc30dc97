package saga

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Status is the lifecycle state of a Run.
type Status string

const (
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	// StatusFailed marks a run rejected before its forward phase started.
	StatusFailed Status = "FAILED"
)

// Run is the record of one saga execution.
// It holds a queue of pending activities (forward path) and a stack of
// completed work logs (backward path). Completed work is pushed in execution
// order and popped in reverse during compensation.
type Run struct {
	mu sync.Mutex

	id     string
	name   string
	status Status

	pendingActivities []*Activity
	completedWorkLogs []WorkLog

	executed    []string
	compensated []string
	results     map[string]WorkResult

	failedActivity   string
	failure          error
	compensationErrs *multierror.Error

	startedAt  time.Time
	finishedAt time.Time
}

func newRun(id, name string, activities []*Activity, startedAt time.Time) *Run {
	pending := make([]*Activity, 0, len(activities))
	pending = append(pending, activities...)
	return &Run{
		id:                id,
		name:              name,
		status:            StatusRunning,
		pendingActivities: pending,
		completedWorkLogs: make([]WorkLog, 0, len(activities)),
		results:           make(map[string]WorkResult, len(activities)),
		startedAt:         startedAt,
	}
}

func (r *Run) ID() string {
	return r.id
}

func (r *Run) Name() string {
	return r.name
}

func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// IsCompleted returns true if all pending activities have been processed.
func (r *Run) IsCompleted() bool {
	return len(r.pendingActivities) == 0
}

// IsInProgress returns true if some work has been completed and can be compensated.
func (r *Run) IsInProgress() bool {
	return len(r.completedWorkLogs) > 0
}

// nextActivity removes and returns the next pending activity.
func (r *Run) nextActivity() *Activity {
	a := r.pendingActivities[0]
	r.pendingActivities = r.pendingActivities[1:]
	return a
}

func (r *Run) addCompletedWork(workLog WorkLog) {
	r.completedWorkLogs = append(r.completedWorkLogs, workLog)
	name := workLog.Activity().Name()
	r.executed = append(r.executed, name)
	r.results[name] = workLog.Result()
}

// lastCompletedWork removes and returns the most recently completed work log.
func (r *Run) lastCompletedWork() WorkLog {
	last := r.completedWorkLogs[len(r.completedWorkLogs)-1]
	r.completedWorkLogs = r.completedWorkLogs[:len(r.completedWorkLogs)-1]
	return last
}

func (r *Run) setStatus(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *Run) recordCompensation(activity string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.compensationErrs = multierror.Append(r.compensationErrs, err)
		return
	}
	r.compensated = append(r.compensated, activity)
}

// ExecutedActivities returns the names of activities whose forward step
// succeeded, in execution order.
func (r *Run) ExecutedActivities() []string {
	return append([]string(nil), r.executed...)
}

// CompensatedActivities returns the names of activities compensated
// successfully, in the order their compensation finished.
func (r *Run) CompensatedActivities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.compensated...)
}

// Result returns the forward result of an executed activity.
func (r *Run) Result(activity string) (WorkResult, bool) {
	result, ok := r.results[activity]
	return result, ok
}

// FailedActivity returns the name of the activity whose forward step failed.
func (r *Run) FailedActivity() string {
	return r.failedActivity
}

// Failure returns the forward failure, if any.
func (r *Run) Failure() error {
	return r.failure
}

// CompensationErrors returns the aggregated compensation failures, or nil.
func (r *Run) CompensationErrors() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compensationErrs.ErrorOrNil()
}

func (r *Run) StartedAt() time.Time {
	return r.startedAt
}

func (r *Run) FinishedAt() time.Time {
	return r.finishedAt
}

func (r *Run) Duration() time.Duration {
	if r.finishedAt.IsZero() {
		return 0
	}
	return r.finishedAt.Sub(r.startedAt)
}
