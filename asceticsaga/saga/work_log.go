package saga

import "time"

// WorkLog is a record of completed work from an activity.
// Stores the activity and its result, enabling compensation
// to be performed later if the saga needs to be rolled back.
type WorkLog struct {
	activity    *Activity
	result      WorkResult
	completedAt time.Time
}

// NewWorkLog creates a new work log with the specified activity and result.
func NewWorkLog(activity *Activity, result WorkResult, completedAt time.Time) WorkLog {
	if result == nil {
		result = WorkResult{}
	}
	return WorkLog{
		activity:    activity,
		result:      result,
		completedAt: completedAt,
	}
}

// Result returns the result of the activity's forward step.
func (w WorkLog) Result() WorkResult {
	return w.result
}

// Activity returns the activity that performed this work.
func (w WorkLog) Activity() *Activity {
	return w.activity
}

func (w WorkLog) CompletedAt() time.Time {
	return w.completedAt
}
