package saga

// Observer receives execution events from an Executor.
// Implementations must be safe for concurrent use: compensations may run in parallel.
type Observer interface {
	ActivityAttempted(saga, activity string, attempt int)
	ActivityCompensated(saga, activity string, err error)
	RunFinished(run *Run)
}

type nopObserver struct{}

func (nopObserver) ActivityAttempted(string, string, int) {}
func (nopObserver) ActivityCompensated(string, string, error) {}
func (nopObserver) RunFinished(*Run) {}
