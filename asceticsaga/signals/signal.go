package signals

import (
	"reflect"
	"sync"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/disposable"
)

type entry[E any] struct {
	id       any
	observer Observer[E]
}

// SignalImp is safe for concurrent use: workflow goroutines notify while
// callers attach and detach.
type SignalImp[E any] struct {
	mu        sync.RWMutex
	observers []entry[E]
}

func NewSignal[E any]() *SignalImp[E] {
	return &SignalImp[E]{}
}

func (s *SignalImp[E]) Attach(observer Observer[E], observerID ...any) disposable.Disposable {
	id := resolveID(observer, observerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	dispose := disposable.NewDisposable(func() {
		s.Detach(observer, id)
	})
	for _, e := range s.observers {
		if e.id == id {
			return dispose
		}
	}
	s.observers = append(s.observers, entry[E]{id: id, observer: observer})
	return dispose
}

func (s *SignalImp[E]) Detach(observer Observer[E], observerID ...any) {
	id := resolveID(observer, observerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.observers {
		if e.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *SignalImp[E]) Notify(event E) error {
	s.mu.RLock()
	observers := make([]entry[E], len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, e := range observers {
		if err := e.observer(event); err != nil {
			return err
		}
	}
	return nil
}

func resolveID[E any](observer Observer[E], observerID []any) any {
	if len(observerID) > 0 {
		return observerID[0]
	}
	return reflect.ValueOf(observer).Pointer()
}
