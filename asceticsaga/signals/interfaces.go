package signals

import (
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/disposable"
)

// Observer receives events published by a Signal.
// A returned error stops delivery to the remaining observers and is returned from Notify.
type Observer[E any] func(E) error

type Signal[E any] interface {
	Attach(observer Observer[E], observerID ...any) disposable.Disposable
	Detach(observer Observer[E], observerID ...any)
	Notify(event E) error
}
