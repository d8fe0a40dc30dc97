// Package mediator dispatches typed requests to a single handler through
// pipelines and fans events out to subscribers.
package mediator

import (
	"reflect"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/disposable"
)

var ErrHandlerNotRegistered = errors.New("mediator: handler not registered")

type subscriberEntry[S any] struct {
	key     uintptr
	handler func(S, any) error
}

type internalHandler[S any] = func(S, any) (any, error)

type internalPipeline[S any] = func(S, any, func(S, any) (any, error)) (any, error)

func NewMediator[S any]() *Mediator[S] {
	return &Mediator[S]{
		subscribers: make(map[reflect.Type][]subscriberEntry[S]),
		handlers:    make(map[reflect.Type]internalHandler[S]),
		pipelines:   make(map[reflect.Type][]internalPipeline[S]),
	}
}

// Mediator is safe for concurrent use. Registration normally happens once at
// startup; dispatch may happen from any number of goroutines.
type Mediator[S any] struct {
	mu                 sync.RWMutex
	subscribers        map[reflect.Type][]subscriberEntry[S]
	handlers           map[reflect.Type]internalHandler[S]
	broadcastPipelines []internalPipeline[S]
	pipelines          map[reflect.Type][]internalPipeline[S]
}

func (m *Mediator[S]) send(session S, request any) (any, error) {
	reqType := reflect.TypeOf(request)

	m.mu.RLock()
	handler, ok := m.handlers[reqType]
	chain := make([]internalPipeline[S], 0, len(m.broadcastPipelines)+len(m.pipelines[reqType]))
	chain = append(chain, m.broadcastPipelines...)
	chain = append(chain, m.pipelines[reqType]...)
	m.mu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrHandlerNotRegistered, "request %v", reqType)
	}

	current := handler
	for i := len(chain) - 1; i >= 0; i-- {
		current = wrapPipeline(chain[i], current)
	}
	return current(session, request)
}

func wrapPipeline[S any](pipeline internalPipeline[S], next internalHandler[S]) internalHandler[S] {
	return func(session S, request any) (any, error) {
		return pipeline(session, request, next)
	}
}

func castResult[Res any](result any, err error) (Res, error) {
	var zero Res
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	return result.(Res), nil
}

// Send dispatches a request to its handler and returns the typed result.
func Send[S, Res any](m *Mediator[S], session S, request Request[Res]) (Res, error) {
	return castResult[Res](m.send(session, request))
}

// Publish delivers an event to every subscriber of its type. A failing
// subscriber does not stop the others; all failures are returned together.
func Publish[S, E any](m *Mediator[S], session S, event E) error {
	m.mu.RLock()
	entries := append([]subscriberEntry[S](nil), m.subscribers[reflect.TypeOf(event)]...)
	m.mu.RUnlock()

	var result *multierror.Error
	for _, entry := range entries {
		if err := entry.handler(session, event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Register sets the handler for requests of type Req, replacing any previous one.
func Register[S, Req, Res any](m *Mediator[S], handler RequestHandler[S, Req, Res]) disposable.Disposable {
	reqType := reflect.TypeFor[Req]()
	m.mu.Lock()
	m.handlers[reqType] = func(session S, request any) (any, error) {
		return handler(session, request.(Req))
	}
	m.mu.Unlock()
	return disposable.NewDisposable(func() {
		_ = Unregister[S, Req](m)
	})
}

func Unregister[S, Req any](m *Mediator[S]) error {
	reqType := reflect.TypeFor[Req]()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[reqType]; !ok {
		return errors.Wrapf(ErrHandlerNotRegistered, "request %v", reqType)
	}
	delete(m.handlers, reqType)
	return nil
}

func Subscribe[S, E any](m *Mediator[S], handler EventHandler[S, E]) disposable.Disposable {
	eventType := reflect.TypeFor[E]()
	key := reflect.ValueOf(handler).Pointer()
	m.mu.Lock()
	m.subscribers[eventType] = append(m.subscribers[eventType], subscriberEntry[S]{
		key: key,
		handler: func(session S, event any) error {
			return handler(session, event.(E))
		},
	})
	m.mu.Unlock()
	return disposable.NewDisposable(func() {
		Unsubscribe(m, handler)
	})
}

func Unsubscribe[S, E any](m *Mediator[S], handler EventHandler[S, E]) {
	eventType := reflect.TypeFor[E]()
	key := reflect.ValueOf(handler).Pointer()
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.subscribers[eventType]
	for i, e := range entries {
		if e.key == key {
			m.subscribers[eventType] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// AddPipeline wraps requests of type Req. Pipelines run in the order added,
// after every broadcast pipeline.
func AddPipeline[S, Req, Res any](m *Mediator[S], pipeline PipelineHandler[S, Req, Res]) {
	reqType := reflect.TypeFor[Req]()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines[reqType] = append(m.pipelines[reqType], func(session S, request any, next func(S, any) (any, error)) (any, error) {
		typedNext := func(s S, r Req) (Res, error) {
			return castResult[Res](next(s, r))
		}
		return pipeline(session, request.(Req), typedNext)
	})
}

func AddBroadcastPipeline[S any](m *Mediator[S], pipeline BroadcastPipelineHandler[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastPipelines = append(m.broadcastPipelines, pipeline)
}
