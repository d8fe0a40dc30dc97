package mediator

// Request ties a request type to its result type.
// Embed RequestBase[Res] into request structs to implement it.
type Request[Res any] interface {
	IsRequest(*Res)
}

// RequestBase is an embeddable struct that implements Request[Res].
type RequestBase[Res any] struct{}

func (RequestBase[Res]) IsRequest(*Res) {}

// RequestHandler handles a request of type Req and returns a result of type Res.
type RequestHandler[S, Req, Res any] = func(session S, request Req) (Res, error)

// EventHandler handles an event of type E.
type EventHandler[S, E any] = func(session S, event E) error

// PipelineHandler wraps the handling of one request type.
type PipelineHandler[S, Req, Res any] = func(session S, request Req, next RequestHandler[S, Req, Res]) (Res, error)

// BroadcastPipelineHandler wraps the handling of every request type.
type BroadcastPipelineHandler[S any] = func(session S, request any, next func(S, any) (any, error)) (any, error)
