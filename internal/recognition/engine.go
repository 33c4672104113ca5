// Package recognition wraps a streaming speech engine into a single-owner
// recognition session and defines the error taxonomy shared by callers.
package recognition

import "context"

// StreamConfig selects language and capture source for one engine stream.
type StreamConfig struct {
	Language string
	Device   string
}

// Segment is one recognized piece of a result. Final segments are never revised.
type Segment struct {
	Text  string
	Final bool
}

type EngineEventKind int

const (
	EngineResult EngineEventKind = iota + 1
	EngineError
)

// EngineEvent is one tagged item on an engine stream. Result events carry
// segments; error events carry a raw engine error code.
type EngineEvent struct {
	Kind     EngineEventKind
	Segments []Segment
	Code     string
	Detail   string
}

// Stream is one running engine recognition. Events is closed when the engine
// has ended for any reason, including Stop.
type Stream interface {
	Events() <-chan EngineEvent
	Stop(context.Context) error
}

// Engine opens continuous, interim-enabled recognition streams.
type Engine interface {
	Open(context.Context, StreamConfig) (Stream, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(context.Context, StreamConfig) (Stream, error)

func (f EngineFunc) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	return f(ctx, cfg)
}
