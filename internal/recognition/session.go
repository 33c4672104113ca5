package recognition

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrSessionStarted is returned when Start is called on a session that already ran.
var ErrSessionStarted = errors.New("recognition session already started")

type EventKind int

const (
	KindFragment EventKind = iota + 1
	KindError
	KindEnded
)

// Fragment is the text carried by one engine result. Final holds the result's
// final pieces, each followed by a single separator; Interim holds the
// in-progress pieces concatenated in arrival order.
type Fragment struct {
	Final   string
	Interim string
}

// IsFinal reports whether the fragment commits any text.
func (f Fragment) IsFinal() bool {
	return f.Final != ""
}

// Event is emitted by Session to its owner.
type Event struct {
	Kind     EventKind
	Fragment Fragment
	Err      ErrorReport
}

// Session owns one engine stream from Start until the engine ends.
type Session struct {
	engine Engine
	emit   func(Event)

	mu      sync.Mutex
	stream  Stream
	started bool
	stopped bool
	done    chan struct{}
}

// NewSession binds an engine to the owner's event sink.
func NewSession(engine Engine, emit func(Event)) *Session {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Session{engine: engine, emit: emit, done: make(chan struct{})}
}

// Start opens the engine stream. Failures are returned as an ErrorReport.
func (s *Session) Start(ctx context.Context, cfg StreamConfig) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	s.mu.Unlock()

	stream, err := s.engine.Open(ctx, cfg)
	if err != nil {
		close(s.done)
		return AsReport(err, Unknown)
	}

	s.mu.Lock()
	s.stream = stream
	stopped := s.stopped
	s.mu.Unlock()

	go s.forward(stream)

	if stopped {
		_ = stream.Stop(ctx)
	}
	return nil
}

// Stop asks the engine to end and waits for its stream to drain or ctx to expire.
// Stopping a session that never started is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return nil
	}

	err := stream.Stop(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Done is closed after the engine stream has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) forward(stream Stream) {
	defer close(s.done)

	for ev := range stream.Events() {
		switch ev.Kind {
		case EngineResult:
			fragment := fragmentFromSegments(ev.Segments)
			if fragment.Final == "" && strings.TrimSpace(fragment.Interim) == "" {
				continue
			}
			s.emit(Event{Kind: KindFragment, Fragment: fragment})
		case EngineError:
			report := FromCode(ev.Code)
			if ev.Detail != "" {
				report.Cause = errors.New(ev.Detail)
			}
			s.emit(Event{Kind: KindError, Err: report})
		}
	}
	s.emit(Event{Kind: KindEnded})
}

func fragmentFromSegments(segments []Segment) Fragment {
	var final, interim strings.Builder
	for _, segment := range segments {
		if segment.Final {
			if strings.TrimSpace(segment.Text) == "" {
				continue
			}
			final.WriteString(segment.Text)
			final.WriteByte(' ')
			continue
		}
		interim.WriteString(segment.Text)
	}
	return Fragment{Final: final.String(), Interim: interim.String()}
}
