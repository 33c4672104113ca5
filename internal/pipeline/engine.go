// Package pipeline joins Pulse capture to a streaming speech transport and
// exposes the pair as a recognition engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/deepgram"
	"github.com/rbright/murmur/internal/recognition"
)

// Transport is the speech service side of one stream.
type Transport interface {
	SendAudio([]byte) error
	Events() <-chan recognition.EngineEvent
	Finish(context.Context) error
	Abort()
}

// Recorder is the capture side of one stream.
type Recorder interface {
	Chunks() <-chan []byte
	Stop() error
	BytesCaptured() int64
}

// DialFunc opens a transport for language.
type DialFunc func(ctx context.Context, language string) (Transport, error)

// CaptureFunc starts recording from device.
type CaptureFunc func(ctx context.Context, device audio.Device) (Recorder, error)

// Options tunes an Engine.
type Options struct {
	DumpAudio bool
}

// Engine implements recognition.Engine over live capture and a transport.
type Engine struct {
	logger  *slog.Logger
	dial    DialFunc
	capture CaptureFunc
	opts    Options
}

// NewEngine builds an engine around a dial function and Pulse capture.
func NewEngine(logger *slog.Logger, dial DialFunc, opts Options) *Engine {
	return &Engine{
		logger: logger,
		dial:   dial,
		capture: func(ctx context.Context, device audio.Device) (Recorder, error) {
			return audio.StartCapture(ctx, device)
		},
		opts: opts,
	}
}

// Deepgram adapts a deepgram client to DialFunc.
func Deepgram(client *deepgram.Client) DialFunc {
	return func(ctx context.Context, language string) (Transport, error) {
		stream, err := client.Dial(ctx, language)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// Open dials the transport first, then starts capture on cfg.Device.
func (e *Engine) Open(ctx context.Context, cfg recognition.StreamConfig) (recognition.Stream, error) {
	if e.dial == nil {
		return nil, recognition.NewError(recognition.Unknown, errors.New("speech transport is not configured"))
	}

	transport, err := e.dial(ctx, cfg.Language)
	if err != nil {
		return nil, err
	}

	recCtx, cancel := context.WithCancel(context.Background())
	recorder, err := e.capture(recCtx, audio.Device{ID: cfg.Device})
	if err != nil {
		cancel()
		transport.Abort()
		return nil, recognition.NewError(recognition.DeviceUnavailable, fmt.Errorf("start capture: %w", err))
	}

	s := &liveStream{
		logger:    e.logger,
		transport: transport,
		recorder:  recorder,
		cancel:    cancel,
		events:    make(chan recognition.EngineEvent, 64),
		pumpDone:  make(chan struct{}),
		startedAt: time.Now(),
		device:    cfg.Device,
	}
	if e.opts.DumpAudio {
		s.dump = &pcmBuffer{}
	}
	go s.pump()
	go s.forward()
	return s, nil
}

type liveStream struct {
	logger    *slog.Logger
	transport Transport
	recorder  Recorder
	cancel    context.CancelFunc
	dump      *pcmBuffer

	events   chan recognition.EngineEvent
	pumpDone chan struct{}

	mu      sync.Mutex
	sendErr error

	startedAt time.Time
	device    string
}

func (s *liveStream) Events() <-chan recognition.EngineEvent {
	return s.events
}

// Stop ends capture, lets queued audio reach the service, then waits for
// its final results. On timeout the transport is aborted.
func (s *liveStream) Stop(ctx context.Context) error {
	_ = s.recorder.Stop()

	select {
	case <-s.pumpDone:
	case <-ctx.Done():
		s.transport.Abort()
		return ctx.Err()
	}

	if err := s.transport.Finish(ctx); err != nil {
		return fmt.Errorf("finish speech stream: %w", err)
	}
	return nil
}

// pump forwards captured chunks to the transport until capture stops or a send fails.
func (s *liveStream) pump() {
	defer close(s.pumpDone)
	for chunk := range s.recorder.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		if s.dump != nil {
			s.dump.Write(chunk)
		}
		if err := s.transport.SendAudio(chunk); err != nil {
			s.mu.Lock()
			s.sendErr = err
			s.mu.Unlock()
			_ = s.recorder.Stop()
			for range s.recorder.Chunks() {
			}
			return
		}
	}
}

// forward relays transport events and releases capture once the transport ends.
func (s *liveStream) forward() {
	defer close(s.events)
	for ev := range s.transport.Events() {
		s.events <- ev
	}

	_ = s.recorder.Stop()
	<-s.pumpDone
	s.cancel()

	s.mu.Lock()
	sendErr := s.sendErr
	s.mu.Unlock()

	if s.logger != nil {
		attrs := []any{
			"device", s.device,
			"bytes_captured", s.recorder.BytesCaptured(),
			"duration_ms", time.Since(s.startedAt).Milliseconds(),
		}
		if sendErr != nil && !errors.Is(sendErr, deepgram.ErrClosed) {
			attrs = append(attrs, "send_error", sendErr.Error())
		}
		s.logger.Debug("speech stream ended", attrs...)
	}
	if s.dump != nil {
		if path, err := s.dump.Save(); err != nil {
			s.logWarn(fmt.Sprintf("unable to write debug audio dump: %v", err))
		} else if s.logger != nil {
			s.logger.Debug("debug audio dump written", "path", path)
		}
	}
}

func (s *liveStream) logWarn(message string) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(message)
}
