package voice

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/stretchr/testify/require"
)

type fakeLease struct {
	released atomic.Int32
}

func (l *fakeLease) Device() audio.Device { return audio.Device{ID: "mic-1", Description: "Mic"} }
func (l *fakeLease) Release()             { l.released.Add(1) }

// fakePermission blocks on gate without watching ctx, like a device prompt
// that cannot be withdrawn.
type fakePermission struct {
	mu     sync.Mutex
	err    error
	gate   chan struct{}
	leases []*fakeLease
	ctxs   []context.Context

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (p *fakePermission) Acquire(ctx context.Context) (Lease, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.maxInFlight.Load()
		if n <= peak || p.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.Lock()
	gate, err := p.gate, p.err
	p.ctxs = append(p.ctxs, ctx)
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	lease := &fakeLease{}
	p.mu.Lock()
	p.leases = append(p.leases, lease)
	p.mu.Unlock()
	return lease, nil
}

func (p *fakePermission) requested() []context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]context.Context(nil), p.ctxs...)
}

func (p *fakePermission) granted() []*fakeLease {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeLease(nil), p.leases...)
}

type fakeStream struct {
	events    chan recognition.EngineEvent
	block     chan struct{}
	closeOnce sync.Once
	stopped   atomic.Bool
}

func (s *fakeStream) Events() <-chan recognition.EngineEvent { return s.events }

func (s *fakeStream) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	s.end()
	return nil
}

func (s *fakeStream) end() {
	s.closeOnce.Do(func() { close(s.events) })
}

func (s *fakeStream) interim(text string) {
	s.events <- recognition.EngineEvent{Kind: recognition.EngineResult, Segments: []recognition.Segment{{Text: text}}}
}

func (s *fakeStream) final(text string) {
	s.events <- recognition.EngineEvent{Kind: recognition.EngineResult, Segments: []recognition.Segment{{Text: text, Final: true}}}
}

func (s *fakeStream) fail(code string) {
	s.events <- recognition.EngineEvent{Kind: recognition.EngineError, Code: code}
}

type fakeEngine struct {
	mu      sync.Mutex
	openErr error
	block   chan struct{}
	streams []*fakeStream
	configs []recognition.StreamConfig
}

func (e *fakeEngine) Open(_ context.Context, cfg recognition.StreamConfig) (recognition.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.openErr != nil {
		return nil, e.openErr
	}
	stream := &fakeStream{events: make(chan recognition.EngineEvent, 16), block: e.block}
	e.streams = append(e.streams, stream)
	return stream, nil
}

func (e *fakeEngine) opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.configs)
}

func (e *fakeEngine) stream(i int) *fakeStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i >= len(e.streams) {
		return nil
	}
	return e.streams[i]
}

type fakeIndicator struct {
	mu      sync.Mutex
	notices []Notice
	hides   int
	cues    map[string]int
}

func (f *fakeIndicator) cue(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cues == nil {
		f.cues = map[string]int{}
	}
	f.cues[name]++
}

func (f *fakeIndicator) ShowListening(context.Context)  {}
func (f *fakeIndicator) ShowProcessing(context.Context) {}
func (f *fakeIndicator) ShowError(_ context.Context, n Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
}
func (f *fakeIndicator) Hide(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hides++
}
func (f *fakeIndicator) CueStart(context.Context)    { f.cue("start") }
func (f *fakeIndicator) CueStop(context.Context)     { f.cue("stop") }
func (f *fakeIndicator) CueComplete(context.Context) { f.cue("complete") }
func (f *fakeIndicator) CueCancel(context.Context)   { f.cue("cancel") }

func (f *fakeIndicator) errors() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notice(nil), f.notices...)
}

func (f *fakeIndicator) hideCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hides
}

type fakeMetrics struct {
	attempts      atomic.Int32
	delivered     atomic.Int32
	autoFinalized atomic.Int32
	errors        atomic.Int32
}

func (m *fakeMetrics) AttemptStarted()                     { m.attempts.Add(1) }
func (m *fakeMetrics) StateChanged(fsm.State)              {}
func (m *fakeMetrics) TranscriptDelivered(time.Duration)   { m.delivered.Add(1) }
func (m *fakeMetrics) AutoFinalized()                      { m.autoFinalized.Add(1) }
func (m *fakeMetrics) ErrorSurfaced(recognition.ErrorKind) { m.errors.Add(1) }

type delivery struct {
	text string
	at   time.Time
}

type harness struct {
	ctrl      *Controller
	perm      *fakePermission
	engine    *fakeEngine
	indicator *fakeIndicator
	metrics   *fakeMetrics

	mu         sync.Mutex
	deliveries []delivery
	commitErr  error
}

func newHarness(t *testing.T, opts Options, setup ...func(*harness)) *harness {
	t.Helper()

	h := &harness{
		perm:      &fakePermission{},
		engine:    &fakeEngine{},
		indicator: &fakeIndicator{},
		metrics:   &fakeMetrics{},
	}
	for _, fn := range setup {
		fn(h)
	}

	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Silence == 0 {
		opts.Silence = time.Hour
	}
	if opts.ErrorDismiss == 0 {
		opts.ErrorDismiss = time.Hour
	}
	opts.Metrics = h.metrics

	committer := CommitFunc(func(_ context.Context, text string) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.commitErr != nil {
			return h.commitErr
		}
		h.deliveries = append(h.deliveries, delivery{text: text, at: time.Now()})
		return nil
	})

	h.ctrl = NewController(nil, h.perm, h.engine, committer, h.indicator, opts)
	t.Cleanup(h.ctrl.Dispose)
	return h
}

func (h *harness) transcripts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.deliveries))
	for _, d := range h.deliveries {
		out = append(out, d.text)
	}
	return out
}

// listen starts an attempt and waits for the engine stream to open.
func (h *harness) listen(t *testing.T) *fakeStream {
	t.Helper()
	before := h.engine.opened()
	require.True(t, h.ctrl.Start())
	return h.waitStream(t, before)
}

func (h *harness) waitStream(t *testing.T, index int) *fakeStream {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.engine.stream(index) != nil
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, fsm.StateListening, h.ctrl.State())
	return h.engine.stream(index)
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := h.ctrl.Snapshot()
		return snap.State == fsm.StateIdle && !snap.Pending
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) waitReleased(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		released := 0
		for _, lease := range h.perm.granted() {
			released += int(lease.released.Load())
		}
		return released == want
	}, 2*time.Second, 5*time.Millisecond)
}

var errDispatch = errors.New("wl-copy failed")

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
