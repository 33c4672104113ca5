package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/murmur/internal/debounce"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/transcript"
)

const indicatorTimeout = 800 * time.Millisecond

// ErrDisposed is the cancellation cause seen by collaborators still running
// when the controller is disposed.
var ErrDisposed = errors.New("voice controller disposed")

// Controller owns one dictation surface. A single loop goroutine holds all
// mutable state; public methods, permission results, engine events and timers
// are delivered to it as messages. Messages tagged with a superseded attempt
// are dropped.
type Controller struct {
	logger     *slog.Logger
	permission Permission
	engine     recognition.Engine
	commit     Committer
	indicator  Indicator
	opts       Options

	ctx    context.Context
	cancel context.CancelCauseFunc

	inbox chan func()
	quit  chan struct{}

	mu   sync.RWMutex
	snap Snapshot

	// Owned by the loop goroutine.
	state     fsm.State
	disabled  bool
	disposed  bool
	current   *attempt
	utterance recognition.Utterance
	notice    *Notice
	noticeGen uint64
	dismiss   *time.Timer
}

// attempt is one press, from permission request to delivery. It stays
// current until its lease is back, so a new press cannot overlap it.
type attempt struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	acquiring bool
	abandoned bool
	lease     Lease
	session   *recognition.Session
	opened    chan struct{}
	silence   *debounce.Silence
	released  bool
	done      chan struct{}
	err       *recognition.ErrorReport

	// Set once the attempt has failed while Listening. nil failure hides quietly.
	failed  bool
	failure *recognition.ErrorReport
}

// NewController starts the controller loop. Dispose stops it.
func NewController(
	logger *slog.Logger,
	permission Permission,
	engine recognition.Engine,
	committer Committer,
	indicator Indicator,
	opts Options,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if committer == nil {
		committer = CommitFunc(func(context.Context, string) error { return nil })
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancelCause(context.Background())
	c := &Controller{
		logger:     logger,
		permission: permission,
		engine:     engine,
		commit:     committer,
		indicator:  indicator,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		inbox:      make(chan func()),
		quit:       make(chan struct{}),
		state:      fsm.StateIdle,
		disabled:   opts.Disabled,
	}
	c.publish()
	go c.run()
	return c
}

// Start begins an attempt. It reports false when the controller is disabled,
// busy, disposed, or already waiting on the device.
func (c *Controller) Start() bool {
	return c.call(c.start)
}

// Stop ends the current attempt. While the device is still being acquired the
// attempt is abandoned and no session is started.
func (c *Controller) Stop() bool {
	return c.call(c.stop)
}

// Toggle stops an active attempt or starts a new one.
func (c *Controller) Toggle() bool {
	return c.call(func() bool {
		if c.current != nil {
			return c.stop()
		}
		return c.start()
	})
}

// SetDisabled makes Start a no-op while disabled is true.
func (c *Controller) SetDisabled(disabled bool) {
	c.call(func() bool {
		c.disabled = disabled
		c.publish()
		return true
	})
}

// Dispose abandons any attempt without delivering it, stops the loop and
// waits for an open session to release its device. Every later call is a
// no-op.
func (c *Controller) Dispose() {
	var released <-chan struct{}
	c.call(func() bool {
		released = c.dispose()
		return true
	})
	if released != nil {
		<-released
	}
}

// Done is closed once the controller has been disposed.
func (c *Controller) Done() <-chan struct{} {
	return c.quit
}

// State returns the current state.
func (c *Controller) State() fsm.State {
	return c.Snapshot().State
}

// Snapshot returns the current state, transcript preview and error notice.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.snap
	if snap.Error != nil {
		notice := *snap.Error
		snap.Error = &notice
	}
	return snap
}

func (c *Controller) run() {
	for fn := range c.inbox {
		fn()
		if c.disposed {
			close(c.quit)
			return
		}
	}
}

// post hands fn to the loop. It reports false once the loop has exited.
func (c *Controller) post(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.quit:
		return false
	}
}

func (c *Controller) call(fn func() bool) bool {
	reply := make(chan bool, 1)
	if !c.post(func() { reply <- fn() }) {
		return false
	}
	return <-reply
}

func (c *Controller) start() bool {
	if c.disabled || fsm.Busy(c.state) || c.current != nil {
		c.logger.Debug("voice start ignored", "state", string(c.state), "disabled", c.disabled, "pending", c.current != nil)
		return false
	}

	c.clearNotice()
	c.utterance.Reset()

	ctx, cancel := context.WithCancel(c.ctx)
	a := &attempt{
		id:        uuid.NewString(),
		ctx:       ctx,
		cancel:    cancel,
		startedAt: time.Now(),
		acquiring: true,
		opened:    make(chan struct{}),
		done:      make(chan struct{}),
		silence:   debounce.New(),
	}
	c.current = a
	c.publish()
	c.logger.Debug("voice attempt started", "attempt", a.id)

	go func() {
		lease, err := c.permission.Acquire(a.ctx)
		if !c.post(func() { c.onPermission(a, lease, err) }) && lease != nil {
			lease.Release()
		}
	}()
	return true
}

func (c *Controller) stop() bool {
	a := c.current
	switch {
	case a == nil, a.abandoned, a.failed:
		return false
	case a.acquiring:
		// Kept current until Acquire returns.
		a.abandoned = true
		a.cancel()
		c.logger.Debug("voice attempt abandoned before permission resolved", "attempt", a.id)
		return true
	case c.state == fsm.StateListening:
		c.finish(a, "stop")
		return true
	default:
		return false
	}
}

// dispose returns a channel closed once the attempt's session has released
// its device, or nil when no session was opened.
func (c *Controller) dispose() <-chan struct{} {
	c.disposed = true
	c.cancel(ErrDisposed)

	var released <-chan struct{}
	if a := c.current; a != nil {
		a.cancel()
		a.silence.Cancel()
		if a.session != nil {
			if !a.released {
				a.released = true
				go c.teardown(a)
			}
			released = a.done
		}
		c.logger.Debug("voice attempt disposed", "attempt", a.id)
	}
	c.clearNotice()
	c.utterance.Reset()
	c.transition(fsm.EventDispose)
	c.current = nil
	c.publish()
	c.ui(c.indicator.Hide)
	return released
}

func (c *Controller) onPermission(a *attempt, lease Lease, err error) {
	if c.current != a {
		if lease != nil {
			lease.Release()
		}
		return
	}
	a.acquiring = false

	if a.abandoned {
		if lease != nil {
			lease.Release()
		}
		c.current = nil
		c.publish()
		c.logger.Debug("voice abandoned attempt settled", "attempt", a.id)
		return
	}

	if err != nil {
		a.cancel()
		c.current = nil
		c.publish()
		report := recognition.AsReport(err, recognition.PermissionDenied)
		if report.Kind == recognition.Aborted {
			return
		}
		c.surface(a, report)
		return
	}

	a.lease = lease
	c.opts.Metrics.AttemptStarted()
	c.transition(fsm.EventStart)
	c.ui(c.indicator.ShowListening)
	c.ui(c.indicator.CueStart)

	a.session = recognition.NewSession(c.engine, func(ev recognition.Event) {
		c.post(func() { c.onSession(a, ev) })
	})
	session := a.session
	cfg := recognition.StreamConfig{Language: c.opts.Language, Device: lease.Device().ID}
	c.logger.Debug("voice listening", "attempt", a.id, "device", lease.Device().Label())

	go func() {
		err := session.Start(a.ctx, cfg)
		close(a.opened)
		if err != nil {
			c.post(func() { c.onStartFailed(a, err) })
		}
	}()
}

func (c *Controller) onStartFailed(a *attempt, err error) {
	if c.current != a || a.failed {
		return
	}
	report := recognition.AsReport(err, recognition.Unknown)
	switch c.state {
	case fsm.StateListening:
		if report.Kind == recognition.Aborted {
			c.fail(a, nil)
			return
		}
		c.fail(a, &report)
	case fsm.StateProcessing:
		if report.Kind != recognition.Aborted && a.err == nil {
			a.err = &report
		}
	}
}

func (c *Controller) onSession(a *attempt, ev recognition.Event) {
	if c.current != a || a.failed {
		return
	}

	switch ev.Kind {
	case recognition.KindFragment:
		committed := c.utterance.Apply(ev.Fragment)
		c.publish()
		if committed && c.state == fsm.StateListening {
			a.silence.Arm(c.opts.Silence, func() {
				c.post(func() { c.onSilence(a) })
			})
		}
	case recognition.KindError:
		report := ev.Err
		if c.state == fsm.StateProcessing {
			if report.Kind != recognition.Aborted && a.err == nil {
				a.err = &report
			}
			return
		}
		if report.Kind == recognition.Aborted {
			c.fail(a, nil)
			return
		}
		c.fail(a, &report)
	case recognition.KindEnded:
		if c.state == fsm.StateListening {
			c.finish(a, "engine ended")
		}
	}
}

func (c *Controller) onSilence(a *attempt) {
	if c.current != a || a.failed || c.state != fsm.StateListening {
		return
	}
	c.opts.Metrics.AutoFinalized()
	c.finish(a, "silence")
}

// finish moves Listening to Processing and tears the session down off-loop.
func (c *Controller) finish(a *attempt, reason string) {
	a.silence.Cancel()
	c.transition(fsm.EventStop)
	c.ui(c.indicator.ShowProcessing)
	c.ui(c.indicator.CueStop)
	c.logger.Debug("voice attempt finishing", "attempt", a.id, "reason", reason)

	a.released = true
	go c.teardown(a)
}

// fail abandons a Listening attempt. The return to Idle waits for teardown;
// a nil report then hides quietly.
func (c *Controller) fail(a *attempt, report *recognition.ErrorReport) {
	a.silence.Cancel()
	a.failed = true
	a.failure = report
	c.utterance.Reset()
	c.publish()
	c.logger.Debug("voice attempt failing", "attempt", a.id)

	if !a.released {
		a.released = true
		go c.teardown(a)
	}
}

// teardown stops the session and releases the device. It runs off-loop
// because stopping waits for the engine to drain through the loop.
func (c *Controller) teardown(a *attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.StopTimeout)
	defer cancel()

	select {
	case <-a.opened:
	case <-ctx.Done():
		a.cancel()
		<-a.opened
	}
	if err := a.session.Stop(ctx); err != nil {
		c.logger.Warn("recognition stop failed", "attempt", a.id, "error", err)
	}
	a.cancel()
	a.lease.Release()
	close(a.done)

	c.post(func() { c.onReleased(a) })
}

func (c *Controller) onReleased(a *attempt) {
	if c.current != a {
		return
	}

	if a.failed {
		c.transition(fsm.EventFail)
		c.current = nil
		c.publish()
		if a.failure == nil {
			c.ui(c.indicator.Hide)
			return
		}
		c.surface(a, *a.failure)
		return
	}

	text := transcript.Normalize(c.utterance.Best())
	c.utterance.Reset()
	c.publish()

	if text == "" {
		c.transition(fsm.EventFail)
		c.current = nil
		report := recognition.NewError(recognition.NoSpeechDetected, nil)
		if a.err != nil {
			report = *a.err
		}
		c.surface(a, report)
		return
	}

	go func() {
		err := context.Cause(c.ctx)
		if err == nil {
			err = c.commit.Commit(c.ctx, text)
		}
		c.post(func() { c.onDelivered(a, text, err) })
	}()
}

func (c *Controller) onDelivered(a *attempt, text string, err error) {
	if c.current != a {
		return
	}

	if err != nil {
		c.transition(fsm.EventFail)
		c.current = nil
		report := recognition.NewError(recognition.Unknown, err)
		report.Message = "Output dispatch failed"
		c.surface(a, report)
		return
	}

	c.transition(fsm.EventFinalize)
	c.current = nil
	c.publish()
	c.ui(c.indicator.CueComplete)
	c.ui(c.indicator.Hide)

	elapsed := time.Since(a.startedAt)
	c.opts.Metrics.TranscriptDelivered(elapsed)
	c.logger.Info("transcript delivered",
		"attempt", a.id,
		"chars", len(text),
		"intent", string(transcript.Classify(text)),
		"duration_ms", elapsed.Milliseconds(),
	)
}

// surface records an error notice and schedules its dismissal.
func (c *Controller) surface(a *attempt, report recognition.ErrorReport) {
	notice := Notice{
		Kind:        report.Kind,
		Message:     report.Message,
		Retryable:   report.Retryable,
		AutoDismiss: c.opts.ErrorDismiss,
	}
	c.clearNotice()
	c.notice = &notice
	gen := c.noticeGen
	c.dismiss = time.AfterFunc(c.opts.ErrorDismiss, func() {
		c.post(func() { c.expireNotice(gen) })
	})
	c.publish()

	c.opts.Metrics.ErrorSurfaced(report.Kind)
	c.logger.Warn("voice attempt failed",
		"attempt", a.id,
		"kind", string(report.Kind),
		"retryable", report.Retryable,
		"error", report.Error(),
	)
	c.ui(c.indicator.CueCancel)
	c.ui(func(ctx context.Context) { c.indicator.ShowError(ctx, notice) })
}

func (c *Controller) expireNotice(gen uint64) {
	if gen != c.noticeGen || c.notice == nil {
		return
	}
	c.notice = nil
	c.publish()
	if c.current == nil && c.state == fsm.StateIdle {
		c.ui(c.indicator.Hide)
	}
}

func (c *Controller) clearNotice() {
	if c.dismiss != nil {
		c.dismiss.Stop()
		c.dismiss = nil
	}
	c.noticeGen++
	if c.notice != nil {
		c.notice = nil
		c.publish()
	}
}

func (c *Controller) transition(event fsm.Event) {
	var id string
	if c.current != nil {
		id = c.current.id
	}
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Error("voice transition rejected", "attempt", id, "error", err)
		return
	}
	c.logger.Debug("voice transition",
		"from", string(c.state),
		"to", string(next),
		"event", string(event),
		"attempt", id,
	)
	c.state = next
	c.opts.Metrics.StateChanged(next)
	c.publish()
}

func (c *Controller) publish() {
	snap := Snapshot{
		State:    c.state,
		Pending:  c.current != nil && c.current.acquiring,
		Disabled: c.disabled,
		Interim:  c.utterance.Interim,
		Final:    c.utterance.Final,
	}
	if c.notice != nil {
		notice := *c.notice
		snap.Error = &notice
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

func (c *Controller) ui(fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), indicatorTimeout)
	defer cancel()
	fn(ctx)
}
