// Package indicator renders dictation state through Hyprland or desktop
// notifications and plays the audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/hypr"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/voice"
)

const (
	stickyTimeoutMS = 300000
	colorListening  = "rgb(89b4fa)"
	colorProcessing = "rgb(cba6f7)"
	colorError      = "rgb(f38ba8)"
	colorWarning    = "rgb(f9e2af)"
)

var _ voice.Indicator = (*Notifier)(nil)

// surface is one notification as rendered by either backend.
type surface struct {
	text      string
	icon      int
	color     string
	urgency   urgency
	timeoutMS int
}

// Notifier is the runtime voice.Indicator. It routes notifications via
// Hyprland or desktop DBus based on config backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
	cues                  sync.WaitGroup
}

// New creates an indicator from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

func (n *Notifier) ShowListening(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, surface{
			text:      n.messages.listening,
			icon:      1,
			color:     colorListening,
			urgency:   urgencyNormal,
			timeoutMS: stickyTimeoutMS,
		})
	})
}

func (n *Notifier) ShowProcessing(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, surface{
			text:      n.messages.processing,
			icon:      1,
			color:     colorProcessing,
			urgency:   urgencyLow,
			timeoutMS: stickyTimeoutMS,
		})
	})
}

// ShowError displays notice. The surface expires on its own slightly after
// the controller's dismiss timer so a missed Hide cannot leave it stuck.
func (n *Notifier) ShowError(ctx context.Context, notice voice.Notice) {
	if !n.cfg.Enable {
		return
	}
	text := strings.TrimSpace(notice.Message)
	if text == "" {
		text = n.messages.errorText
	}
	s := surface{text: text, icon: 3, color: colorError, urgency: urgencyCritical, timeoutMS: stickyTimeoutMS}
	if notice.AutoDismiss > 0 {
		s.timeoutMS = int((notice.AutoDismiss + 500*time.Millisecond).Milliseconds())
	}
	if notice.Kind == recognition.NoSpeechDetected {
		s.icon, s.color, s.urgency = 0, colorWarning, urgencyNormal
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, s)
	})
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

func (n *Notifier) CueStart(context.Context)    { n.playCue(cueStart) }
func (n *Notifier) CueStop(context.Context)     { n.playCue(cueStop) }
func (n *Notifier) CueComplete(context.Context) { n.playCue(cueComplete) }
func (n *Notifier) CueCancel(context.Context)   { n.playCue(cueCancel) }

// Wait blocks until queued cues have finished playing.
func (n *Notifier) Wait() {
	n.cues.Wait()
}

func (n *Notifier) desktop() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

func (n *Notifier) notify(ctx context.Context, s surface) error {
	if n.desktop() {
		return n.notifyDesktop(ctx, s)
	}
	return hypr.Notify(ctx, s.icon, s.timeoutMS, s.color, s.text)
}

func (n *Notifier) dismiss(ctx context.Context) error {
	if n.desktop() {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, s surface) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "murmur-indicator"
	}

	id, err := desktopNotify(ctx, appName, replaceID, s)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := emitCue(ctx, kind, n.cfg); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
