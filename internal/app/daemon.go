package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/keytrigger"
	"github.com/rbright/murmur/internal/voice"
)

const focusTimeout = 250 * time.Millisecond

// dictation is the controller surface the daemon drives.
type dictation interface {
	Start() bool
	Stop() bool
	Toggle() bool
	SetDisabled(bool)
	Snapshot() voice.Snapshot
	Dispose()
}

// FocusFunc resolves the element holding keyboard focus for one key event.
type FocusFunc func(context.Context) (keytrigger.Element, error)

// keyForwarder is implemented by elements that can receive a key the trigger
// did not consume.
type keyForwarder interface {
	ForwardKey(ctx context.Context, key string) error
}

// daemon answers IPC requests for a running controller.
type daemon struct {
	logger     *slog.Logger
	controller dictation
	doc        *keytrigger.Document
	unbind     func()
	focus      FocusFunc
	shutdown   func()

	// keys serializes key events so focus resolution and dispatch stay paired.
	keys      sync.Mutex
	closeOnce sync.Once
}

func newDaemon(logger *slog.Logger, controller dictation, triggerKey string, focus FocusFunc, shutdown func()) *daemon {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	doc := keytrigger.NewDocument()
	_, unbind := keytrigger.Bind(doc, triggerKey, controller)
	return &daemon{
		logger:     logger,
		controller: controller,
		doc:        doc,
		unbind:     unbind,
		focus:      focus,
		shutdown:   shutdown,
	}
}

func (d *daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	d.logger.Debug("ipc request", "command", req.Command, "key", req.Key, "repeat", req.Repeat)

	switch req.Command {
	case ipc.CommandStatus:
		return d.respond("")
	case ipc.CommandStart:
		return d.respond(outcome(d.controller.Start(), "listening"))
	case ipc.CommandStop:
		return d.respond(outcome(d.controller.Stop(), "stopping"))
	case ipc.CommandToggle:
		return d.respond(outcome(d.controller.Toggle(), "toggled"))
	case ipc.CommandEnable:
		d.controller.SetDisabled(false)
		return d.respond("enabled")
	case ipc.CommandDisable:
		d.controller.SetDisabled(true)
		return d.respond("disabled")
	case ipc.CommandKeyDown, ipc.CommandKeyUp:
		d.handleKey(ctx, req)
		return d.respond("")
	case ipc.CommandShutdown:
		if d.shutdown != nil {
			d.shutdown()
		}
		return d.respond("shutting down")
	default:
		return ipc.Response{OK: false, Error: "unsupported command: " + req.Command}
	}
}

func outcome(accepted bool, message string) string {
	if !accepted {
		return "ignored"
	}
	return message
}

// handleKey dispatches one key edge through the document. A key press the
// trigger leaves alone is replayed into the focused window.
func (d *daemon) handleKey(ctx context.Context, req ipc.Request) {
	d.keys.Lock()
	defer d.keys.Unlock()

	var el keytrigger.Element
	if d.focus != nil {
		focusCtx, cancel := context.WithTimeout(ctx, focusTimeout)
		focused, err := d.focus(focusCtx)
		cancel()
		if err != nil {
			d.logger.Debug("resolve focused element failed", "error", err.Error())
		} else {
			el = focused
		}
	}
	d.doc.SetActive(el)

	typ := keytrigger.KeyDown
	if req.Command == ipc.CommandKeyUp {
		typ = keytrigger.KeyUp
	}
	ev := &keytrigger.KeyEvent{Type: typ, Code: req.Key, Repeat: req.Repeat}
	if d.doc.Dispatch(ev) || typ != keytrigger.KeyDown {
		return
	}

	forwarder, ok := el.(keyForwarder)
	if !ok {
		return
	}
	if err := forwarder.ForwardKey(ctx, compositorKeyName(req.Key)); err != nil {
		d.logger.Warn("forward key to focused window failed", "key", req.Key, "error", err.Error())
	}
}

// compositorKeyName maps a key code to the xkb name Hyprland expects.
func compositorKeyName(code string) string {
	switch code {
	case "Space":
		return "space"
	case "Enter":
		return "Return"
	}
	if rest, ok := strings.CutPrefix(code, "Key"); ok && len(rest) == 1 {
		return strings.ToLower(rest)
	}
	return code
}

func (d *daemon) respond(message string) ipc.Response {
	snap := d.controller.Snapshot()
	resp := ipc.Response{
		OK:       true,
		State:    string(snap.State),
		Pending:  snap.Pending,
		Disabled: snap.Disabled,
		Interim:  snap.Interim,
		Final:    snap.Final,
		Message:  message,
	}
	if snap.Error != nil {
		resp.Error = snap.Error.Message
	}
	return resp
}

// close unbinds the trigger and disposes the controller.
func (d *daemon) close() {
	d.closeOnce.Do(func() {
		d.unbind()
		d.controller.Dispose()
	})
}
