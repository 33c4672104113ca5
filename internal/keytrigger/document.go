// Package keytrigger maps a reserved key's press and release onto a
// start/stop target, ahead of every other key listener.
package keytrigger

import "sync"

const (
	KeyDown = "keydown"
	KeyUp   = "keyup"
)

// Phase orders listeners around the focused element's own handler.
type Phase int

const (
	Capture Phase = iota
	Bubble
)

// Role classifies the focused element.
type Role int

const (
	RoleOther Role = iota
	RoleTextEntry
)

// Element is whatever currently holds keyboard focus.
type Element interface {
	Role() Role
	Blur()
}

// KeyHandler is implemented by elements that consume keys themselves, such as
// a text field. It runs between the capture and bubble phases.
type KeyHandler interface {
	HandleKey(*KeyEvent)
}

// KeyEvent is one raw key edge.
type KeyEvent struct {
	Type   string
	Code   string
	Key    string
	Repeat bool

	defaultPrevented bool
	stopped          bool
	stoppedNow       bool
}

func (e *KeyEvent) PreventDefault() { e.defaultPrevented = true }

// StopPropagation keeps the event from reaching later phases.
func (e *KeyEvent) StopPropagation() { e.stopped = true }

// StopImmediatePropagation also skips the remaining listeners of this phase.
func (e *KeyEvent) StopImmediatePropagation() {
	e.stopped = true
	e.stoppedNow = true
}

func (e *KeyEvent) DefaultPrevented() bool { return e.defaultPrevented }

// Listener handles one key event.
type Listener func(*KeyEvent)

type registration struct {
	typ   string
	phase Phase
	fn    Listener
}

// Document dispatches key events to registered listeners and the active element.
type Document struct {
	mu        sync.Mutex
	listeners []*registration
	active    Element
}

// NewDocument returns a document with no focused element.
func NewDocument() *Document {
	return &Document{}
}

// AddListener registers fn for events of typ in phase. The returned func
// removes it; calling it again is harmless.
func (d *Document) AddListener(typ string, phase Phase, fn Listener) func() {
	reg := &registration{typ: typ, phase: phase, fn: fn}

	d.mu.Lock()
	d.listeners = append(d.listeners, reg)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, existing := range d.listeners {
			if existing == reg {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetActive moves focus to el. Nil means nothing is focused.
func (d *Document) SetActive(el Element) {
	d.mu.Lock()
	d.active = el
	d.mu.Unlock()
}

// ActiveElement returns the focused element or nil.
func (d *Document) ActiveElement() Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Dispatch runs capture listeners, the active element's handler, then bubble
// listeners, honouring propagation stops. It reports whether the default
// action was prevented.
func (d *Document) Dispatch(ev *KeyEvent) bool {
	d.mu.Lock()
	var capture, bubble []Listener
	for _, reg := range d.listeners {
		if reg.typ != ev.Type {
			continue
		}
		if reg.phase == Capture {
			capture = append(capture, reg.fn)
		} else {
			bubble = append(bubble, reg.fn)
		}
	}
	active := d.active
	d.mu.Unlock()

	runPhase(ev, capture)
	if !ev.stopped {
		if handler, ok := active.(KeyHandler); ok {
			handler.HandleKey(ev)
		}
	}
	if !ev.stopped {
		runPhase(ev, bubble)
	}
	return ev.defaultPrevented
}

func runPhase(ev *KeyEvent, listeners []Listener) {
	for _, fn := range listeners {
		if ev.stoppedNow {
			return
		}
		fn(ev)
	}
}
