package keytrigger

import "sync"

// Target receives press and release edges.
type Target interface {
	Start() bool
	Stop() bool
}

// keyValues maps key codes to the character reported in KeyEvent.Key.
var keyValues = map[string]string{
	"Space": " ",
	"Enter": "Enter",
	"Tab":   "Tab",
}

// Trigger turns one key's edges into a single Start per press and a single
// Stop per release.
type Trigger struct {
	doc    *Document
	code   string
	value  string
	target Target

	mu     sync.Mutex
	held   bool
	active bool
}

// Bind listens for code on doc in the capture phase. The returned func removes
// both listeners and forgets any outstanding press.
func Bind(doc *Document, code string, target Target) (*Trigger, func()) {
	t := &Trigger{doc: doc, code: code, value: keyValues[code], target: target}

	removeDown := doc.AddListener(KeyDown, Capture, t.keyDown)
	removeUp := doc.AddListener(KeyUp, Capture, t.keyUp)

	var once sync.Once
	return t, func() {
		once.Do(func() {
			removeDown()
			removeUp()
			t.mu.Lock()
			t.held = false
			t.active = false
			t.mu.Unlock()
		})
	}
}

// pressed reports whether a press is outstanding.
func (t *Trigger) pressed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Trigger) matches(ev *KeyEvent) bool {
	return ev.Code == t.code || (t.value != "" && ev.Key == t.value)
}

func (t *Trigger) typing() bool {
	el := t.doc.ActiveElement()
	return el != nil && el.Role() == RoleTextEntry
}

func suppress(ev *KeyEvent) {
	ev.PreventDefault()
	ev.StopPropagation()
	ev.StopImmediatePropagation()
}

func (t *Trigger) keyDown(ev *KeyEvent) {
	if !t.matches(ev) || t.typing() {
		return
	}
	suppress(ev)
	if el := t.doc.ActiveElement(); el != nil {
		el.Blur()
		t.doc.SetActive(nil)
	}

	t.mu.Lock()
	first := !t.held && !ev.Repeat
	if first {
		t.held = true
		t.active = true
	}
	t.mu.Unlock()

	if first {
		t.target.Start()
	}
}

func (t *Trigger) keyUp(ev *KeyEvent) {
	if !t.matches(ev) {
		return
	}

	t.mu.Lock()
	active := t.active
	t.held = false
	t.active = false
	t.mu.Unlock()

	if !active {
		return
	}
	if !t.typing() {
		suppress(ev)
	}
	t.target.Stop()
}
