package recognition

import "strings"

// Utterance accumulates fragments for one press.
type Utterance struct {
	Interim string
	Final   string
}

// Apply merges a fragment and reports whether it committed final text.
func (u *Utterance) Apply(f Fragment) bool {
	u.Interim = f.Interim
	if !f.IsFinal() {
		return false
	}
	u.Final += f.Final
	return true
}

// Best prefers committed final text and falls back to the live interim preview.
func (u Utterance) Best() string {
	if strings.TrimSpace(u.Final) != "" {
		return u.Final
	}
	return u.Interim
}

// Reset discards all accumulated text.
func (u *Utterance) Reset() {
	u.Interim = ""
	u.Final = ""
}
