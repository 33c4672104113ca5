// Package transcript cleans up recognized text before it is dispatched.
package transcript

import "strings"

// Options controls Format.
type Options struct {
	CapitalizeSentences bool
	TrailingSpace       bool
}

// Normalize collapses whitespace runs to single spaces and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Format normalizes text and applies the configured casing. Empty input stays empty.
func Format(text string, opts Options) string {
	text = Normalize(text)
	if text == "" {
		return ""
	}
	if opts.CapitalizeSentences {
		text = capitalizeSentences(text)
	} else {
		text = capitalizeFirst(text)
	}
	if opts.TrailingSpace {
		text += " "
	}
	return text
}
