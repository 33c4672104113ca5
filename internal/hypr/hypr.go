// Package hypr wraps the hyprctl commands murmur relies on.
package hypr

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/rbright/murmur/internal/keytrigger"
)

// Window is the focused Hyprland client seen as a key-event target.
type Window struct {
	ActiveWindow
	textEntry bool
}

// NewWindow classifies w against the configured text-entry classes.
// Matching is case-insensitive on either class or initial class.
func NewWindow(w ActiveWindow, textEntryClasses []string) *Window {
	match := func(class string) bool {
		class = strings.ToLower(strings.TrimSpace(class))
		if class == "" {
			return false
		}
		return slices.ContainsFunc(textEntryClasses, func(candidate string) bool {
			return strings.ToLower(strings.TrimSpace(candidate)) == class
		})
	}
	return &Window{ActiveWindow: w, textEntry: match(w.Class) || match(w.InitialClass)}
}

func (w *Window) Role() keytrigger.Role {
	if w.textEntry {
		return keytrigger.RoleTextEntry
	}
	return keytrigger.RoleOther
}

// Blur is a no-op: compositor key bindings never deliver the bound key to the
// window in the first place.
func (w *Window) Blur() {}

// SendShortcut dispatches mods+key to this window regardless of focus.
func (w *Window) SendShortcut(ctx context.Context, mods string, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("shortcut requires a key")
	}
	if w.Address == "" {
		return fmt.Errorf("window address is required")
	}
	return SendShortcut(ctx, fmt.Sprintf("%s,%s,address:%s", strings.TrimSpace(mods), key, w.Address))
}

// ForwardKey replays an unconsumed key press into the window it came from.
func (w *Window) ForwardKey(ctx context.Context, key string) error {
	return w.SendShortcut(ctx, "", key)
}

func runHyprctl(ctx context.Context, args ...string) error {
	_, err := runHyprctlOutput(ctx, args...)
	return err
}

func runHyprctlOutput(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
