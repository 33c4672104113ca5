package output

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/hypr"
)

// defaultPaste sends a "MODS,KEY" shortcut such as CTRL,V to the focused
// window through Hyprland.
func defaultPaste(ctx context.Context, shortcut string) error {
	mods, key, err := splitShortcut(shortcut)
	if err != nil {
		return err
	}
	active, err := hypr.WaitActiveWindow(ctx, 5, 10*time.Millisecond)
	if err != nil {
		return err
	}
	return hypr.NewWindow(active, nil).SendShortcut(ctx, mods, key)
}

func splitShortcut(shortcut string) (string, string, error) {
	shortcut = strings.TrimSpace(shortcut)
	if shortcut == "" {
		return "", "", fmt.Errorf("paste shortcut cannot be empty")
	}
	mods, key, ok := strings.Cut(shortcut, ",")
	if !ok {
		return "", shortcut, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", fmt.Errorf("paste shortcut %q has no key", shortcut)
	}
	return strings.TrimSpace(mods), key, nil
}
