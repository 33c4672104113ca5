package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyService = "org.freedesktop.Notifications"
	notifyPath    = "/org/freedesktop/Notifications"
)

// urgency is the freedesktop urgency hint.
type urgency uint8

const (
	urgencyLow urgency = iota
	urgencyNormal
	urgencyCritical
)

// desktopNotify sends a replaceable notification over DBus via busctl and
// returns the ID the server assigned.
func desktopNotify(ctx context.Context, appName string, replaceID uint32, s surface) (uint32, error) {
	out, err := busctlCall(ctx, "Notify", "susssasa{sv}i",
		appName,
		strconv.FormatUint(uint64(replaceID), 10),
		"",
		s.text,
		"",
		"0", // actions
		"1", "urgency", "y", strconv.Itoa(int(s.urgency)),
		strconv.Itoa(s.timeoutMS),
	)
	if err != nil {
		return 0, err
	}

	var id uint32
	if _, err := fmt.Sscanf(out, "u %d", &id); err != nil {
		return 0, fmt.Errorf("desktop notify invalid response %q: %w", out, err)
	}
	return id, nil
}

func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := busctlCall(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	return err
}

func busctlCall(ctx context.Context, method string, signature string, args ...string) (string, error) {
	argv := append([]string{"--user", "call", notifyService, notifyPath, notifyService, method, signature}, args...)
	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text == "" {
			return "", fmt.Errorf("busctl %s: %w", method, err)
		}
		return "", fmt.Errorf("busctl %s: %w (%s)", method, err, text)
	}
	return text, nil
}
