// Package doctor runs runtime readiness diagnostics for config, tools, audio, and the speech service.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/version"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))

	checks = append(checks, checkBinary("hyprctl", "key events and indicator require hyprctl"))
	checks = append(checks, checkCommand(cfg.Config.Output.ClipboardCmd.Argv, "clipboard_cmd"))

	if cfg.Config.Output.Paste.Enable && len(cfg.Config.Output.PasteCmd.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.Output.PasteCmd.Argv, "paste_cmd"))
	}
	if cfg.Config.Indicator.Enable && strings.EqualFold(cfg.Config.Indicator.Backend, "desktop") {
		checks = append(checks, checkBinary("busctl", "desktop indicator requires busctl"))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg.Config))

	key := checkSpeechKey(cfg.Config.Speech)
	checks = append(checks, key)
	if key.Pass {
		checks = append(checks, checkSpeechReachable(ctx, cfg.Config.Speech))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkSpeechKey verifies the API key environment variable is exported.
func checkSpeechKey(speech config.SpeechConfig) Check {
	if speech.APIKey() == "" {
		return Check{Name: "speech.key", Pass: false, Message: fmt.Sprintf("%s is not set", speech.APIKeyEnv)}
	}
	return Check{Name: "speech.key", Pass: true, Message: fmt.Sprintf("%s is set", speech.APIKeyEnv)}
}

// checkSpeechReachable authenticates against the speech HTTP API.
func checkSpeechReachable(ctx context.Context, speech config.SpeechConfig) Check {
	url := strings.TrimRight(strings.TrimSpace(speech.HTTPBase), "/") + "/projects"

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: "speech.api", Pass: false, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Authorization", "Token "+speech.APIKey())
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: "speech.api", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Check{Name: "speech.api", Pass: false, Message: fmt.Sprintf("HTTP %d from %s; check %s", resp.StatusCode, url, speech.APIKeyEnv)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Check{Name: "speech.api", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: "speech.api", Pass: true, Message: fmt.Sprintf("authenticated at %s", url)}
}
