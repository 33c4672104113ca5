package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const minSilenceMS = 300

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	provider := strings.ToLower(strings.TrimSpace(cfg.Speech.Provider))
	if provider != "deepgram" {
		return nil, fmt.Errorf("speech.provider must be one of: deepgram")
	}
	if err := validateURL("speech.endpoint", cfg.Speech.Endpoint, "ws", "wss"); err != nil {
		return nil, err
	}
	if err := validateURL("speech.http_base", cfg.Speech.HTTPBase, "http", "https"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Speech.APIKeyEnv) == "" {
		return nil, fmt.Errorf("speech.api_key_env must not be empty")
	}
	if strings.TrimSpace(cfg.Speech.Model) == "" {
		return nil, fmt.Errorf("speech.model must not be empty")
	}
	if strings.TrimSpace(cfg.Speech.Language) == "" {
		return nil, fmt.Errorf("speech.language must not be empty")
	}
	if cfg.Speech.APIKey() == "" {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("%s is not set; dictation will fail until it is exported", cfg.Speech.APIKeyEnv)})
	}

	if cfg.Voice.SilenceMS <= 0 {
		return nil, fmt.Errorf("voice.silence_ms must be > 0")
	}
	if cfg.Voice.SilenceMS < minSilenceMS {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("voice.silence_ms=%d is short; pauses between words may end dictation", cfg.Voice.SilenceMS)})
	}
	if cfg.Voice.ErrorDismissMS <= 0 {
		return nil, fmt.Errorf("voice.error_dismiss_ms must be > 0")
	}
	if cfg.Voice.PermissionTimeoutMS <= 0 {
		return nil, fmt.Errorf("voice.permission_timeout_ms must be > 0")
	}
	if cfg.Voice.StopTimeoutMS <= 0 {
		return nil, fmt.Errorf("voice.stop_timeout_ms must be > 0")
	}

	if strings.TrimSpace(cfg.Trigger.Key) == "" {
		return nil, fmt.Errorf("trigger.key must not be empty")
	}
	for _, class := range cfg.Trigger.TextEntryClasses {
		if strings.TrimSpace(class) == "" {
			return nil, fmt.Errorf("trigger.text_entry_classes must not contain empty entries")
		}
	}

	if len(cfg.Output.ClipboardCmd.Argv) == 0 {
		return nil, fmt.Errorf("output.clipboard_cmd must not be empty")
	}
	if cfg.Output.Paste.Enable && cfg.Output.PasteCmd.Raw != "" && len(cfg.Output.PasteCmd.Argv) == 0 {
		return nil, fmt.Errorf("output.paste_cmd is configured but empty")
	}
	if cfg.Output.Paste.Enable && len(cfg.Output.PasteCmd.Argv) == 0 && strings.TrimSpace(cfg.Output.Paste.Shortcut) == "" {
		return nil, fmt.Errorf("output.paste.shortcut must not be empty when output.paste.enable=true and output.paste_cmd is unset")
	}
	if !cfg.Output.Paste.Enable && len(cfg.Output.PasteCmd.Argv) > 0 {
		warnings = append(warnings, Warning{Message: "output.paste_cmd is ignored while output.paste.enable=false"})
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}

	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return nil, fmt.Errorf("metrics.listen must be host:port: %w", err)
		}
	}

	return warnings, nil
}

func validateURL(key string, raw string, schemes ...string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme && parsed.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of: %s", key, strings.Join(schemes, ", "))
}
