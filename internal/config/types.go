// Package config resolves, parses, validates, and defaults murmur configuration.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully materialized runtime configuration used by murmur.
type Config struct {
	Speech     SpeechConfig     `yaml:"speech"`
	Audio      AudioConfig      `yaml:"audio"`
	Voice      VoiceConfig      `yaml:"voice"`
	Trigger    TriggerConfig    `yaml:"trigger"`
	Output     OutputConfig     `yaml:"output"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Indicator  IndicatorConfig  `yaml:"indicator"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Debug      DebugConfig      `yaml:"debug"`
}

// SpeechConfig selects and addresses the streaming recognition service.
type SpeechConfig struct {
	Provider  string `yaml:"provider"`
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Language  string `yaml:"language"`
	HTTPBase  string `yaml:"http_base"`
}

// APIKey reads the service key from the configured environment variable.
func (s SpeechConfig) APIKey() string {
	if strings.TrimSpace(s.APIKeyEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(s.APIKeyEnv))
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
}

// VoiceConfig holds dictation timing and the startup disabled flag.
type VoiceConfig struct {
	SilenceMS           int  `yaml:"silence_ms"`
	ErrorDismissMS      int  `yaml:"error_dismiss_ms"`
	PermissionTimeoutMS int  `yaml:"permission_timeout_ms"`
	StopTimeoutMS       int  `yaml:"stop_timeout_ms"`
	Disabled            bool `yaml:"disabled"`
}

func (v VoiceConfig) Silence() time.Duration {
	return time.Duration(v.SilenceMS) * time.Millisecond
}

func (v VoiceConfig) ErrorDismiss() time.Duration {
	return time.Duration(v.ErrorDismissMS) * time.Millisecond
}

func (v VoiceConfig) PermissionTimeout() time.Duration {
	return time.Duration(v.PermissionTimeoutMS) * time.Millisecond
}

func (v VoiceConfig) StopTimeout() time.Duration {
	return time.Duration(v.StopTimeoutMS) * time.Millisecond
}

// TriggerConfig binds the push-to-talk key.
type TriggerConfig struct {
	Key              string   `yaml:"key"`
	TextEntryClasses []string `yaml:"text_entry_classes"`
}

// OutputConfig controls clipboard commit and the optional paste step.
type OutputConfig struct {
	ClipboardCmd CommandConfig `yaml:"clipboard_cmd"`
	Paste        PasteConfig   `yaml:"paste"`
	PasteCmd     CommandConfig `yaml:"paste_cmd"`
}

// PasteConfig controls post-commit paste behavior.
type PasteConfig struct {
	Enable   bool   `yaml:"enable"`
	Shortcut string `yaml:"shortcut"`
}

// TranscriptConfig controls transcript formatting before commit.
type TranscriptConfig struct {
	CapitalizeSentences bool `yaml:"capitalize_sentences"`
	TrailingSpace       bool `yaml:"trailing_space"`
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool   `yaml:"enable"`
	Backend           string `yaml:"backend"`
	DesktopAppName    string `yaml:"desktop_app_name"`
	SoundEnable       bool   `yaml:"sound_enable"`
	SoundStartFile    string `yaml:"sound_start_file"`
	SoundStopFile     string `yaml:"sound_stop_file"`
	SoundCompleteFile string `yaml:"sound_complete_file"`
	SoundCancelFile   string `yaml:"sound_cancel_file"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool `yaml:"audio_dump"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// UnmarshalYAML accepts a shell-like command string.
func (c *CommandConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	cmd, err := ParseCommand(raw)
	if err != nil {
		return err
	}
	*c = cmd
	return nil
}

// MarshalYAML renders the raw command string.
func (c CommandConfig) MarshalYAML() (any, error) {
	return c.Raw, nil
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
