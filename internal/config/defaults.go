package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Speech: SpeechConfig{
			Provider:  "deepgram",
			Endpoint:  "wss://api.deepgram.com/v1/listen",
			APIKeyEnv: "DEEPGRAM_API_KEY",
			Model:     "nova-3",
			Language:  "en-US",
			HTTPBase:  "https://api.deepgram.com/v1",
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Voice: VoiceConfig{
			SilenceMS:           2000,
			ErrorDismissMS:      3000,
			PermissionTimeoutMS: 5000,
			StopTimeoutMS:       3000,
		},
		Trigger: TriggerConfig{Key: "Space"},
		Output: OutputConfig{
			ClipboardCmd: mustCommand("wl-copy --trim-newline"),
			Paste:        PasteConfig{Enable: true, Shortcut: "CTRL,V"},
		},
		Transcript: TranscriptConfig{
			CapitalizeSentences: true,
			TrailingSpace:       true,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "murmur-indicator",
			SoundEnable:    true,
		},
	}
}
