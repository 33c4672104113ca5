package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
	localeGerman  locale = "de"
)

type messages struct {
	listening  string
	processing string
	errorText  string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "de") {
		return localeGerman
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeGerman:
		return messages{
			listening:  "Höre zu…",
			processing: "Verarbeite…",
			errorText:  "Spracherkennung fehlgeschlagen",
		}
	default:
		return messages{
			listening:  "Listening…",
			processing: "Transcribing…",
			errorText:  "Speech recognition error",
		}
	}
}
