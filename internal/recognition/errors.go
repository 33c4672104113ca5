package recognition

import (
	"errors"
	"strings"
)

// ErrorKind is the fixed taxonomy surfaced to the voice controller.
type ErrorKind string

const (
	NoSpeechDetected  ErrorKind = "no-speech"
	PermissionDenied  ErrorKind = "permission-denied"
	DeviceUnavailable ErrorKind = "device-unavailable"
	Aborted           ErrorKind = "aborted"
	Unknown           ErrorKind = "unknown"
)

// ErrorReport is a translated engine or permission failure.
type ErrorReport struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Cause     error
}

func (e ErrorReport) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e ErrorReport) Unwrap() error {
	return e.Cause
}

// NewError builds a report for kind with the default user-facing message.
func NewError(kind ErrorKind, cause error) ErrorReport {
	report := defaultReport(kind)
	report.Cause = cause
	return report
}

// FromCode maps a raw engine error code onto the taxonomy.
func FromCode(code string) ErrorReport {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "no-speech":
		return defaultReport(NoSpeechDetected)
	case "not-allowed", "permission-denied", "service-not-allowed":
		return defaultReport(PermissionDenied)
	case "audio-capture":
		return defaultReport(DeviceUnavailable)
	case "aborted":
		return defaultReport(Aborted)
	case "network":
		return ErrorReport{Kind: Unknown, Message: "Network error. Check connection.", Retryable: true}
	default:
		return defaultReport(Unknown)
	}
}

// AsReport converts any error into a report, defaulting to fallback for foreign errors.
func AsReport(err error, fallback ErrorKind) ErrorReport {
	var report ErrorReport
	if errors.As(err, &report) {
		return report
	}
	return NewError(fallback, err)
}

func defaultReport(kind ErrorKind) ErrorReport {
	switch kind {
	case NoSpeechDetected:
		return ErrorReport{Kind: kind, Message: "No speech detected. Please try again.", Retryable: true}
	case PermissionDenied:
		return ErrorReport{Kind: kind, Message: "Microphone permission denied. Please allow access."}
	case DeviceUnavailable:
		return ErrorReport{Kind: kind, Message: "No microphone found."}
	case Aborted:
		return ErrorReport{Kind: kind, Message: "Recognition aborted."}
	default:
		return ErrorReport{Kind: Unknown, Message: "Could not understand. Try again.", Retryable: true}
	}
}
