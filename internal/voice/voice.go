// Package voice implements the push-to-talk dictation controller.
package voice

import (
	"context"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/recognition"
)

const (
	DefaultSilence      = 2 * time.Second
	DefaultErrorDismiss = 3 * time.Second
	DefaultStopTimeout  = 3 * time.Second
)

// Lease is an exclusive hold on the input device.
type Lease interface {
	Device() audio.Device
	Release()
}

// Permission grants device leases. Failures should be recognition.ErrorReport values.
type Permission interface {
	Acquire(context.Context) (Lease, error)
}

// PermissionFunc adapts a function to Permission.
type PermissionFunc func(context.Context) (Lease, error)

func (f PermissionFunc) Acquire(ctx context.Context) (Lease, error) {
	return f(ctx)
}

// Committer receives each delivered transcript.
type Committer interface {
	Commit(context.Context, string) error
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(context.Context, string) error

func (f CommitFunc) Commit(ctx context.Context, transcript string) error {
	return f(ctx, transcript)
}

// Notice is a transient error shown to the user.
type Notice struct {
	Kind        recognition.ErrorKind
	Message     string
	Retryable   bool
	AutoDismiss time.Duration
}

// Indicator renders controller feedback. Calls are made from the controller
// loop and must not call back into the controller.
type Indicator interface {
	ShowListening(context.Context)
	ShowProcessing(context.Context)
	ShowError(context.Context, Notice)
	Hide(context.Context)
	CueStart(context.Context)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
}

type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowProcessing(context.Context)    {}
func (noopIndicator) ShowError(context.Context, Notice) {}
func (noopIndicator) Hide(context.Context)              {}
func (noopIndicator) CueStart(context.Context)          {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueComplete(context.Context)       {}
func (noopIndicator) CueCancel(context.Context)         {}

// Metrics observes controller outcomes.
type Metrics interface {
	AttemptStarted()
	StateChanged(fsm.State)
	TranscriptDelivered(time.Duration)
	AutoFinalized()
	ErrorSurfaced(recognition.ErrorKind)
}

type noopMetrics struct{}

func (noopMetrics) AttemptStarted()                     {}
func (noopMetrics) StateChanged(fsm.State)              {}
func (noopMetrics) TranscriptDelivered(time.Duration)   {}
func (noopMetrics) AutoFinalized()                      {}
func (noopMetrics) ErrorSurfaced(recognition.ErrorKind) {}

// Options tunes a Controller. Zero durations use the package defaults.
type Options struct {
	Language     string
	Silence      time.Duration
	ErrorDismiss time.Duration
	StopTimeout  time.Duration
	Disabled     bool
	Metrics      Metrics
}

func (o Options) withDefaults() Options {
	if o.Silence <= 0 {
		o.Silence = DefaultSilence
	}
	if o.ErrorDismiss <= 0 {
		o.ErrorDismiss = DefaultErrorDismiss
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
	return o
}

// Snapshot is a consistent view of controller state.
type Snapshot struct {
	State    fsm.State
	Pending  bool
	Disabled bool
	Interim  string
	Final    string
	Error    *Notice
}
