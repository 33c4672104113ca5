// Package permission grants exclusive, time-bounded use of the audio input.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/recognition"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is the cause reported when another holder keeps the device past the wait limit.
var ErrBusy = errors.New("microphone busy")

// DefaultTimeout bounds how long Acquire waits for the device and for source resolution.
const DefaultTimeout = 5 * time.Second

// Resolver picks the capture source for one attempt.
type Resolver func(context.Context) (audio.Selection, error)

// Gate hands out at most one Grant at a time.
type Gate struct {
	logger  *slog.Logger
	resolve Resolver
	timeout time.Duration
	sem     *semaphore.Weighted
}

// NewGate builds a gate. A zero timeout uses DefaultTimeout.
func NewGate(logger *slog.Logger, resolve Resolver, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		logger:  logger,
		resolve: resolve,
		timeout: timeout,
		sem:     semaphore.NewWeighted(1),
	}
}

// PulseResolver resolves sources with audio.SelectDevice.
func PulseResolver(input string, fallback string) Resolver {
	return func(ctx context.Context) (audio.Selection, error) {
		return audio.SelectDevice(ctx, input, fallback)
	}
}

// Acquire waits for exclusive use of the input and resolves its source.
// Failures are recognition.ErrorReport values: DeviceUnavailable when the
// device is busy or missing, PermissionDenied when the input is muted, and
// Aborted when ctx is cancelled by the caller.
func (g *Gate) Acquire(ctx context.Context) (*Grant, error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, recognition.NewError(recognition.Aborted, ctx.Err())
		}
		report := recognition.NewError(recognition.DeviceUnavailable, ErrBusy)
		report.Message = "Microphone is in use. Try again."
		return nil, report
	}

	selection, err := g.resolve(waitCtx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		g.sem.Release(1)
		switch {
		case ctx.Err() != nil:
			return nil, recognition.NewError(recognition.Aborted, ctx.Err())
		case errors.Is(err, audio.ErrMuted):
			return nil, recognition.NewError(recognition.PermissionDenied, err)
		default:
			return nil, recognition.NewError(recognition.DeviceUnavailable, fmt.Errorf("select input: %w", err))
		}
	}

	if selection.Warning != "" && g.logger != nil {
		g.logger.Warn(selection.Warning)
	}
	return &Grant{gate: g, selection: selection}, nil
}

// Grant is one exclusive hold on the input device.
type Grant struct {
	gate      *Gate
	selection audio.Selection
	once      sync.Once
}

// Device returns the resolved capture source.
func (g *Grant) Device() audio.Device {
	return g.selection.Device
}

// Selection returns the full resolution result, including any fallback warning.
func (g *Grant) Selection() audio.Selection {
	return g.selection
}

// Release returns the device to the gate. Extra calls are ignored.
func (g *Grant) Release() {
	g.once.Do(func() {
		g.gate.sem.Release(1)
	})
}
