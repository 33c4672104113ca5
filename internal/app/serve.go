package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/deepgram"
	"github.com/rbright/murmur/internal/hypr"
	"github.com/rbright/murmur/internal/indicator"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/keytrigger"
	"github.com/rbright/murmur/internal/metrics"
	"github.com/rbright/murmur/internal/output"
	"github.com/rbright/murmur/internal/permission"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/voice"
	"golang.org/x/sync/errgroup"
)

// commandServe owns the runtime socket and runs the daemon until ctx is
// cancelled or a client sends shutdown.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			logger.Warn("serve refused: daemon already running", "socket", socketPath)
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runtime, err := buildRuntime(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon setup failed", "error", err.Error())
		return 1
	}

	focus := func(ctx context.Context) (keytrigger.Element, error) {
		return hypr.QueryFocusedWindow(ctx, cfg.Trigger.TextEntryClasses)
	}
	d := newDaemon(logger, runtime.controller, cfg.Trigger.Key, focus, cancel)

	if err := serveDaemon(ctx, logger, d, listener, runtime.collector, cfg.Metrics.Listen); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	runtime.notifier.Wait()
	return 0
}

type runtimeParts struct {
	controller *voice.Controller
	collector  *metrics.Collector
	notifier   *indicator.Notifier
}

// buildRuntime wires the speech client, capture pipeline, device gate,
// committer, indicator, and metrics into a controller.
func buildRuntime(cfg config.Config, logger *slog.Logger) (runtimeParts, error) {
	client, err := deepgram.New(deepgram.Options{
		Endpoint:   cfg.Speech.Endpoint,
		APIKey:     cfg.Speech.APIKey(),
		Model:      cfg.Speech.Model,
		SampleRate: audio.SampleRate,
	})
	if err != nil {
		return runtimeParts{}, fmt.Errorf("%w (export %s)", err, cfg.Speech.APIKeyEnv)
	}

	engine := pipeline.NewEngine(logger, pipeline.Deepgram(client), pipeline.Options{DumpAudio: cfg.Debug.AudioDump})
	gate := permission.NewGate(logger, permission.PulseResolver(cfg.Audio.Input, cfg.Audio.Fallback), cfg.Voice.PermissionTimeout())
	collector := metrics.New()
	notifier := indicator.New(cfg.Indicator, logger)

	controller := voice.NewController(
		logger,
		gateLeases(gate),
		engine,
		output.NewCommitter(cfg, logger),
		notifier,
		voice.Options{
			Language:     cfg.Speech.Language,
			Silence:      cfg.Voice.Silence(),
			ErrorDismiss: cfg.Voice.ErrorDismiss(),
			StopTimeout:  cfg.Voice.StopTimeout(),
			Disabled:     cfg.Voice.Disabled,
			Metrics:      collector,
		},
	)
	return runtimeParts{controller: controller, collector: collector, notifier: notifier}, nil
}

// gateLeases adapts a permission gate to the controller's lease contract.
func gateLeases(gate *permission.Gate) voice.Permission {
	return voice.PermissionFunc(func(ctx context.Context) (voice.Lease, error) {
		grant, err := gate.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return grant, nil
	})
}

// serveDaemon runs the IPC server and the optional metrics endpoint until ctx
// ends, then disposes the daemon.
func serveDaemon(
	ctx context.Context,
	logger *slog.Logger,
	d *daemon,
	listener net.Listener,
	collector *metrics.Collector,
	metricsListen string,
) error {
	var metricsListener net.Listener
	if addr := strings.TrimSpace(metricsListen); addr != "" && collector != nil {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			d.close()
			return fmt.Errorf("listen metrics %s: %w", addr, err)
		}
		metricsListener = l
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ipc.Serve(gctx, listener, d)
	})
	if metricsListener != nil {
		logger.Info("metrics endpoint listening", "addr", metricsListener.Addr().String())
		g.Go(func() error {
			return collector.Serve(gctx, metricsListener)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		d.close()
		return nil
	})

	logger.Info("daemon ready", "socket", listener.Addr().String())
	err := g.Wait()
	logger.Info("daemon stopped")
	return err
}
