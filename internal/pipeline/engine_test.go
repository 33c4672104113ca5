package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     [][]byte
	sendErr  error
	aborted  bool
	finished bool

	events    chan recognition.EngineEvent
	closeOnce sync.Once
	onFinish  func(*fakeTransport)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan recognition.EngineEvent, 8)}
}

func (f *fakeTransport) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeTransport) Events() <-chan recognition.EngineEvent { return f.events }

func (f *fakeTransport) Finish(context.Context) error {
	f.mu.Lock()
	f.finished = true
	f.mu.Unlock()
	if f.onFinish != nil {
		f.onFinish(f)
	}
	f.end()
	return nil
}

func (f *fakeTransport) Abort() {
	f.mu.Lock()
	f.aborted = true
	f.mu.Unlock()
	f.end()
}

func (f *fakeTransport) end() {
	f.closeOnce.Do(func() { close(f.events) })
}

func (f *fakeTransport) sentChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

type fakeRecorder struct {
	chunks   chan []byte
	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakeRecorder(buffered ...[]byte) *fakeRecorder {
	r := &fakeRecorder{chunks: make(chan []byte, len(buffered)+1), stopped: make(chan struct{})}
	for _, chunk := range buffered {
		r.chunks <- chunk
	}
	return r
}

func (r *fakeRecorder) Chunks() <-chan []byte { return r.chunks }

func (r *fakeRecorder) Stop() error {
	r.stopOnce.Do(func() {
		close(r.chunks)
		close(r.stopped)
	})
	return nil
}

func (r *fakeRecorder) BytesCaptured() int64 { return 0 }

func newTestEngine(transport *fakeTransport, recorder *fakeRecorder, captureErr error) (*Engine, *string) {
	var device string
	engine := NewEngine(nil, func(context.Context, string) (Transport, error) {
		return transport, nil
	}, Options{})
	engine.capture = func(_ context.Context, dev audio.Device) (Recorder, error) {
		device = dev.ID
		if captureErr != nil {
			return nil, captureErr
		}
		return recorder, nil
	}
	return engine, &device
}

func TestOpenPumpsAudioAndDeliversFinalResultsOnStop(t *testing.T) {
	transport := newFakeTransport()
	transport.onFinish = func(f *fakeTransport) {
		f.events <- recognition.EngineEvent{Kind: recognition.EngineResult, Segments: []recognition.Segment{{Text: "hello", Final: true}}}
	}
	recorder := newFakeRecorder([]byte{1, 2}, []byte{}, []byte{3})
	engine, device := newTestEngine(transport, recorder, nil)

	stream, err := engine.Open(context.Background(), recognition.StreamConfig{Language: "en-US", Device: "mic-1"})
	require.NoError(t, err)
	require.Equal(t, "mic-1", *device)

	require.Eventually(t, func() bool { return len(transport.sentChunks()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stream.Stop(context.Background()))

	var events []recognition.EngineEvent
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	require.Equal(t, "hello", events[0].Segments[0].Text)
	require.Equal(t, [][]byte{{1, 2}, {3}}, transport.sentChunks())
}

func TestOpenCaptureFailureAbortsTransport(t *testing.T) {
	transport := newFakeTransport()
	engine, _ := newTestEngine(transport, nil, errors.New("no source"))

	_, err := engine.Open(context.Background(), recognition.StreamConfig{Device: "mic-1"})
	var report recognition.ErrorReport
	require.ErrorAs(t, err, &report)
	require.Equal(t, recognition.DeviceUnavailable, report.Kind)
	require.True(t, transport.aborted)
}

func TestOpenDialFailurePassesReportThrough(t *testing.T) {
	engine := NewEngine(nil, func(context.Context, string) (Transport, error) {
		return nil, recognition.FromCode("network")
	}, Options{})
	engine.capture = func(context.Context, audio.Device) (Recorder, error) {
		t.Fatal("capture should not start when dial fails")
		return nil, nil
	}

	_, err := engine.Open(context.Background(), recognition.StreamConfig{})
	var report recognition.ErrorReport
	require.ErrorAs(t, err, &report)
	require.Equal(t, recognition.Unknown, report.Kind)
}

func TestOpenWithoutDialerIsUnknownError(t *testing.T) {
	_, err := NewEngine(nil, nil, Options{}).Open(context.Background(), recognition.StreamConfig{})
	require.Error(t, err)
}

func TestTransportEndingStopsCapture(t *testing.T) {
	transport := newFakeTransport()
	recorder := newFakeRecorder()
	engine, _ := newTestEngine(transport, recorder, nil)

	stream, err := engine.Open(context.Background(), recognition.StreamConfig{})
	require.NoError(t, err)

	transport.events <- recognition.EngineEvent{Kind: recognition.EngineError, Code: "network"}
	transport.end()

	ev := <-stream.Events()
	require.Equal(t, "network", ev.Code)
	_, ok := <-stream.Events()
	require.False(t, ok)

	select {
	case <-recorder.stopped:
	case <-time.After(time.Second):
		t.Fatal("capture still running after transport ended")
	}
}

func TestSendFailureStopsCapture(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("socket gone")
	recorder := newFakeRecorder([]byte{1})
	engine, _ := newTestEngine(transport, recorder, nil)

	_, err := engine.Open(context.Background(), recognition.StreamConfig{})
	require.NoError(t, err)

	select {
	case <-recorder.stopped:
	case <-time.After(time.Second):
		t.Fatal("capture still running after send failure")
	}
	transport.Abort()
}

func TestDumpAudioWritesWAVWhenStreamEnds(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)

	transport := newFakeTransport()
	recorder := newFakeRecorder([]byte{1, 0, 2, 0})
	engine, _ := newTestEngine(transport, recorder, nil)
	engine.opts.DumpAudio = true

	stream, err := engine.Open(context.Background(), recognition.StreamConfig{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(transport.sentChunks()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stream.Stop(context.Background()))
	for range stream.Events() {
	}

	require.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(stateDir, "murmur", "debug", "audio-*.wav"))
		return len(matches) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWriteWAVHeader(t *testing.T) {
	var buf bytes.Buffer
	pcm := []byte{0x01, 0x00, 0xFF, 0x7F}
	require.NoError(t, writeWAV(&buf, pcm, 16000, 0))

	data := buf.Bytes()
	require.Len(t, data, 44+len(pcm))
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, "data", string(data[36:40]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24]))
	require.Equal(t, uint32(32000), binary.LittleEndian.Uint32(data[28:32]))
	require.Equal(t, pcm, data[44:])
}

func TestCreateDebugFilePermissions(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	file, err := createDebugFile("audio", "wav")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	stat, err := os.Stat(file.Name())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
	require.Contains(t, file.Name(), filepath.Join("murmur", "debug"))
}

func TestResolveStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}
