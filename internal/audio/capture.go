package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// SampleRate is the capture rate expected by the speech engine.
	SampleRate = 16000
	// chunkBytes is 20ms of 16kHz mono s16le.
	chunkBytes = 640
)

// Capture streams fixed-size PCM chunks from one Pulse source.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	quit   chan struct{}

	mu       sync.Mutex
	buffered []byte
	closed   bool

	writers sync.WaitGroup
	total   atomic.Int64
}

// StartCapture opens a 16kHz mono record stream on device. The capture stops
// when ctx is cancelled.
func StartCapture(ctx context.Context, device Device) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %w", ErrNoInput, device.ID, err)
	}

	c := newCapture(device)
	c.client = client

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(c.write), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkBytes),
		pulse.RecordMediaName("murmur dictation"),
	)
	if err != nil {
		_ = c.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-c.quit:
		}
	}()

	return c, nil
}

func newCapture(device Device) *Capture {
	return &Capture{
		device: device,
		chunks: make(chan []byte, 128),
		quit:   make(chan struct{}),
	}
}

// Device returns the source being captured.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks yields PCM chunks until Stop; the channel is then closed.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured reports the total PCM bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.total.Load()
}

// Stop halts recording, flushes any partial chunk, and closes Chunks. Safe to call repeatedly.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.quit)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.writers.Wait()

	c.mu.Lock()
	tail := c.buffered
	c.buffered = nil
	c.mu.Unlock()

	if len(tail) > 0 {
		select {
		case c.chunks <- tail:
		default:
		}
	}
	close(c.chunks)
	return nil
}

func (c *Capture) write(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under mu so Stop's Wait never races a late writer.
	c.writers.Add(1)
	c.buffered = append(c.buffered, buffer...)
	var ready [][]byte
	for len(c.buffered) >= chunkBytes {
		chunk := make([]byte, chunkBytes)
		copy(chunk, c.buffered)
		c.buffered = c.buffered[chunkBytes:]
		ready = append(ready, chunk)
	}
	c.mu.Unlock()
	defer c.writers.Done()

	c.total.Add(int64(len(buffer)))

	for _, chunk := range ready {
		select {
		case c.chunks <- chunk:
		case <-c.quit:
			return 0, io.EOF
		}
	}
	return len(buffer), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
