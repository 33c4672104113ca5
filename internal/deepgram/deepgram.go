// Package deepgram streams PCM to the Deepgram live transcription API over a
// websocket and reports results as recognition engine events.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/version"
)

const (
	DefaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	DefaultModel      = "nova-3"
	DefaultSampleRate = 16000
)

// ErrClosed is returned by SendAudio after the stream has been finished or aborted.
var ErrClosed = errors.New("deepgram: stream closed")

// Options configures a Client.
type Options struct {
	Endpoint   string
	APIKey     string
	Model      string
	SampleRate int
}

// Client dials live transcription streams.
type Client struct {
	opts Options
}

// New validates opts and fills defaults.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("deepgram: api key must not be empty")
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	return &Client{opts: opts}, nil
}

// URL builds the streaming endpoint for language.
func (c *Client) URL(language string) (string, error) {
	u, err := url.Parse(c.opts.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	q := u.Query()
	q.Set("model", c.opts.Model)
	if language != "" {
		q.Set("language", language)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.opts.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens a stream. Credential rejections are reported as PermissionDenied,
// every other dial failure as a retryable network error.
func (c *Client) Dial(ctx context.Context, language string) (*Stream, error) {
	endpoint, err := c.URL(language)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.opts.APIKey)
	headers.Set("User-Agent", version.UserAgent())

	conn, resp, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, dialError(resp, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		conn:      conn,
		events:    make(chan recognition.EngineEvent, 64),
		audio:     make(chan []byte, 256),
		finishing: make(chan struct{}),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
		cancel:    cancel,
	}
	go s.readLoop(loopCtx)
	go s.writeLoop(loopCtx)
	return s, nil
}

func dialError(resp *http.Response, err error) error {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		report := recognition.FromCode("service-not-allowed")
		report.Cause = fmt.Errorf("deepgram rejected credentials (HTTP %d): %w", resp.StatusCode, err)
		return report
	}
	report := recognition.FromCode("network")
	report.Cause = fmt.Errorf("deepgram dial: %w", err)
	return report
}

// Stream is one live transcription. Events is closed once the server has
// flushed its last result or the stream was aborted.
type Stream struct {
	conn   *websocket.Conn
	events chan recognition.EngineEvent
	audio  chan []byte

	finishing  chan struct{}
	finishOnce sync.Once
	readDone   chan struct{}
	writeDone  chan struct{}
	cancel     context.CancelFunc
}

// Events yields results and errors until the stream ends.
func (s *Stream) Events() <-chan recognition.EngineEvent {
	return s.events
}

// SendAudio queues one PCM chunk.
func (s *Stream) SendAudio(chunk []byte) error {
	select {
	case <-s.finishing:
		return ErrClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.finishing:
		return ErrClosed
	case <-s.readDone:
		return ErrClosed
	}
}

// Finish flushes queued audio, asks the server to close, and waits for the
// remaining results. If ctx expires first the stream is aborted.
func (s *Stream) Finish(ctx context.Context) error {
	s.finishOnce.Do(func() { close(s.finishing) })

	select {
	case <-s.readDone:
		s.cancel()
		<-s.writeDone
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
		return nil
	case <-ctx.Done():
		s.Abort()
		return ctx.Err()
	}
}

// Abort drops the connection without waiting for pending results.
func (s *Stream) Abort() {
	s.finishOnce.Do(func() { close(s.finishing) })
	s.cancel()
	_ = s.conn.CloseNow()
}

func (s *Stream) writeLoop(ctx context.Context) {
	defer close(s.writeDone)
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.finishing:
			for {
				select {
				case chunk := <-s.audio:
					if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return
					}
				default:
					_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.readDone)
	defer close(s.events)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			if code, ok := closeCode(ctx, err); ok {
				s.emit(ctx, recognition.EngineEvent{Kind: recognition.EngineError, Code: code, Detail: err.Error()})
			}
			return
		}

		ev, ok := parseMessage(msg)
		if !ok {
			continue
		}
		s.emit(ctx, ev)
	}
}

func (s *Stream) emit(ctx context.Context, ev recognition.EngineEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// closeCode maps a read failure to an engine error code. Normal closure and
// local cancellation are not errors.
func closeCode(ctx context.Context, err error) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	var ce websocket.CloseError
	if !errors.As(err, &ce) {
		return "network", true
	}
	if ce.Code == websocket.StatusNormalClosure {
		return "", false
	}
	switch {
	case strings.HasPrefix(ce.Reason, "NET-0001"):
		return "no-speech", true
	case strings.HasPrefix(ce.Reason, "DATA-"):
		return "audio-capture", true
	default:
		return "network", true
	}
}

type message struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseMessage converts a Results message into a one-segment result event.
// Metadata, SpeechStarted, UtteranceEnd and malformed frames are ignored.
func parseMessage(data []byte) (recognition.EngineEvent, bool) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return recognition.EngineEvent{}, false
	}
	if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
		return recognition.EngineEvent{}, false
	}
	return recognition.EngineEvent{
		Kind:     recognition.EngineResult,
		Segments: []recognition.Segment{{Text: msg.Channel.Alternatives[0].Transcript, Final: msg.IsFinal}},
	}, true
}
