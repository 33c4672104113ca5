package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/stretchr/testify/require"
)

const (
	interimResult = `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"show"}]}}`
	finalResult   = `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"show me spending"}]}}`
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Options{APIKey: "  "})
	require.Error(t, err)
}

func TestURLDefaults(t *testing.T) {
	client, err := New(Options{APIKey: "key"})
	require.NoError(t, err)

	raw, err := client.URL("en-US")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "api.deepgram.com", u.Host)

	q := u.Query()
	require.Equal(t, "nova-3", q.Get("model"))
	require.Equal(t, "en-US", q.Get("language"))
	require.Equal(t, "linear16", q.Get("encoding"))
	require.Equal(t, "16000", q.Get("sample_rate"))
	require.Equal(t, "1", q.Get("channels"))
	require.Equal(t, "true", q.Get("interim_results"))
	require.Equal(t, "true", q.Get("punctuate"))
}

func TestURLCustomEndpointAndModel(t *testing.T) {
	client, err := New(Options{APIKey: "key", Endpoint: "ws://localhost:9000/v1/listen?tier=x", Model: "base", SampleRate: 48000})
	require.NoError(t, err)

	raw, err := client.URL("")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "localhost:9000", u.Host)
	require.Equal(t, "x", u.Query().Get("tier"))
	require.Equal(t, "base", u.Query().Get("model"))
	require.Equal(t, "48000", u.Query().Get("sample_rate"))
	require.False(t, u.Query().Has("language"))
}

func TestParseMessage(t *testing.T) {
	ev, ok := parseMessage([]byte(finalResult))
	require.True(t, ok)
	require.Equal(t, recognition.EngineResult, ev.Kind)
	require.Equal(t, []recognition.Segment{{Text: "show me spending", Final: true}}, ev.Segments)

	ev, ok = parseMessage([]byte(interimResult))
	require.True(t, ok)
	require.False(t, ev.Segments[0].Final)

	for _, ignored := range []string{
		`{"type":"Metadata"}`,
		`{"type":"SpeechStarted"}`,
		`{"type":"Results","channel":{"alternatives":[]}}`,
		`not json`,
	} {
		_, ok := parseMessage([]byte(ignored))
		require.False(t, ok, ignored)
	}
}

func TestCloseCode(t *testing.T) {
	ctx := context.Background()

	_, ok := closeCode(ctx, websocket.CloseError{Code: websocket.StatusNormalClosure})
	require.False(t, ok)

	code, ok := closeCode(ctx, websocket.CloseError{Code: websocket.StatusInternalError, Reason: "NET-0001 no audio"})
	require.True(t, ok)
	require.Equal(t, "no-speech", code)

	code, _ = closeCode(ctx, websocket.CloseError{Code: websocket.StatusPolicyViolation, Reason: "DATA-0000"})
	require.Equal(t, "audio-capture", code)

	code, _ = closeCode(ctx, context.DeadlineExceeded)
	require.Equal(t, "network", code)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, ok = closeCode(cancelled, context.Canceled)
	require.False(t, ok)
}

func wsEndpoint(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/listen"
}

func TestStreamSendsAudioAndDrainsResultsOnFinish(t *testing.T) {
	var (
		received atomic.Int64
		auth     atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				break
			}
			received.Add(int64(len(data)))
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(interimResult))
		_ = conn.Write(ctx, websocket.MessageText, []byte(finalResult))
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	client, err := New(Options{APIKey: "secret", Endpoint: wsEndpoint(srv)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Dial(ctx, "en-US")
	require.NoError(t, err)

	require.NoError(t, stream.SendAudio(make([]byte, 640)))
	require.NoError(t, stream.SendAudio(make([]byte, 320)))
	require.NoError(t, stream.Finish(ctx))
	require.ErrorIs(t, stream.SendAudio([]byte{1}), ErrClosed)

	var events []recognition.EngineEvent
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	require.Equal(t, "show", events[0].Segments[0].Text)
	require.True(t, events[1].Segments[0].Final)
	require.EqualValues(t, 960, received.Load())
	require.Equal(t, "Token secret", auth.Load())
}

func TestStreamReportsServerErrorClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_ = conn.Close(websocket.StatusInternalError, "NET-0001: no audio received")
	}))
	defer srv.Close()

	client, err := New(Options{APIKey: "secret", Endpoint: wsEndpoint(srv)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Dial(ctx, "en-US")
	require.NoError(t, err)
	defer stream.Abort()

	ev, ok := <-stream.Events()
	require.True(t, ok)
	require.Equal(t, recognition.EngineError, ev.Kind)
	require.Equal(t, "no-speech", ev.Code)

	_, ok = <-stream.Events()
	require.False(t, ok)
}

func TestDialRejectedCredentialsIsPermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := New(Options{APIKey: "bad", Endpoint: wsEndpoint(srv)})
	require.NoError(t, err)

	_, err = client.Dial(context.Background(), "en-US")
	var report recognition.ErrorReport
	require.ErrorAs(t, err, &report)
	require.Equal(t, recognition.PermissionDenied, report.Kind)
}

func TestDialUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := wsEndpoint(srv)
	srv.Close()

	client, err := New(Options{APIKey: "key", Endpoint: endpoint})
	require.NoError(t, err)

	_, err = client.Dial(context.Background(), "en-US")
	var report recognition.ErrorReport
	require.ErrorAs(t, err, &report)
	require.Equal(t, recognition.Unknown, report.Kind)
	require.True(t, report.Retryable)
	require.Contains(t, report.Message, "Network")
}
