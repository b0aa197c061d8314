package engine_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraclaims/internal/domain"
	"fraclaims/internal/engine"
)

var upgrader = websocket.Upgrader{}

// newChannelServer serves the status channel for one document with script.
func newChannelServer(t *testing.T, documentID string, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/"+documentID {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		script(conn)
	}))
}

func send(conn *websocket.Conn, msg string) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// hold keeps the connection open until the client goes away.
func hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestListener_CompletedEndsSequence(t *testing.T) {
	server := newChannelServer(t, "doc-1", func(conn *websocket.Conn) {
		send(conn, `{"type":"status_update","data":{"document_id":"doc-1","status":"queued","progress":10}}`)
		send(conn, `{"type":"status_update","data":{"document_id":"doc-1","status":"processing","progress":40,"message":"running OCR"}}`)
		send(conn, `{"type":"status_update","data":{"document_id":"doc-1","status":"processing","progress":30}}`)
		send(conn, `{"type":"status_update","data":{"document_id":"doc-1","status":"completed","progress":100,"result":{"extracted_text":"hello","confidence":0.9}}}`)
		hold(conn)
	})
	defer server.Close()

	stream, err := engine.NewListener(newTestConfig(server.URL)).Subscribe(context.Background(), "doc-1")
	require.NoError(t, err)
	defer stream.Close()

	var events []domain.ProgressEvent
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.Len(t, events, 4)
	assert.Equal(t, domain.PhaseQueued, events[0].Phase)
	assert.Equal(t, 10.0, events[0].PercentComplete)
	assert.Equal(t, "running OCR", events[1].Message)
	assert.Equal(t, 30.0, events[2].PercentComplete, "regressed progress is delivered, not fatal")
	assert.Equal(t, domain.PhaseCompleted, events[3].Phase)
	assert.JSONEq(t, `{"extracted_text":"hello","confidence":0.9}`, string(events[3].Payload))

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestListener_CompleteEnvelopeCarriesPayload(t *testing.T) {
	server := newChannelServer(t, "doc-2", func(conn *websocket.Conn) {
		send(conn, `{"type":"complete","document_id":"doc-2","data":{"ocr_text":"deed","confidence":0.7}}`)
		hold(conn)
	})
	defer server.Close()

	stream, err := engine.NewListener(newTestConfig(server.URL)).Subscribe(context.Background(), "doc-2")
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, ev.Phase)
	assert.Equal(t, 100.0, ev.PercentComplete)
	assert.JSONEq(t, `{"ocr_text":"deed","confidence":0.7}`, string(ev.Payload))
}

func TestListener_DropBeforeTerminalPhase(t *testing.T) {
	server := newChannelServer(t, "doc-3", func(conn *websocket.Conn) {
		send(conn, `{"type":"status_update","data":{"status":"queued","progress":10}}`)
		send(conn, `{"type":"status_update","data":{"status":"processing","progress":40}}`)
		_ = conn.Close()
	})
	defer server.Close()

	stream, err := engine.NewListener(newTestConfig(server.URL)).Subscribe(context.Background(), "doc-3")
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseQueued, ev.Phase)
	ev, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseProcessing, ev.Phase)

	_, err = stream.Next()
	assert.ErrorIs(t, err, engine.ErrChannelClosedPrematurely)
	assert.Equal(t, domain.FailureChannelClosed, engine.FailureKind(err))

	_, again := stream.Next()
	assert.Equal(t, err, again, "a finished stream is not restartable")
}

func TestListener_IdleTimeout(t *testing.T) {
	server := newChannelServer(t, "doc-4", func(conn *websocket.Conn) {
		send(conn, `{"type":"status_update","data":{"status":"processing","progress":5}}`)
		hold(conn)
	})
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.IdleTimeout = 100 * time.Millisecond
	stream, err := engine.NewListener(cfg).Subscribe(context.Background(), "doc-4")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.NoError(t, err)

	start := time.Now()
	_, err = stream.Next()
	assert.ErrorIs(t, err, engine.ErrChannelTimeout)
	assert.Equal(t, domain.FailureChannelTimeout, engine.FailureKind(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestListener_FailedEvent(t *testing.T) {
	server := newChannelServer(t, "doc-5", func(conn *websocket.Conn) {
		send(conn, `{"type":"status_update","data":{"status":"processing","progress":20}}`)
		send(conn, `{"type":"error","data":{"message":"OCR engine crashed"}}`)
		hold(conn)
	})
	defer server.Close()

	stream, err := engine.NewListener(newTestConfig(server.URL)).Subscribe(context.Background(), "doc-5")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.NoError(t, err)

	ev, err := stream.Next()
	assert.Equal(t, domain.PhaseFailed, ev.Phase)
	var failed *engine.ChannelFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "OCR engine crashed", failed.Message)
	assert.Equal(t, domain.FailureEngineReportedFail, engine.FailureKind(err))
}

func TestListener_UpdateWithoutProgressKeepsLastPercent(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	server := newChannelServer(t, "doc-5b", func(conn *websocket.Conn) {
		send(conn, `{"type":"status_update","data":{"status":"processing","progress":40}}`)
		send(conn, `{"type":"status_update","data":{"status":"processing","message":"classifying"}}`)
		send(conn, `{"type":"error","data":{"message":"classifier unavailable"}}`)
		hold(conn)
	})
	defer server.Close()

	stream, err := engine.NewListener(newTestConfig(server.URL)).Subscribe(context.Background(), "doc-5b")
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, 40.0, first.PercentComplete)

	second, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "classifying", second.Message)
	assert.Equal(t, 40.0, second.PercentComplete)

	failed, err := stream.Next()
	require.Error(t, err)
	assert.Equal(t, domain.PhaseFailed, failed.Phase)
	assert.Equal(t, 40.0, failed.PercentComplete)

	assert.NotContains(t, logs.String(), "regressed")
}

func TestListener_SkipsUnrecognizedMessages(t *testing.T) {
	server := newChannelServer(t, "doc-6", func(conn *websocket.Conn) {
		send(conn, `not json at all`)
		send(conn, `{"type":"ping"}`)
		send(conn, `{"type":"status_update","document_id":"someone-else","data":{"status":"completed"}}`)
		send(conn, `{"type":"complete","data":null}`)
		hold(conn)
	})
	defer server.Close()

	stream, err := engine.NewListener(newTestConfig(server.URL)).Subscribe(context.Background(), "doc-6")
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, ev.Phase)
	assert.Nil(t, ev.Payload)
}

func TestListener_CancelUnblocksNext(t *testing.T) {
	server := newChannelServer(t, "doc-7", func(conn *websocket.Conn) {
		hold(conn)
	})
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.IdleTimeout = 10 * time.Second
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := engine.NewListener(cfg).Subscribe(ctx, "doc-7")
	require.NoError(t, err)
	defer stream.Close()

	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err = stream.Next()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestListener_HandshakeRejected(t *testing.T) {
	server := newChannelServer(t, "doc-8", hold)
	defer server.Close()

	_, err := engine.NewListener(newTestConfig(server.URL)).Subscribe(context.Background(), "unknown-doc")

	var rejected *engine.EngineRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusNotFound, rejected.StatusCode)
}

func TestListener_Unreachable(t *testing.T) {
	server := newChannelServer(t, "doc-9", hold)
	url := server.URL
	server.Close()

	_, err := engine.NewListener(newTestConfig(url)).Subscribe(context.Background(), "doc-9")

	var unreachable *engine.EngineUnreachableError
	assert.True(t, errors.As(err, &unreachable))
}

func TestListener_CloseIsIdempotent(t *testing.T) {
	server := newChannelServer(t, "doc-10", hold)
	defer server.Close()

	stream, err := engine.NewListener(newTestConfig(server.URL)).Subscribe(context.Background(), "doc-10")
	require.NoError(t, err)

	assert.NoError(t, stream.Close())
	assert.NotPanics(t, func() { _ = stream.Close() })
}
