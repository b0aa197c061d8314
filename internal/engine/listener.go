package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fraclaims/internal/config"
	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

// Envelope types pushed by the engine.
const (
	msgStatusUpdate = "status_update"
	msgComplete     = "complete"
	msgError        = "error"
)

type envelope struct {
	Type       string          `json:"type"`
	DocumentID string          `json:"document_id"`
	Data       json.RawMessage `json:"data"`
}

type statusData struct {
	DocumentID string          `json:"document_id"`
	Status     string          `json:"status"`
	Progress   *float64        `json:"progress"`
	Message    string          `json:"message"`
	Result     json.RawMessage `json:"result"`
}

// Listener opens per-document status channels. It implements port.StatusListener.
type Listener struct {
	cfg    config.EngineConfig
	dialer *websocket.Dialer
}

// NewListener creates a status channel listener from the engine config.
func NewListener(cfg *config.EngineConfig) *Listener {
	return &Listener{
		cfg: *cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// Subscribe opens the status channel for documentID. The returned stream ends
// after a completed event (io.EOF), a failed event (*ChannelFailedError), an
// idle gap longer than the configured timeout (ErrChannelTimeout), or a close
// before any terminal phase (ErrChannelClosedPrematurely). Canceling ctx
// closes the connection and unblocks a pending Next.
func (l *Listener) Subscribe(ctx context.Context, documentID string) (port.EventStream, error) {
	url := l.cfg.StatusURL(documentID)
	conn, resp, err := l.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("opening status channel: %w", ctx.Err())
		}
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, &EngineRejectedError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil, &EngineUnreachableError{Cause: fmt.Errorf("opening status channel: %w", err)}
	}

	s := &subscription{
		documentID: documentID,
		conn:       conn,
		idle:       l.cfg.IdleTimeout,
		ctx:        ctx,
		last:       -1,
	}
	s.stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	return s, nil
}

type subscription struct {
	documentID string
	conn       *websocket.Conn
	idle       time.Duration
	ctx        context.Context
	stop       func() bool

	done    bool
	endErr  error
	last    float64
	closing sync.Once
}

func (s *subscription) Next() (domain.ProgressEvent, error) {
	if s.done {
		return domain.ProgressEvent{}, s.endErr
	}
	for {
		if s.idle > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return domain.ProgressEvent{}, s.finish(s.readError(err))
		}

		ev, ok := s.decode(data)
		if !ok {
			continue
		}
		s.trackProgress(ev)

		if !ev.Phase.IsTerminal() {
			return ev, nil
		}
		if ev.Phase == domain.PhaseCompleted {
			s.finish(io.EOF)
			return ev, nil
		}
		return ev, s.finish(&ChannelFailedError{Message: ev.Message})
	}
}

func (s *subscription) Close() error {
	var err error
	s.closing.Do(func() {
		s.stop()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *subscription) finish(err error) error {
	s.done = true
	s.endErr = err
	_ = s.Close()
	return err
}

func (s *subscription) readError(err error) error {
	if s.ctx.Err() != nil {
		return fmt.Errorf("status channel: %w", s.ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w (no event for %s)", ErrChannelTimeout, s.idle)
	}
	return fmt.Errorf("%w: %v", ErrChannelClosedPrematurely, err)
}

// decode maps one channel message to a progress event. Messages that are not
// understood are logged and skipped.
func (s *subscription) decode(data []byte) (domain.ProgressEvent, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("engine.Listener: document %s: skipping undecodable message: %v", s.documentID, err)
		return domain.ProgressEvent{}, false
	}

	if env.DocumentID != "" && env.DocumentID != s.documentID {
		log.Printf("engine.Listener: document %s: skipping event addressed to %s", s.documentID, env.DocumentID)
		return domain.ProgressEvent{}, false
	}

	ev := domain.ProgressEvent{DocumentID: s.documentID, PercentComplete: s.last}
	switch env.Type {
	case msgStatusUpdate:
		var st statusData
		if err := json.Unmarshal(env.Data, &st); err != nil {
			log.Printf("engine.Listener: document %s: skipping malformed status_update: %v", s.documentID, err)
			return domain.ProgressEvent{}, false
		}
		ev.Phase = phaseOf(st.Status)
		ev.Message = st.Message
		if st.Progress != nil {
			ev.PercentComplete = clampPercent(*st.Progress)
		}
		if ev.Phase == domain.PhaseCompleted && len(st.Result) > 0 && string(st.Result) != "null" {
			ev.Payload = st.Result
		}
	case msgComplete:
		ev.Phase = domain.PhaseCompleted
		ev.PercentComplete = 100
		if len(env.Data) > 0 && string(env.Data) != "null" {
			ev.Payload = env.Data
		}
	case msgError:
		ev.Phase = domain.PhaseFailed
		ev.Message = errorMessage(env.Data)
	default:
		log.Printf("engine.Listener: document %s: skipping message of unknown type %q", s.documentID, env.Type)
		return domain.ProgressEvent{}, false
	}

	return ev, true
}

// trackProgress logs reported percent regressions; they are tolerated.
// Updates without a progress value carry the last known percent.
func (s *subscription) trackProgress(ev domain.ProgressEvent) {
	if ev.PercentComplete < s.last {
		log.Printf("engine.Listener: document %s: progress regressed from %.0f%% to %.0f%% (phase %s)",
			s.documentID, s.last, ev.PercentComplete, ev.Phase)
		return
	}
	s.last = ev.PercentComplete
}

func phaseOf(status string) domain.Phase {
	switch domain.Phase(status) {
	case domain.PhaseQueued, domain.PhaseProcessing, domain.PhaseCompleted, domain.PhaseFailed:
		return domain.Phase(status)
	case "complete", "done":
		return domain.PhaseCompleted
	case "error":
		return domain.PhaseFailed
	default:
		return domain.PhaseProcessing
	}
}

func errorMessage(data json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		return asString
	}
	var st statusData
	if err := json.Unmarshal(data, &st); err == nil {
		return st.Message
	}
	return ""
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
