package port

import (
	"context"
	"net/http"

	"fraclaims/internal/domain"
)

// EngineResponse is the engine's direct reply to a submission.
type EngineResponse struct {
	StatusCode int
	Body       []byte
}

// Acknowledged reports whether the engine only accepted the submission for
// asynchronous processing; the result then arrives over the status channel.
func (r *EngineResponse) Acknowledged() bool {
	return r.StatusCode == http.StatusAccepted
}

// TransferClient performs the one-shot submission of document bytes to the engine.
type TransferClient interface {
	Submit(ctx context.Context, req domain.ProcessingRequest) (*EngineResponse, error)
}

// EventStream is a finite, non-restartable sequence of progress events for one document.
// Next returns io.EOF once the completed event has been delivered.
type EventStream interface {
	Next() (domain.ProgressEvent, error)
	Close() error
}

// StatusListener opens push channels scoped to a document.
type StatusListener interface {
	Subscribe(ctx context.Context, documentID string) (EventStream, error)
}
