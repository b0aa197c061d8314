package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"fraclaims/internal/config"
	"fraclaims/internal/domain"
	"fraclaims/internal/engine"
	"fraclaims/internal/metrics"
	"fraclaims/internal/port"
	"fraclaims/internal/verification"
)

const sinkTimeout = 30 * time.Second

// transitions lists the legal moves of the processing state machine. Failed is
// reachable from every state before Classified; Done and Failed have no exits.
var transitions = map[domain.PipelineState][]domain.PipelineState{
	domain.StateSubmitted:      {domain.StateAwaitingResult, domain.StateFailed},
	domain.StateAwaitingResult: {domain.StateNormalizing, domain.StateFailed},
	domain.StateNormalizing:    {domain.StateClassified, domain.StateFailed},
	domain.StateClassified:     {domain.StateDone},
}

// Coordinator drives one document at a time (per document id) from submission
// to a single ProcessingOutcome.
type Coordinator struct {
	cfg      config.EngineConfig
	client   port.TransferClient
	listener port.StatusListener
	guard    port.InFlightGuard
	sinks    []port.OutcomeSink
	metrics  *metrics.Metrics
}

// NewCoordinator creates a Coordinator. m may be nil. Every outcome is handed
// to each sink after it is decided; sink errors are logged and never alter it.
func NewCoordinator(
	cfg *config.EngineConfig,
	client port.TransferClient,
	listener port.StatusListener,
	guard port.InFlightGuard,
	m *metrics.Metrics,
	sinks ...port.OutcomeSink,
) *Coordinator {
	return &Coordinator{
		cfg:      *cfg,
		client:   client,
		listener: listener,
		guard:    guard,
		sinks:    sinks,
		metrics:  m,
	}
}

// Process runs req to exactly one outcome. When another run for the same
// document is unresolved it returns domain.ErrAlreadyInFlight and no outcome.
// Once admitted, every failure is reported as a Failed outcome, never as an error.
func (c *Coordinator) Process(ctx context.Context, req domain.ProcessingRequest) (*domain.ProcessingOutcome, error) {
	if req.DocumentID == "" {
		return nil, domain.ErrMissingDocumentID
	}

	release, err := c.guard.Acquire(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	defer release()

	c.metrics.RunStarted()
	start := time.Now()

	r := &run{documentID: req.DocumentID, state: domain.StateSubmitted}
	outcome := c.execute(ctx, r, req)

	c.metrics.ObserveOutcome(outcome, time.Since(start))
	log.Printf("coordinator.Process: document %s finished: state=%s status=%s elapsed=%s",
		outcome.DocumentID, outcome.State, outcome.Status, time.Since(start).Round(time.Millisecond))

	c.deliver(ctx, outcome)
	return outcome, nil
}

func (c *Coordinator) execute(ctx context.Context, r *run, req domain.ProcessingRequest) *domain.ProcessingOutcome {
	if err := r.transition(domain.StateAwaitingResult); err != nil {
		return r.fail(err)
	}
	payload, err := c.await(ctx, req)
	if err != nil {
		return r.fail(err)
	}

	if err := r.transition(domain.StateNormalizing); err != nil {
		return r.fail(err)
	}
	result, err := engine.Normalize(payload)
	if err != nil {
		return r.fail(err)
	}

	if err := r.transition(domain.StateClassified); err != nil {
		return r.fail(err)
	}
	status := verification.Classify(result)
	if result.OverallConfidence == nil {
		log.Printf("coordinator.Process: document %s: engine reported no confidence, routing to manual review", r.documentID)
	}
	return r.complete(result, status)
}

// await obtains the raw result payload. With the async protocol the submission
// and the status channel race; otherwise the submission answers directly, and
// an acknowledgement is followed up on the status channel. The channel is
// opened before submitting so that events sent right after the acknowledgement
// are not missed; if that early subscription fails, a run answered inline is
// unaffected and an acknowledged run subscribes again.
func (c *Coordinator) await(ctx context.Context, req domain.ProcessingRequest) (json.RawMessage, error) {
	if c.cfg.Protocol == domain.ProtocolAsync {
		return c.race(ctx, req)
	}

	stream, subErr := c.listener.Subscribe(ctx, req.DocumentID)
	if subErr == nil {
		defer func() { _ = stream.Close() }()
	}

	s := c.submit(ctx, req)
	switch s.kind {
	case sigResult:
		return s.payload, nil
	case sigError:
		return nil, s.err
	}

	log.Printf("coordinator.await: document %s: submission acknowledged, following status channel", req.DocumentID)
	if subErr != nil {
		log.Printf("coordinator.await: document %s: early subscription failed, retrying: %v", req.DocumentID, subErr)
		s = c.listen(ctx, req.DocumentID)
	} else {
		s = c.follow(req.DocumentID, stream)
	}
	switch s.kind {
	case sigResult:
		return s.payload, nil
	case sigError:
		return nil, s.err
	default:
		return nil, errNoResult()
	}
}

// race runs the submission and the channel subscription concurrently. The first
// signal carrying a result or an error decides; the other task is canceled and
// awaited before race returns.
func (c *Coordinator) race(ctx context.Context, req domain.ProcessingRequest) (json.RawMessage, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(raceCtx)
	signals := make(chan signal, 2)

	g.Go(func() error {
		signals <- c.submit(gctx, req)
		return nil
	})
	g.Go(func() error {
		signals <- c.listen(gctx, req.DocumentID)
		return nil
	})

	payload, err := decide(req.DocumentID, signals)
	cancel()
	_ = g.Wait()
	return payload, err
}

// decide reads at most one signal per task.
func decide(documentID string, signals <-chan signal) (json.RawMessage, error) {
	for i := 0; i < 2; i++ {
		s := <-signals
		switch s.kind {
		case sigResult:
			log.Printf("coordinator.race: document %s: result received via %s", documentID, s.source)
			return s.payload, nil
		case sigError:
			return nil, s.err
		case sigAck:
			log.Printf("coordinator.race: document %s: submission acknowledged, waiting on status channel", documentID)
		case sigCompletedEmpty:
			log.Printf("coordinator.race: document %s: channel completed without payload, waiting on submission", documentID)
		}
	}
	return nil, errNoResult()
}

func (c *Coordinator) submit(ctx context.Context, req domain.ProcessingRequest) signal {
	resp, err := c.client.Submit(ctx, req)
	if err != nil {
		c.metrics.ObserveSubmission(string(engine.FailureKind(err)))
		return signal{kind: sigError, source: sourceSubmission, err: err}
	}
	if resp.Acknowledged() {
		c.metrics.ObserveSubmission("acknowledged")
		return signal{kind: sigAck, source: sourceSubmission}
	}
	c.metrics.ObserveSubmission("result")
	return signal{kind: sigResult, source: sourceSubmission, payload: resp.Body}
}

func (c *Coordinator) listen(ctx context.Context, documentID string) signal {
	stream, err := c.listener.Subscribe(ctx, documentID)
	if err != nil {
		return signal{kind: sigError, source: sourceChannel, err: fmt.Errorf("subscribing to status channel: %w", err)}
	}
	defer func() { _ = stream.Close() }()
	return c.follow(documentID, stream)
}

// follow reads stream until it completes or fails.
func (c *Coordinator) follow(documentID string, stream port.EventStream) signal {
	for {
		ev, err := stream.Next()
		if ev.Phase != "" {
			c.metrics.ObserveEvent(ev.Phase)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = engine.ErrChannelClosedPrematurely
			}
			return signal{kind: sigError, source: sourceChannel, err: err}
		}

		if ev.Phase == domain.PhaseCompleted {
			if len(ev.Payload) == 0 {
				return signal{kind: sigCompletedEmpty, source: sourceChannel}
			}
			return signal{kind: sigResult, source: sourceChannel, payload: ev.Payload}
		}
		log.Printf("coordinator.listen: document %s: %s %.0f%% %s", documentID, ev.Phase, ev.PercentComplete, ev.Message)
	}
}

// deliver fans the outcome out to every sink. Delivery outlives cancellation
// of ctx so that a canceled run is still recorded.
func (c *Coordinator) deliver(ctx context.Context, outcome *domain.ProcessingOutcome) {
	if len(c.sinks) == 0 {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range c.sinks {
		g.Go(func() error {
			err := sink.Deliver(dctx, outcome)
			c.metrics.ObserveSink(sink.Name(), err)
			if err != nil {
				log.Printf("coordinator.deliver: document %s: sink %s failed: %v", outcome.DocumentID, sink.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func errNoResult() error {
	return &engine.MalformedResultError{Cause: errors.New("engine completed without delivering a result")}
}

type signalKind int

const (
	sigResult signalKind = iota
	sigError
	sigAck            // submission accepted; the result follows on the channel
	sigCompletedEmpty // channel completed; the result comes with the submission response
)

const (
	sourceSubmission = "submission"
	sourceChannel    = "status channel"
)

type signal struct {
	kind    signalKind
	source  string
	payload json.RawMessage
	err     error
}

// run is the state of one admitted ProcessingRequest.
type run struct {
	documentID string
	state      domain.PipelineState
}

func (r *run) transition(to domain.PipelineState) error {
	if r.state.IsTerminal() {
		return fmt.Errorf("document %s already %s, cannot move to %s", r.documentID, r.state, to)
	}
	for _, next := range transitions[r.state] {
		if next == to {
			r.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s for document %s", r.state, to, r.documentID)
}

func (r *run) fail(cause error) *domain.ProcessingOutcome {
	from := r.state
	if err := r.transition(domain.StateFailed); err != nil {
		log.Printf("coordinator.fail: %v", err)
		r.state = domain.StateFailed
	}
	kind := engine.FailureKind(cause)
	log.Printf("coordinator.Process: document %s failed while %s (%s): %v", r.documentID, from, kind, cause)
	return &domain.ProcessingOutcome{
		DocumentID:    r.documentID,
		State:         domain.StateFailed,
		Status:        domain.StatusPending,
		FailureKind:   kind,
		FailureReason: cause.Error(),
		CompletedAt:   time.Now().UTC(),
	}
}

func (r *run) complete(result *domain.ExtractionResult, status domain.VerificationStatus) *domain.ProcessingOutcome {
	if err := r.transition(domain.StateDone); err != nil {
		return r.fail(err)
	}
	return &domain.ProcessingOutcome{
		DocumentID:  r.documentID,
		State:       domain.StateDone,
		Result:      result,
		Status:      status,
		CompletedAt: time.Now().UTC(),
	}
}
