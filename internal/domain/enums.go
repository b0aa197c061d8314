package domain

// VerificationStatus is the verification state of a claim document.
type VerificationStatus string

const (
	StatusPending    VerificationStatus = "Pending"
	StatusProcessing VerificationStatus = "Processing"
	StatusVerified   VerificationStatus = "Verified"
	StatusRejected   VerificationStatus = "Rejected"
)

// ValidVerificationStatuses is the set of statuses accepted from stored rows.
var ValidVerificationStatuses = map[VerificationStatus]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusVerified:   true,
	StatusRejected:   true,
}

// IsDecision reports whether the status is a final verification decision.
func (s VerificationStatus) IsDecision() bool {
	return s == StatusVerified || s == StatusRejected
}

// Phase is the engine-reported phase carried by a progress event.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// IsTerminal reports whether no further events follow this phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// PipelineState is a state of the per-document processing state machine.
type PipelineState string

const (
	StateSubmitted      PipelineState = "submitted"
	StateAwaitingResult PipelineState = "awaiting_result"
	StateNormalizing    PipelineState = "normalizing"
	StateClassified     PipelineState = "classified"
	StateDone           PipelineState = "done"
	StateFailed         PipelineState = "failed"
)

// IsTerminal reports whether the pipeline state is Done or Failed.
func (s PipelineState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// FailureKind classifies why a processing run ended in StateFailed.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureInvalidRequest     FailureKind = "invalid_request"
	FailureEngineUnreachable  FailureKind = "engine_unreachable"
	FailureEngineRejected     FailureKind = "engine_rejected"
	FailureChannelTimeout     FailureKind = "channel_timeout"
	FailureChannelClosed      FailureKind = "channel_closed_prematurely"
	FailureEngineReportedFail FailureKind = "engine_reported_failure"
	FailureMalformedResult    FailureKind = "malformed_result"
	FailureCanceled           FailureKind = "canceled"
	FailureInternal           FailureKind = "internal"
)

// EngineProtocol selects how the engine delivers results for a submission.
type EngineProtocol string

const (
	// ProtocolSync: the submission response carries the result.
	ProtocolSync EngineProtocol = "sync"
	// ProtocolAsync: progress and completion arrive over the status channel.
	ProtocolAsync EngineProtocol = "async"
)

// ValidEngineProtocols is the set of recognized engine protocols.
var ValidEngineProtocols = map[EngineProtocol]bool{
	ProtocolSync:  true,
	ProtocolAsync: true,
}
