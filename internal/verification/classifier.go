// Package verification assigns verification statuses to extraction results.
package verification

import "fraclaims/internal/domain"

// Confidence breakpoints. A value equal to a breakpoint belongs to the lower band.
const (
	VerifiedAbove = 0.8
	PendingAbove  = 0.5
)

// Classify returns the verification status for an extraction result:
// Verified above 0.8, Pending above 0.5 up to 0.8, Rejected at or below 0.5.
// A result without a reported confidence is routed to Pending for manual review.
func Classify(result *domain.ExtractionResult) domain.VerificationStatus {
	if result == nil || result.OverallConfidence == nil {
		return domain.StatusPending
	}
	return ClassifyConfidence(*result.OverallConfidence)
}

// ClassifyConfidence applies the confidence bands to a single value.
func ClassifyConfidence(confidence float64) domain.VerificationStatus {
	switch {
	case confidence > VerifiedAbove:
		return domain.StatusVerified
	case confidence > PendingAbove:
		return domain.StatusPending
	default:
		return domain.StatusRejected
	}
}
