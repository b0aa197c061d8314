// Package ledger notarizes classification outcomes in a write-once record store.
package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"fraclaims/internal/config"
	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

var ErrAttestationMismatch = errors.New("attestation does not match ledger record")

// AttestationClaims is the signed statement stored with each ledger record.
type AttestationClaims struct {
	jwt.RegisteredClaims
	Status domain.VerificationStatus `json:"status"`
	Digest string                    `json:"digest"`
}

// Notarizer records each Done outcome as a digest plus a signed attestation.
// It implements port.OutcomeSink.
type Notarizer struct {
	repo   port.LedgerRepository
	key    []byte
	issuer string
	now    func() time.Time
}

// NewNotarizer creates a Notarizer from the ledger config.
func NewNotarizer(repo port.LedgerRepository, cfg *config.LedgerConfig) *Notarizer {
	return &Notarizer{
		repo:   repo,
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

func (n *Notarizer) Name() string { return "ledger" }

// Deliver notarizes every Done outcome, including Pending ones routed to review.
// Failed runs are skipped.
func (n *Notarizer) Deliver(ctx context.Context, outcome *domain.ProcessingOutcome) error {
	if !outcome.Succeeded() {
		return nil
	}

	digest, err := Digest(outcome)
	if err != nil {
		return err
	}

	rec := &domain.LedgerRecord{
		ID:         uuid.New(),
		DocumentID: outcome.DocumentID,
		Status:     outcome.Status,
		Digest:     digest,
		RecordedAt: n.now().UTC(),
	}
	rec.Attestation, err = n.sign(rec)
	if err != nil {
		return err
	}

	if err := n.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("storing ledger record: %w", err)
	}
	log.Printf("ledger.Notarize: document %s recorded as %s (digest %s)", rec.DocumentID, rec.Status, digest[:16])
	return nil
}

// Verify checks that rec's attestation was signed by this notarizer and matches
// the record's document, status and digest.
func (n *Notarizer) Verify(rec *domain.LedgerRecord) error {
	claims := &AttestationClaims{}
	token, err := jwt.ParseWithClaims(rec.Attestation, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return n.key, nil
	}, jwt.WithIssuer(n.issuer))
	if err != nil {
		return fmt.Errorf("parsing attestation: %w", err)
	}
	if !token.Valid {
		return ErrAttestationMismatch
	}
	if claims.Subject != rec.DocumentID || claims.ID != rec.ID.String() ||
		claims.Status != rec.Status || claims.Digest != rec.Digest {
		return ErrAttestationMismatch
	}
	return nil
}

func (n *Notarizer) sign(rec *domain.LedgerRecord) (string, error) {
	claims := &AttestationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  rec.DocumentID,
			Issuer:   n.issuer,
			IssuedAt: jwt.NewNumericDate(rec.RecordedAt),
			ID:       rec.ID.String(),
		},
		Status: rec.Status,
		Digest: rec.Digest,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.key)
	if err != nil {
		return "", fmt.Errorf("signing attestation: %w", err)
	}
	return signed, nil
}

// Digest returns the hex blake2b-256 digest of the outcome's JSON encoding.
func Digest(outcome *domain.ProcessingOutcome) (string, error) {
	data, err := json.Marshal(outcome)
	if err != nil {
		return "", fmt.Errorf("encoding outcome: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
