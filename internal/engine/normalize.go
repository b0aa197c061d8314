package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"sort"

	"fraclaims/internal/domain"
)

// Field synonyms accepted from the engine, in lookup order. The first key that
// is present, non-null and decodes to the expected shape wins.
var (
	textFields       = []string{"extracted_text", "extractedText", "ocr_text"}
	entityFields     = []string{"entities", "extractedEntities", "entities_extracted"}
	confidenceFields = []string{"confidence", "overall_confidence", "overallConfidence"}
	durationMsFields = []string{"processing_duration_ms", "processingDurationMs"}
	durationSecField = []string{"processing_time", "processingTime"}
)

// Per-entity field synonyms.
var (
	entityValueFields      = []string{"value", "text"}
	entityConfidenceFields = []string{"confidence", "confidence_score", "score"}
	entityStartFields      = []string{"start_index", "start", "startIndex"}
	entityEndFields        = []string{"end_index", "end", "endIndex"}
)

type fields map[string]json.RawMessage

// Normalize maps a raw engine payload to the canonical ExtractionResult.
// Missing optional fields default to empty values; a missing or out-of-range
// overall confidence is left nil. Only a payload that is not a JSON object
// yields *MalformedResultError.
func Normalize(raw []byte) (*domain.ExtractionResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &MalformedResultError{Cause: errors.New("empty payload")}
	}
	var f fields
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, &MalformedResultError{Cause: err}
	}
	if f == nil {
		return nil, &MalformedResultError{Cause: errors.New("payload is null")}
	}

	result := &domain.ExtractionResult{Entities: []domain.Entity{}}
	lookup(f, textFields, &result.ExtractedText)

	for _, key := range entityFields {
		if entities, ok := decodeEntities(f[key]); ok {
			result.Entities = entities
			break
		}
	}

	var confidence float64
	if lookup(f, confidenceFields, &confidence) && inUnitRange(confidence) {
		result.OverallConfidence = &confidence
	}

	var ms float64
	var secs float64
	switch {
	case lookup(f, durationMsFields, &ms):
		result.ProcessingDurationMs = int64(math.Round(ms))
	case lookup(f, durationSecField, &secs):
		result.ProcessingDurationMs = int64(math.Round(secs * 1000))
	}
	if result.ProcessingDurationMs < 0 {
		result.ProcessingDurationMs = 0
	}

	return result, nil
}

// lookup decodes the first usable synonym into dst and reports whether one was found.
func lookup(f fields, keys []string, dst any) bool {
	for _, key := range keys {
		raw, ok := f[key]
		if !ok || isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, dst); err == nil {
			return true
		}
	}
	return false
}

// decodeEntities accepts either an ordered array of entities or an object
// grouping entities by type. Grouped entities are flattened in key order.
func decodeEntities(raw json.RawMessage) ([]domain.Entity, bool) {
	if isNull(raw) {
		return nil, false
	}

	var list []fields
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]domain.Entity, 0, len(list))
		for _, ef := range list {
			if ef == nil {
				continue
			}
			out = append(out, decodeEntity(ef, ""))
		}
		return out, true
	}

	var grouped map[string][]fields
	if err := json.Unmarshal(raw, &grouped); err == nil {
		types := make([]string, 0, len(grouped))
		for t := range grouped {
			types = append(types, t)
		}
		sort.Strings(types)
		out := []domain.Entity{}
		for _, t := range types {
			for _, ef := range grouped[t] {
				if ef == nil {
					continue
				}
				out = append(out, decodeEntity(ef, t))
			}
		}
		return out, true
	}
	return nil, false
}

func decodeEntity(ef fields, groupType string) domain.Entity {
	e := domain.Entity{Type: groupType}
	lookup(ef, []string{"type", "label"}, &e.Type)
	lookup(ef, entityValueFields, &e.Value)

	var score float64
	if lookup(ef, entityConfidenceFields, &score) {
		e.ConfidenceScore = math.Max(0, math.Min(1, score))
	}
	lookup(ef, entityStartFields, &e.Span.Start)
	lookup(ef, entityEndFields, &e.Span.End)
	var span domain.Span
	if lookup(ef, []string{"span"}, &span) {
		e.Span = span
	}
	lookup(ef, []string{"verified"}, &e.Verified)
	return e
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
