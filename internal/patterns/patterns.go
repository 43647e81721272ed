// Package patterns accumulates learned failure-signature resolutions
// across investigation sessions. When a session concludes with high
// confidence, the signature that drove the conclusion is recorded; later
// sessions consult the store to prioritize hypotheses they have seen
// resolve before.
package patterns

import (
	"context"
	"strings"

	"github.com/devdebug/devdebug-ai/internal/db"
)

// Known is a previously learned resolution.
type Known struct {
	Signature  string
	RootCause  string
	Confidence float64
	HitCount   int
}

// Store records and recalls learned resolutions.
type Store interface {
	// Record notes that signature resolved to rootCause at the given
	// confidence. Repeat observations strengthen the pattern.
	Record(ctx context.Context, signature, rootCause string, confidence float64) error

	// Lookup returns the learned resolution for signature, or nil when
	// the signature has never been recorded.
	Lookup(ctx context.Context, signature string) (*Known, error)

	// Match scans text for any recorded signature and returns the most
	// frequently confirmed match, or nil.
	Match(ctx context.Context, text string) (*Known, error)
}

type dbStore struct {
	patterns db.PatternStore
}

// NewStore builds a Store backed by the given persistence layer.
func NewStore(patterns db.PatternStore) Store {
	return &dbStore{patterns: patterns}
}

func (s *dbStore) Record(ctx context.Context, signature, rootCause string, confidence float64) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil
	}
	return s.patterns.UpsertPattern(ctx, signature, rootCause, confidence)
}

func (s *dbStore) Lookup(ctx context.Context, signature string) (*Known, error) {
	rec, err := s.patterns.LookupPattern(ctx, strings.TrimSpace(signature))
	if err != nil || rec == nil {
		return nil, err
	}
	return fromRecord(rec), nil
}

// Match is bounded to the most confirmed patterns; list order is hit
// count descending, so the first containment wins.
func (s *dbStore) Match(ctx context.Context, text string) (*Known, error) {
	recs, err := s.patterns.ListPatterns(ctx, 100)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if strings.Contains(text, rec.Signature) {
			return fromRecord(rec), nil
		}
	}
	return nil, nil
}

func fromRecord(rec *db.PatternRecord) *Known {
	return &Known{
		Signature:  rec.Signature,
		RootCause:  rec.RootCause,
		Confidence: rec.Confidence,
		HitCount:   rec.HitCount,
	}
}
