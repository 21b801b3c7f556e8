package ensemble

import (
	"fmt"
	"sync/atomic"
	"time"

	"shelfcast/internal/domain"
)

// Snapshot is one immutable, fully built ensemble: the weights, the
// validation errors they came from, the trained feature order, and one
// predictor per weighted model.
type Snapshot struct {
	Version      int
	Errors       domain.ErrorScore
	Weights      domain.WeightSet
	FeatureNames []string
	Predictors   map[string]Predictor
	LoadedAt     time.Time
}

// NewSnapshot validates and copies its inputs.
func NewSnapshot(version int, errs domain.ErrorScore, weights domain.WeightSet, featureNames []string, predictors map[string]Predictor) (*Snapshot, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("ensemble snapshot v%d: %w", version, err)
	}
	preds := make(map[string]Predictor, len(predictors))
	for k, p := range predictors {
		if p != nil {
			preds[k] = p
		}
	}
	names := append([]string(nil), featureNames...)
	return &Snapshot{
		Version:      version,
		Errors:       errs.Clone(),
		Weights:      weights.Clone(),
		FeatureNames: names,
		Predictors:   preds,
		LoadedAt:     time.Now().UTC(),
	}, nil
}

// Store holds the current snapshot. Swap replaces it in one step, so a reader
// sees either the old or the new snapshot, never a mix.
type Store struct {
	current atomic.Pointer[Snapshot]
}

func NewStore(initial *Snapshot) *Store {
	s := &Store{}
	if initial != nil {
		s.current.Store(initial)
	}
	return s
}

// Current returns the installed snapshot or nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Swap installs next and returns the snapshot it replaced.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	return s.current.Swap(next)
}

// Version is the installed snapshot version, or 0 when nothing is installed.
func (s *Store) Version() int {
	if snap := s.current.Load(); snap != nil {
		return snap.Version
	}
	return 0
}
