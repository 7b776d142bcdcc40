// Package registry owns the set of enrolled identities. A Snapshot is
// immutable once built; the Registry publishes snapshots atomically so that
// matchers never observe a partially built set.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/internal/domain/model"
)

// Snapshot is an immutable set of identity centroids ordered by name.
type Snapshot struct {
	names     []string
	centroids []embedding.Vector
	dim       int
	builtAt   time.Time
}

// NewSnapshot builds a snapshot from one centroid per identity. Names are
// canonicalized and centroids re-normalized to unit length. The rejection
// label model.UnknownLabel is reserved and cannot be enrolled.
func NewSnapshot(centroids map[string]embedding.Vector) (*Snapshot, error) {
	canon := make(map[string]embedding.Vector, len(centroids))
	dim := 0
	for raw, vec := range centroids {
		name := CanonicalName(raw)
		if name == "" || name == model.UnknownLabel {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, raw)
		}
		if _, dup := canon[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateIdentity, name)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("identity %q: %w", name, embedding.ErrEmptyVector)
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("identity %q: %w: %d != %d", name, ErrDimensionMismatch, len(vec), dim)
		}
		canon[name] = embedding.Normalize(vec)
	}

	s := &Snapshot{
		names:     make([]string, 0, len(canon)),
		centroids: make([]embedding.Vector, 0, len(canon)),
		dim:       dim,
		builtAt:   time.Now(),
	}
	for name := range canon {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	for _, name := range s.names {
		s.centroids = append(s.centroids, canon[name])
	}
	return s, nil
}

// Build computes the centroid of every identity's samples and returns the
// resulting snapshot. Identities with no samples are rejected.
func Build(samples map[string][]embedding.Vector) (*Snapshot, error) {
	centroids := make(map[string]embedding.Vector, len(samples))
	for name, vecs := range samples {
		c, err := embedding.Centroid(vecs)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", name, err)
		}
		centroids[name] = c
	}
	return NewSnapshot(centroids)
}

// Len returns the number of identities.
func (s *Snapshot) Len() int { return len(s.names) }

// Dim returns the centroid dimension, 0 for an empty snapshot.
func (s *Snapshot) Dim() int { return s.dim }

// BuiltAt returns when the snapshot was assembled.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Names returns a copy of the identity names in ascending order.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Centroids returns a copy of the name to centroid mapping.
func (s *Snapshot) Centroids() map[string]embedding.Vector {
	out := make(map[string]embedding.Vector, len(s.names))
	for i, name := range s.names {
		v := make(embedding.Vector, len(s.centroids[i]))
		copy(v, s.centroids[i])
		out[name] = v
	}
	return out
}

// Match returns the identity whose centroid has the highest dot product with
// vec. Identities are scanned in ascending name order and only a strictly
// greater similarity replaces the current best, so ties resolve to the
// lexicographically first name. An empty snapshot yields a zero Match.
func (s *Snapshot) Match(vec embedding.Vector) (model.Match, error) {
	if len(s.names) == 0 {
		return model.Match{}, nil
	}
	if len(vec) != s.dim {
		return model.Match{}, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(vec), s.dim)
	}

	best := model.Match{}
	for i, c := range s.centroids {
		sim, err := embedding.Dot(vec, c)
		if err != nil {
			return model.Match{}, err
		}
		if !best.Found || sim > best.Similarity {
			best = model.Match{Name: s.names[i], Similarity: sim, Found: true}
		}
	}
	return best, nil
}
