// Package consensus decides, from a burst of frames, whether a face belongs to
// an enrolled identity. Each frame is detected, embedded and matched; the
// engine folds the matches into a verdict and stops early when one frame is
// decisive or too many frames are unknown.
package consensus

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/internal/domain/model"
	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/pkg/logger"
	"github.com/okian/facetally/pkg/metrics"
)

// Unknown-frame causes reported to metrics.
const (
	causeNoFace         = "no_face"
	causeDegenerate     = "degenerate"
	causeEmbedError     = "embed_error"
	causeBelowThreshold = "below_threshold"
)

// Detector locates the largest face in a frame. ok is false when there is none.
type Detector interface {
	DetectLargestFace(ctx context.Context, frame model.Frame) (face image.Rectangle, ok bool, err error)
}

// Embedder turns the face region of a frame into a unit-length vector.
type Embedder interface {
	Embed(ctx context.Context, frame model.Frame, face image.Rectangle) (embedding.Vector, error)
}

// SnapshotSource hands out the registry snapshot a session matches against.
type SnapshotSource interface {
	Current() *registry.Snapshot
}

// Engine runs recognition sessions. It is safe for concurrent use; all
// per-session state lives inside Run.
type Engine struct {
	detector     Detector
	embedder     Embedder
	source       SnapshotSource
	policy       Policy
	maxFrames    int
	newSessionID func() string
	logger       logger.Logger
}

// NewEngine builds an engine over the given collaborators.
func NewEngine(det Detector, emb Embedder, src SnapshotSource, opts ...Option) (*Engine, error) {
	switch {
	case det == nil:
		return nil, ErrNoDetector
	case emb == nil:
		return nil, ErrNoEmbedder
	case src == nil:
		return nil, ErrNoRegistry
	}
	e := &Engine{
		detector:     det,
		embedder:     emb,
		source:       src,
		policy:       DefaultPolicy(),
		newSessionID: uuid.NewString,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.policy.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Policy returns the thresholds in effect.
func (e *Engine) Policy() Policy { return e.policy }

// Run processes frames in order and returns the session verdict. Frame level
// defects count as unknown frames; only an empty input or a cancelled
// context is an error.
func (e *Engine) Run(ctx context.Context, frames []model.Frame) (model.Verdict, error) {
	if len(frames) == 0 {
		return model.Verdict{}, ErrNoFrames
	}
	if e.maxFrames > 0 && len(frames) > e.maxFrames {
		frames = frames[:e.maxFrames]
	}

	start := time.Now()
	id := e.newSessionID()
	log := e.logger.With(logger.String("session_id", id))
	snap := e.source.Current()
	s := newSession()
	metrics.RecordSession()
	log.Debug(ctx, "session started",
		logger.Int("frames", len(frames)),
		logger.Int("identities", snap.Len()))

	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return model.Verdict{}, fmt.Errorf("session %s: %w", id, err)
		}
		s.processed++
		metrics.RecordFrameProcessed()
		e.step(ctx, log, snap, s, f)

		if s.maxSim >= e.policy.InstantSim {
			metrics.RecordEarlyExit(string(model.ReasonInstantAccept))
			break
		}
		if s.unknown >= e.policy.MaxUnknownFrames {
			metrics.RecordEarlyExit(string(model.ReasonBlockedUnknowns))
			break
		}
	}

	v := e.decide(s)
	v.SessionID = id
	metrics.RecordVerdict(string(v.Reason))
	metrics.RecordSessionLatency(float64(time.Since(start).Milliseconds()))
	log.Info(ctx, "session verdict",
		logger.String("label", v.Label()),
		logger.String("reason", string(v.Reason)),
		logger.Float64("max_similarity", v.MaxSimilarity),
		logger.Int("frames_processed", v.FramesProcessed),
		logger.Int("unknown_frames", v.UnknownFrames))
	return v, nil
}

// step folds a single frame into s.
func (e *Engine) step(ctx context.Context, log logger.Logger, snap *registry.Snapshot, s *session, f model.Frame) {
	face, ok, err := e.detector.DetectLargestFace(ctx, f)
	if err != nil {
		metrics.RecordCollaboratorError("detector")
		log.Warn(ctx, "detector failed", logger.Int("frame", f.Index), logger.Error(err))
		e.unknown(s, causeNoFace)
		return
	}
	if !ok {
		e.unknown(s, causeNoFace)
		return
	}
	if face.Empty() {
		e.unknown(s, causeDegenerate)
		return
	}

	vec, err := e.embedder.Embed(ctx, f, face)
	if err != nil {
		metrics.RecordCollaboratorError("embedder")
		log.Warn(ctx, "embedder failed", logger.Int("frame", f.Index), logger.Error(err))
		e.unknown(s, causeEmbedError)
		return
	}

	m, err := snap.Match(vec)
	if err != nil {
		log.Warn(ctx, "embedding rejected by matcher", logger.Int("frame", f.Index), logger.Error(err))
		e.unknown(s, causeEmbedError)
		return
	}
	metrics.RecordMatchSimilarity(m.Similarity)

	qualifies := m.Found && m.Similarity >= e.policy.PerFrameSim
	if !qualifies {
		metrics.RecordUnknownFrame(causeBelowThreshold)
	}
	s.observe(m.Name, m.Similarity, qualifies)
	log.Debug(ctx, "frame matched",
		logger.Int("frame", f.Index),
		logger.String("name", m.Name),
		logger.Float64("similarity", m.Similarity),
		logger.Bool("qualifies", qualifies))
}

func (e *Engine) unknown(s *session, cause string) {
	metrics.RecordUnknownFrame(cause)
	s.unknownFrame()
}

// decide applies the acceptance rules in priority order: consensus, then
// instant accept, otherwise Unknown.
func (e *Engine) decide(s *session) model.Verdict {
	v := model.Verdict{
		MaxSimilarity:   s.maxSim,
		FramesProcessed: s.processed,
		UnknownFrames:   s.unknown,
		Reason:          model.ReasonBlockedUnknowns,
	}
	if name, ok := s.consensusName(e.policy.ConsensusFrames); ok {
		v.Accepted, v.Name, v.Reason = true, name, model.ReasonConsensus
	} else if s.maxSim >= e.policy.InstantSim && s.maxName != "" {
		v.Accepted, v.Name, v.Reason = true, s.maxName, model.ReasonInstantAccept
	}
	if v.Accepted {
		v.AverageSimilarity = s.average(v.Name)
	}
	return v
}
