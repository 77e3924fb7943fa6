// Package identify matches diarized segments against an enrolled
// speaker voiceprint.
package identify

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"target-speaker-monitor/internal/audio"
	"target-speaker-monitor/internal/profile"
	"target-speaker-monitor/internal/service/diarize"
)

// Embedder extracts a fixed-length voice embedding from raw samples.
type Embedder interface {
	Embed(ctx context.Context, samples []float32, sampleRate int) ([]float64, error)
}

// IdentifiedSegment is a diarized segment with an identity decision
// attached. Never mutated after creation.
type IdentifiedSegment struct {
	diarize.SpeakerSegment
	Similarity float64
	IsTarget   bool
}

// Errors raised at matcher construction. These are data-integrity
// failures and are fatal to session start, not deferred to runtime.
var (
	ErrDimensionMismatch = errors.New("embedding dimensionality mismatch")
	ErrDegenerateProfile = errors.New("profile embedding is degenerate")
	ErrBadThreshold      = errors.New("threshold must be in (0, 1]")
)

// Matcher scores segments against one target profile. The decision
// boundary is sensitive to recording-condition mismatch between
// enrollment and live audio; the threshold is a per-session parameter
// for that reason.
type Matcher struct {
	embedder  Embedder
	target    []float64 // L2-normalized
	threshold float64
	dim       int
	logger    zerolog.Logger
}

// NewMatcher validates the profile against the configured embedding
// dimensionality and returns a matcher. Dimensionality or degeneracy
// problems fail here, before any audio is processed.
func NewMatcher(embedder Embedder, p *profile.SpeakerProfile, threshold float64, dim int, logger zerolog.Logger) (*Matcher, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrBadThreshold, threshold)
	}
	if dim > 0 && len(p.Embedding) != dim {
		return nil, fmt.Errorf("%w: profile %s has %d dims, expected %d",
			ErrDimensionMismatch, p.ID, len(p.Embedding), dim)
	}
	target := normalize(p.Embedding)
	if target == nil {
		return nil, fmt.Errorf("%w: profile %s", ErrDegenerateProfile, p.ID)
	}
	return &Matcher{
		embedder:  embedder,
		target:    target,
		threshold: threshold,
		dim:       len(target),
		logger:    logger.With().Str("component", "identify").Logger(),
	}, nil
}

// Threshold returns the decision boundary in use.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Identify scores every segment of a window. A segment whose embedding
// cannot be extracted, or is degenerate, scores 0 and is not target;
// one bad segment never aborts the window.
func (m *Matcher) Identify(ctx context.Context, w audio.Window, segs []diarize.SpeakerSegment) []IdentifiedSegment {
	out := make([]IdentifiedSegment, 0, len(segs))
	for _, seg := range segs {
		sim := 0.0
		samples := w.Slice(seg.Start, seg.End)
		if len(samples) > 0 {
			emb, err := m.embedder.Embed(ctx, samples, w.SampleRate)
			if err != nil {
				m.logger.Warn().Err(err).
					Dur("segStart", seg.Start).
					Dur("segEnd", seg.End).
					Msg("embedding extraction failed, scoring segment as non-target")
			} else {
				sim = m.Similarity(emb)
			}
		}
		out = append(out, IdentifiedSegment{
			SpeakerSegment: seg,
			Similarity:     sim,
			IsTarget:       sim >= m.threshold,
		})
	}
	return out
}

// Similarity scores one embedding against the target, clamped to [0, 1].
// Degenerate inputs (wrong shape, zero norm, NaN) score 0 rather than
// propagating.
func (m *Matcher) Similarity(embedding []float64) float64 {
	if len(embedding) != m.dim {
		m.logger.Error().
			Int("got", len(embedding)).
			Int("want", m.dim).
			Msg("segment embedding shape mismatch")
		return 0
	}
	e := normalize(embedding)
	if e == nil {
		return 0
	}
	return Cosine(e, m.target)
}

// Cosine returns the cosine similarity of two equal-length vectors,
// clamped to [0, 1]. Mismatched lengths or non-finite results yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := floats.Dot(a, b) / (na * nb)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// normalize returns an L2-normalized copy, or nil when the vector is
// degenerate (zero norm or non-finite components).
func normalize(v []float64) []float64 {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	}
	n := floats.Norm(v, 2)
	if n == 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}
