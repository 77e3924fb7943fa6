package identify

import (
	"context"
	"math"
)

// EnergyEmbedder is a deterministic local embedder for development and
// tests, in the same spirit as the mock STT provider: it summarizes the
// audio as per-slice energy statistics instead of running a voice model.
// Two clips of the same recording produce similar vectors; it has no
// speaker-discriminative power on real audio.
type EnergyEmbedder struct {
	Dim int
}

// NewEnergyEmbedder returns an embedder producing dim-length vectors.
func NewEnergyEmbedder(dim int) *EnergyEmbedder {
	if dim <= 0 {
		dim = 512
	}
	return &EnergyEmbedder{Dim: dim}
}

// Embed splits the clip into Dim equal slices and returns the RMS of
// each, L2-normalized downstream by the matcher.
func (e *EnergyEmbedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, e.Dim)
	if len(samples) == 0 {
		return out, nil
	}
	per := len(samples) / e.Dim
	if per == 0 {
		per = 1
	}
	for i := 0; i < e.Dim; i++ {
		lo := i * per
		if lo >= len(samples) {
			break
		}
		hi := lo + per
		if hi > len(samples) {
			hi = len(samples)
		}
		var sum float64
		for _, s := range samples[lo:hi] {
			sum += float64(s) * float64(s)
		}
		out[i] = math.Sqrt(sum / float64(hi-lo))
	}
	return out, nil
}
