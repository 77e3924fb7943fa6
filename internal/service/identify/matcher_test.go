package identify

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"target-speaker-monitor/internal/audio"
	"target-speaker-monitor/internal/profile"
	"target-speaker-monitor/internal/service/diarize"
)

// scriptedEmbedder returns embeddings from a queue, or an error.
type scriptedEmbedder struct {
	queue [][]float64
	errs  []error
	calls int
}

func (s *scriptedEmbedder) Embed(ctx context.Context, samples []float32, rate int) ([]float64, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.queue) {
		return s.queue[i], nil
	}
	return nil, errors.New("embedder queue exhausted")
}

func testProfile(emb []float64) *profile.SpeakerProfile {
	return &profile.SpeakerProfile{ID: "p1", Name: "Target", Embedding: emb}
}

func TestCosine_SelfSimilarityIsOne(t *testing.T) {
	v := []float64{0.3, -0.1, 0.8, 0.2}
	if got := Cosine(v, v); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Cosine(v, v) = %v, want 1.0", got)
	}
}

func TestCosine_Degenerate(t *testing.T) {
	if got := Cosine([]float64{1, 2}, []float64{1, 2, 3}); got != 0 {
		t.Errorf("length mismatch similarity = %v, want 0", got)
	}
	if got := Cosine([]float64{0, 0}, []float64{1, 0}); got != 0 {
		t.Errorf("zero vector similarity = %v, want 0", got)
	}
	if got := Cosine(nil, nil); got != 0 {
		t.Errorf("empty vectors similarity = %v, want 0", got)
	}
	// Opposed vectors clamp to 0 rather than going negative.
	if got := Cosine([]float64{1, 0}, []float64{-1, 0}); got != 0 {
		t.Errorf("opposed vectors similarity = %v, want 0", got)
	}
}

func TestNewMatcher_DimensionMismatchIsFatal(t *testing.T) {
	_, err := NewMatcher(&scriptedEmbedder{}, testProfile([]float64{1, 2, 3}), 0.75, 512, zerolog.Nop())
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNewMatcher_DegenerateProfileIsFatal(t *testing.T) {
	_, err := NewMatcher(&scriptedEmbedder{}, testProfile([]float64{0, 0, 0}), 0.75, 3, zerolog.Nop())
	if !errors.Is(err, ErrDegenerateProfile) {
		t.Errorf("expected ErrDegenerateProfile for zero embedding, got %v", err)
	}

	_, err = NewMatcher(&scriptedEmbedder{}, testProfile([]float64{1, math.NaN(), 0}), 0.75, 3, zerolog.Nop())
	if !errors.Is(err, ErrDegenerateProfile) {
		t.Errorf("expected ErrDegenerateProfile for NaN embedding, got %v", err)
	}
}

func TestNewMatcher_BadThreshold(t *testing.T) {
	for _, th := range []float64{0, -0.5, 1.5} {
		if _, err := NewMatcher(&scriptedEmbedder{}, testProfile([]float64{1, 0}), th, 2, zerolog.Nop()); !errors.Is(err, ErrBadThreshold) {
			t.Errorf("threshold %v: expected ErrBadThreshold, got %v", th, err)
		}
	}
}

// embeddingWithSimilarity constructs a vector whose cosine similarity to
// the unit target (1,0,...,0) is exactly sim.
func embeddingWithSimilarity(sim float64, dim int) []float64 {
	v := make([]float64, dim)
	v[0] = sim
	v[1] = math.Sqrt(1 - sim*sim)
	return v
}

func TestMatcher_ThresholdDecision(t *testing.T) {
	target := make([]float64, 8)
	target[0] = 1

	emb := &scriptedEmbedder{queue: [][]float64{
		embeddingWithSimilarity(0.82, 8),
		embeddingWithSimilarity(0.60, 8),
	}}
	m, err := NewMatcher(emb, testProfile(target), 0.75, 8, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	w := audio.Window{Samples: make([]float32, 16000), SampleRate: 16000}
	segs := []diarize.SpeakerSegment{
		{Start: 0, End: 400 * time.Millisecond, SpeakerLabel: "SPEAKER_00"},
		{Start: 500 * time.Millisecond, End: 900 * time.Millisecond, SpeakerLabel: "SPEAKER_01"},
	}

	got := m.Identify(context.Background(), w, segs)
	if len(got) != 2 {
		t.Fatalf("got %d identified segments, want 2", len(got))
	}
	if !got[0].IsTarget {
		t.Errorf("similarity 0.82 with threshold 0.75: IsTarget = false, want true")
	}
	if math.Abs(got[0].Similarity-0.82) > 1e-6 {
		t.Errorf("similarity = %v, want 0.82", got[0].Similarity)
	}
	if got[1].IsTarget {
		t.Errorf("similarity 0.60 with threshold 0.75: IsTarget = true, want false")
	}
	if math.Abs(got[1].Similarity-0.60) > 1e-6 {
		t.Errorf("similarity = %v, want 0.60", got[1].Similarity)
	}
}

func TestMatcher_EmbedderFailureScoresZero(t *testing.T) {
	target := []float64{1, 0}
	emb := &scriptedEmbedder{errs: []error{errors.New("model crashed")}}
	m, err := NewMatcher(emb, testProfile(target), 0.75, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	w := audio.Window{Samples: make([]float32, 1000), SampleRate: 1000}
	got := m.Identify(context.Background(), w, []diarize.SpeakerSegment{
		{Start: 0, End: 500 * time.Millisecond},
	})
	if len(got) != 1 {
		t.Fatalf("got %d segments, want 1", len(got))
	}
	if got[0].Similarity != 0 || got[0].IsTarget {
		t.Errorf("failed embedding: similarity=%v isTarget=%v, want 0/false", got[0].Similarity, got[0].IsTarget)
	}
}

func TestMatcher_DegenerateSegmentEmbeddingScoresZero(t *testing.T) {
	target := []float64{1, 0, 0}
	cases := [][]float64{
		{0, 0, 0},          // all-zero
		{math.NaN(), 1, 0}, // NaN component
		{1, 0},             // wrong shape at runtime
	}
	for _, c := range cases {
		emb := &scriptedEmbedder{queue: [][]float64{c}}
		m, err := NewMatcher(emb, testProfile(target), 0.75, 3, zerolog.Nop())
		if err != nil {
			t.Fatalf("NewMatcher: %v", err)
		}
		w := audio.Window{Samples: make([]float32, 1000), SampleRate: 1000}
		got := m.Identify(context.Background(), w, []diarize.SpeakerSegment{{Start: 0, End: time.Second}})
		if got[0].Similarity != 0 || got[0].IsTarget {
			t.Errorf("degenerate embedding %v: similarity=%v isTarget=%v, want 0/false", c, got[0].Similarity, got[0].IsTarget)
		}
	}
}

func TestEnergyEmbedder_DeterministicAndSized(t *testing.T) {
	e := NewEnergyEmbedder(16)
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(i%7) / 7
	}

	a, err := e.Embed(context.Background(), samples, 16000)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(context.Background(), samples, 16000)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(a) != 16 {
		t.Fatalf("embedding length = %d, want 16", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedder not deterministic at index %d: %v vs %v", i, a[i], b[i])
		}
	}
	if got := Cosine(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("self similarity = %v, want 1.0", got)
	}
}
