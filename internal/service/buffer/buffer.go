// Package buffer accumulates target-speaker audio across analysis
// windows until enough continuous context exists for a coherent
// transcription.
//
// Transcribing each short window in isolation starves the transcription
// engine of linguistic context and produces fragmentary output. The
// buffer defers transcription until either enough target audio has
// accumulated or a deadline passes since the buffer opened, and then
// flushes one continuous clip.
package buffer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is the lifecycle state of the buffer.
type State int

const (
	// StateEmpty - no target audio buffered.
	StateEmpty State = iota
	// StateAccumulating - at least one target clip buffered, thresholds unmet.
	StateAccumulating
	// StateReady - duration target or deadline reached; flush expected.
	StateReady
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateReady:
		return "READY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Flush reasons reported to the caller.
const (
	ReasonDuration = "duration_target"
	ReasonDeadline = "max_wait"
	ReasonForced   = "forced"
)

// Errors for invalid configuration.
var (
	ErrBadTarget  = errors.New("target duration must be positive")
	ErrBadMaxWait = errors.New("max wait must be positive")
)

// Clip is one flushed stretch of target audio, concatenated in
// chronological order.
type Clip struct {
	Samples    []float32
	SampleRate int
	Start      time.Duration // stream offset of the first buffered sample
	End        time.Duration // stream offset of the last buffered sample
	Similarity float64       // mean similarity of the contributing segments
	Reason     string
}

// Duration returns the amount of buffered audio in the clip. Gaps
// between sub-clips are not counted.
func (c Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

type subClip struct {
	samples    []float32
	start, end time.Duration
	similarity float64
}

// Buffer is the context-accumulation state machine. Thread-safe.
//
// State transitions:
//
//	EMPTY → ACCUMULATING    first target segment appended
//	ACCUMULATING → ACCUMULATING   further appends below the target
//	ACCUMULATING → READY    accumulated duration ≥ target
//	ACCUMULATING → READY    time since open ≥ max wait (via Tick)
//	READY → EMPTY           Flush
//
// Accumulated duration is monotonically non-decreasing between flushes.
type Buffer struct {
	mu sync.Mutex

	targetDuration time.Duration
	maxWait        time.Duration
	now            func() time.Time

	state       State
	clips       []subClip
	sampleRate  int
	accumulated time.Duration
	openedAt    time.Time
	simSum      float64
	readyReason string
}

// New creates an empty buffer. Larger target durations improve
// transcription coherence at the cost of latency; both knobs are
// per-deployment tunables.
func New(targetDuration, maxWait time.Duration) (*Buffer, error) {
	if targetDuration <= 0 {
		return nil, ErrBadTarget
	}
	if maxWait <= 0 {
		return nil, ErrBadMaxWait
	}
	return &Buffer{
		targetDuration: targetDuration,
		maxWait:        maxWait,
		now:            time.Now,
	}, nil
}

// State returns the current state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Accumulated returns the buffered audio duration.
func (b *Buffer) Accumulated() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accumulated
}

// Append adds one target segment's audio. start and end are stream
// offsets. Returns the state after the append.
func (b *Buffer) Append(samples []float32, sampleRate int, start, end time.Duration, similarity float64) State {
	if len(samples) == 0 || sampleRate <= 0 {
		return b.State()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	owned := make([]float32, len(samples))
	copy(owned, samples)

	if b.state == StateEmpty {
		b.state = StateAccumulating
		b.openedAt = b.now()
		b.sampleRate = sampleRate
	}
	b.clips = append(b.clips, subClip{samples: owned, start: start, end: end, similarity: similarity})
	b.accumulated += time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
	b.simSum += similarity

	if b.state == StateAccumulating && b.accumulated >= b.targetDuration {
		b.state = StateReady
		b.readyReason = ReasonDuration
	}
	return b.state
}

// Tick promotes an accumulating buffer to READY once the deadline since
// opening has passed, preventing an indefinite stall when the speaker
// pauses below the duration target. Call it periodically (per window is
// enough). Returns the state after the check.
func (b *Buffer) Tick() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateAccumulating && b.now().Sub(b.openedAt) >= b.maxWait {
		b.state = StateReady
		b.readyReason = ReasonDeadline
	}
	return b.state
}

// Flush returns the concatenated clip and resets to EMPTY. It returns
// false unless the buffer is READY; use ForceFlush at session stop.
func (b *Buffer) Flush() (Clip, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateReady {
		return Clip{}, false
	}
	return b.flushLocked(b.readyReason), true
}

// ForceFlush drains whatever is buffered regardless of state. It returns
// false only when the buffer is empty. A partial buffer at session stop
// is flushed, never discarded.
func (b *Buffer) ForceFlush() (Clip, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clips) == 0 {
		return Clip{}, false
	}
	reason := b.readyReason
	if b.state != StateReady {
		reason = ReasonForced
	}
	return b.flushLocked(reason), true
}

func (b *Buffer) flushLocked(reason string) Clip {
	sort.SliceStable(b.clips, func(i, j int) bool {
		return b.clips[i].start < b.clips[j].start
	})

	total := 0
	for _, c := range b.clips {
		total += len(c.samples)
	}
	samples := make([]float32, 0, total)
	for _, c := range b.clips {
		samples = append(samples, c.samples...)
	}

	clip := Clip{
		Samples:    samples,
		SampleRate: b.sampleRate,
		Start:      b.clips[0].start,
		End:        b.clips[len(b.clips)-1].end,
		Similarity: b.simSum / float64(len(b.clips)),
		Reason:     reason,
	}

	b.state = StateEmpty
	b.clips = nil
	b.sampleRate = 0
	b.accumulated = 0
	b.simSum = 0
	b.openedAt = time.Time{}
	b.readyReason = ""
	return clip
}
