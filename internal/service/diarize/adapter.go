// Package diarize defines the speaker segmentation interface and the
// adapters that wrap segmentation engines.
package diarize

import (
	"context"
	"time"

	"target-speaker-monitor/internal/audio"
)

// SpeakerSegment is one diarized span on a window's local timeline.
// Invariant: 0 <= Start < End <= window duration.
type SpeakerSegment struct {
	Start        time.Duration
	End          time.Duration
	SpeakerLabel string
}

// Duration returns the segment's length.
func (s SpeakerSegment) Duration() time.Duration {
	return s.End - s.Start
}

// Segmenter wraps an external diarization engine. Implementations return
// ordered, non-overlapping segments covering (not necessarily
// exhaustively) the window timeline. An error or an empty result means
// the window is treated as silence by the caller; it is never fatal to a
// session.
type Segmenter interface {
	Segment(ctx context.Context, w audio.Window, minSpeakers, maxSpeakers int) ([]SpeakerSegment, error)
}

// FilterShort drops segments shorter than min; sub-threshold spans are
// noise far more often than speech. Segments are also clamped to the
// window bounds so downstream slicing stays in range.
func FilterShort(segs []SpeakerSegment, min time.Duration, window time.Duration) []SpeakerSegment {
	out := segs[:0]
	for _, s := range segs {
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End > window {
			s.End = window
		}
		if s.End-s.Start < min || s.End <= s.Start {
			continue
		}
		out = append(out, s)
	}
	return out
}
