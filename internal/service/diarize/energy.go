package diarize

import (
	"context"
	"time"

	"target-speaker-monitor/internal/audio"
)

// EnergySegmenter is a heuristic fallback engine for development and
// tests: contiguous voiced spans become segments, and the speaker label
// alternates when the silence gap between spans exceeds GapThreshold.
// It is not a substitute for a real diarization model.
type EnergySegmenter struct {
	FrameDuration time.Duration // analysis granularity
	RMSFloor      float64       // frames below this level count as silence
	GapThreshold  time.Duration // gaps longer than this switch the speaker label
}

// NewEnergySegmenter returns a segmenter with workable defaults.
func NewEnergySegmenter() *EnergySegmenter {
	return &EnergySegmenter{
		FrameDuration: 20 * time.Millisecond,
		RMSFloor:      0.01,
		GapThreshold:  1500 * time.Millisecond,
	}
}

// Segment scans the window at FrameDuration granularity and emits voiced
// runs. minSpeakers and maxSpeakers are accepted for interface parity;
// the heuristic never produces more than two labels.
func (e *EnergySegmenter) Segment(ctx context.Context, w audio.Window, minSpeakers, maxSpeakers int) ([]SpeakerSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step := int(time.Duration(w.SampleRate) * e.FrameDuration / time.Second)
	if step <= 0 || len(w.Samples) == 0 {
		return nil, nil
	}

	labels := []string{"SPEAKER_00", "SPEAKER_01"}
	speaker := 0

	var segs []SpeakerSegment
	var voicedFrom = -1 // sample index where the current voiced run began
	lastVoicedEnd := -1

	flush := func(endSample int) {
		if voicedFrom < 0 {
			return
		}
		segs = append(segs, SpeakerSegment{
			Start:        sampleOffset(voicedFrom, w.SampleRate),
			End:          sampleOffset(endSample, w.SampleRate),
			SpeakerLabel: labels[speaker],
		})
		lastVoicedEnd = endSample
		voicedFrom = -1
	}

	for i := 0; i < len(w.Samples); i += step {
		end := i + step
		if end > len(w.Samples) {
			end = len(w.Samples)
		}
		voiced := audio.RMS(w.Samples[i:end]) >= e.RMSFloor
		if voiced && voicedFrom < 0 {
			// A long gap before this run suggests a turn change.
			if lastVoicedEnd >= 0 && sampleOffset(i-lastVoicedEnd, w.SampleRate) > e.GapThreshold && maxSpeakers != 1 {
				speaker = 1 - speaker
			}
			voicedFrom = i
		} else if !voiced {
			flush(i)
		}
	}
	flush(len(w.Samples))

	return segs, nil
}

func sampleOffset(n, rate int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(rate)
}
