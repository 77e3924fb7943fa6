// Package audio provides capture frames, analysis windows and the
// assembler that turns a continuous frame stream into overlapping windows.
package audio

import (
	"math"
	"time"
)

// Frame is one fixed-size chunk of captured audio. Frames are immutable
// once produced by a Stream and are discarded after being folded into a
// window.
type Frame struct {
	Samples    []float32 // mono samples in [-1, 1]
	SampleRate int
	Channels   int
	Timestamp  time.Time // capture time
}

// Duration returns the frame's length in time.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return samplesToDuration(len(f.Samples), f.SampleRate)
}

// Window is a fixed-duration slice of the capture timeline. Start is the
// offset of the first sample from the beginning of the stream, so
// consecutive windows overlap on the timeline exactly as they overlap in
// samples.
type Window struct {
	Samples    []float32
	SampleRate int
	Start      time.Duration
}

// Duration returns the window's length in time.
func (w Window) Duration() time.Duration {
	if w.SampleRate == 0 {
		return 0
	}
	return samplesToDuration(len(w.Samples), w.SampleRate)
}

// End returns the window's end offset on the stream timeline.
func (w Window) End() time.Duration {
	return w.Start + w.Duration()
}

// Slice returns the samples covering [from, to) on the window's local
// timeline, clamped to the window bounds. The returned slice aliases the
// window's backing array.
func (w Window) Slice(from, to time.Duration) []float32 {
	if w.SampleRate == 0 || to <= from {
		return nil
	}
	lo := durationToSamples(from, w.SampleRate)
	hi := durationToSamples(to, w.SampleRate)
	if lo < 0 {
		lo = 0
	}
	if hi > len(w.Samples) {
		hi = len(w.Samples)
	}
	if lo >= hi {
		return nil
	}
	return w.Samples[lo:hi]
}

// RMS returns the root-mean-square level of the samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ToPCM16 converts float samples to little-endian 16-bit PCM bytes,
// the wire format the transcription engines expect.
func ToPCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

func samplesToDuration(n, rate int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(rate)
}

func durationToSamples(d time.Duration, rate int) int {
	return int(d * time.Duration(rate) / time.Second)
}
