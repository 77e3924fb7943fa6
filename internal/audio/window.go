package audio

import (
	"errors"
	"time"
)

// ErrBadWindowing is returned when the window/overlap combination is invalid.
var ErrBadWindowing = errors.New("overlap must be shorter than window duration")

// Assembler folds a continuous frame stream into overlapping windows of a
// fixed duration. Windows advance by (window - overlap); the overlapped
// region is the same samples, not re-captured, so the emitted windows
// reconstruct the original signal exactly.
type Assembler struct {
	sampleRate    int
	windowSamples int
	stepSamples   int

	buf      []float32
	advanced int64 // samples already retired from the front of buf
	emitted  int
}

// NewAssembler creates an assembler emitting windows of the given
// duration with the given overlap. Overlap must be shorter than the
// window.
func NewAssembler(sampleRate int, window, overlap time.Duration) (*Assembler, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if overlap < 0 || overlap >= window {
		return nil, ErrBadWindowing
	}
	ws := durationToSamples(window, sampleRate)
	os := durationToSamples(overlap, sampleRate)
	return &Assembler{
		sampleRate:    sampleRate,
		windowSamples: ws,
		stepSamples:   ws - os,
	}, nil
}

// Push adds a frame and returns any windows completed by it. A large
// frame can complete more than one window.
func (a *Assembler) Push(f Frame) []Window {
	a.buf = append(a.buf, f.Samples...)

	var out []Window
	for len(a.buf) >= a.windowSamples {
		samples := make([]float32, a.windowSamples)
		copy(samples, a.buf[:a.windowSamples])
		out = append(out, Window{
			Samples:    samples,
			SampleRate: a.sampleRate,
			Start:      samplesToDuration(int(a.advanced), a.sampleRate),
		})
		a.emitted++

		// Retire one step; the tail stays buffered as the next
		// window's overlap region.
		a.buf = a.buf[a.stepSamples:]
		a.advanced += int64(a.stepSamples)
	}
	return out
}

// Flush emits the residual samples as a truncated final window so that
// trailing speech is not lost at session stop. It returns false when
// everything buffered has already been covered by an emitted window.
func (a *Assembler) Flush() (Window, bool) {
	overlap := a.windowSamples - a.stepSamples
	if len(a.buf) == 0 || (a.emitted > 0 && len(a.buf) <= overlap) {
		return Window{}, false
	}
	samples := make([]float32, len(a.buf))
	copy(samples, a.buf)
	w := Window{
		Samples:    samples,
		SampleRate: a.sampleRate,
		Start:      samplesToDuration(int(a.advanced), a.sampleRate),
	}
	a.advanced += int64(len(a.buf))
	a.buf = nil
	return w, true
}
