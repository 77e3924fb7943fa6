package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// wavStream reads frames from a WAV file. Stereo files are downmixed to
// mono. With pacing enabled, Read sleeps so frames arrive at the rate a
// live device would deliver them.
type wavStream struct {
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	buf      [][2]float64

	frameSamples int
	paced        bool
	started      time.Time
	delivered    int64
	closed       bool
}

// OpenWAV opens a WAV file as a capture stream.
func OpenWAV(path string, frameDuration time.Duration, paced bool) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	frameSamples := int(time.Duration(format.SampleRate) * frameDuration / time.Second)
	if frameSamples <= 0 {
		frameSamples = 1
	}
	return &wavStream{
		streamer:     streamer,
		format:       format,
		buf:          make([][2]float64, frameSamples),
		frameSamples: frameSamples,
		paced:        paced,
	}, nil
}

func (s *wavStream) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, io.EOF
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}

	n, ok := s.streamer.Stream(s.buf)
	if n == 0 && !ok {
		if err := s.streamer.Err(); err != nil {
			return Frame{}, err
		}
		return Frame{}, io.EOF
	}

	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = float32((s.buf[i][0] + s.buf[i][1]) / 2)
	}
	s.delivered += int64(n)

	if s.paced {
		due := s.started.Add(samplesToDuration(int(s.delivered), int(s.format.SampleRate)))
		if wait := time.Until(due); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Frame{}, ctx.Err()
			}
		}
	}

	return Frame{
		Samples:    samples,
		SampleRate: int(s.format.SampleRate),
		Channels:   1,
		Timestamp:  time.Now(),
	}, nil
}

func (s *wavStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.streamer.Close()
}
