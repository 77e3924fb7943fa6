// Package mock provides a mock STT adapter for running the pipeline
// without cloud credentials. It simulates realistic speech-to-text
// behavior with progressive partial transcripts and exactly one final
// transcript per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"target-speaker-monitor/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive
// transcripts.
type SimulatedUtterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"let's move", "let's move on to", "let's move on to the next"},
		Final:      "let's move on to the next item on the agenda",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"I think", "I think we should"},
		Final:      "I think we should revisit the timeline",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"the numbers", "the numbers from last", "the numbers from last quarter"},
		Final:      "the numbers from last quarter look promising",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"can everyone", "can everyone see my"},
		Final:      "can everyone see my screen",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"thanks"},
		Final:      "thanks everyone, same time next week",
		Confidence: 0.98,
	},
}

// utteranceCounter cycles adapters through the default utterances.
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

func nextUtterance() SimulatedUtterance {
	counterMu.Lock()
	defer counterMu.Unlock()
	u := DefaultUtterances[utteranceCounter%len(DefaultUtterances)]
	utteranceCounter++
	return u
}

// Adapter implements stt.Adapter and stt.Transcriber with mock
// responses. In streaming mode it emits one partial per audio push until
// the script is exhausted, then exactly one final.
type Adapter struct {
	mu           sync.Mutex
	cb           stt.Callback
	utterance    SimulatedUtterance
	partialIndex int
	finalSent    bool
	closed       bool

	// Delay before each async callback. Tests shrink it.
	Latency time.Duration
}

// New creates a mock adapter with the next scripted utterance.
func New() *Adapter {
	return &Adapter{
		utterance: nextUtterance(),
		Latency:   50 * time.Millisecond,
	}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio simulates receiving audio. Each push advances the partial
// script; once it is exhausted the final is emitted, mimicking silence
// detection at the end of the utterance.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	if a.partialIndex < len(a.utterance.Partials) {
		partial := a.utterance.Partials[a.partialIndex]
		a.partialIndex++
		go func() {
			time.Sleep(a.Latency)
			a.mu.Lock()
			cb, closed := a.cb, a.closed
			a.mu.Unlock()
			if !closed && cb != nil {
				cb.OnPartial(partial)
			}
		}()
		return nil
	}

	if !a.finalSent {
		a.finalSent = true
		utt := a.utterance
		go func() {
			time.Sleep(a.Latency)
			a.mu.Lock()
			cb, closed := a.cb, a.closed
			a.mu.Unlock()
			if !closed && cb != nil {
				cb.OnFinal(utt.Final, utt.Confidence)
			}
		}()
	}
	return nil
}

// Close ends the mock session. If the stream ended before the utterance
// ran its course, the final is emitted anyway so no audio is silently
// dropped.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if !a.finalSent && a.cb != nil {
		a.finalSent = true
		cb, utt := a.cb, a.utterance
		go func() {
			time.Sleep(a.Latency)
			cb.OnFinal(utt.Final, utt.Confidence)
		}()
	}
	return nil
}

// Transcriber implements one-shot stt.Transcribe with scripted text.
// Each call returns the final text of the next utterance in the cycle.
type Transcriber struct{}

// NewTranscriber creates a one-shot mock.
func NewTranscriber() *Transcriber {
	return &Transcriber{}
}

// Transcribe returns the next scripted final.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	u := nextUtterance()
	return stt.Result{Text: u.Final, Confidence: u.Confidence}, nil
}
