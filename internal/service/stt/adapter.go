// Package stt defines the interfaces for speech-to-text engines.
package stt

import "context"

// Result is the text produced for one clip or utterance.
type Result struct {
	Text       string
	Confidence float64
}

// Transcriber is the one-shot mode: submit a complete clip, wait for the
// text. Implementations honor ctx deadlines.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error)
}

// Callback receives results from a streaming session. Callbacks may be
// invoked from the provider's own goroutine; receivers must be safe for
// that.
type Callback interface {
	// OnPartial is called for interim hypotheses.
	OnPartial(text string)

	// OnFinal is called once per finalized utterance.
	OnFinal(text string, confidence float64)

	// OnError is called when the streaming session fails.
	OnError(err error)
}

// Adapter is the streaming mode: open a session, push audio
// incrementally, receive results through the callback.
type Adapter interface {
	// Start begins a streaming session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio pushes little-endian 16-bit PCM bytes.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}
