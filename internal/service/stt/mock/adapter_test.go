package mock

import (
	"context"
	"sync"
	"testing"
	"time"
)

// testCallback records callback invocations.
type testCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []finalResult
	errors   []error
}

type finalResult struct {
	text       string
	confidence float64
}

func (c *testCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *testCallback) OnFinal(text string, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, finalResult{text, confidence})
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) getPartials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.partials...)
}

func (c *testCallback) getFinals() []finalResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]finalResult{}, c.finals...)
}

func newFastAdapter() *Adapter {
	a := New()
	a.Latency = time.Millisecond
	return a
}

func TestAdapter_SendAudioTriggersPartials(t *testing.T) {
	adapter := newFastAdapter()
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	for i := 0; i < len(adapter.utterance.Partials); i++ {
		if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if got := cb.getPartials(); len(got) != len(adapter.utterance.Partials) {
		t.Errorf("got %d partials, want %d", len(got), len(adapter.utterance.Partials))
	}
}

func TestAdapter_ExactlyOneFinal(t *testing.T) {
	adapter := newFastAdapter()
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	// Push well past the partial script.
	for i := 0; i < len(adapter.utterance.Partials)+5; i++ {
		adapter.SendAudio(context.Background(), []byte("audio"))
	}

	time.Sleep(100 * time.Millisecond)

	finals := cb.getFinals()
	if len(finals) != 1 {
		t.Fatalf("got %d finals, want 1", len(finals))
	}
	if finals[0].text != adapter.utterance.Final {
		t.Errorf("final text = %q, want %q", finals[0].text, adapter.utterance.Final)
	}
	if finals[0].confidence != adapter.utterance.Confidence {
		t.Errorf("final confidence = %v, want %v", finals[0].confidence, adapter.utterance.Confidence)
	}
}

func TestAdapter_CloseSendsFinalIfNotSent(t *testing.T) {
	adapter := newFastAdapter()
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	// Close before the utterance runs its course.
	adapter.Close()

	time.Sleep(100 * time.Millisecond)

	if finals := cb.getFinals(); len(finals) != 1 {
		t.Errorf("got %d finals after early close, want 1", len(finals))
	}
}

func TestAdapter_CloseIdempotent(t *testing.T) {
	adapter := newFastAdapter()
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	adapter.Close()
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if finals := cb.getFinals(); len(finals) != 1 {
		t.Errorf("got %d finals after double close, want 1", len(finals))
	}
}

func TestAdapter_SendAudioAfterClose(t *testing.T) {
	adapter := newFastAdapter()
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)
	adapter.Close()

	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdapter_NoCallbackSet(t *testing.T) {
	adapter := newFastAdapter()

	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTranscriber_ReturnsScriptedText(t *testing.T) {
	tr := NewTranscriber()
	res, err := tr.Transcribe(context.Background(), make([]float32, 16000), 16000, "en-US")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text == "" {
		t.Error("expected non-empty text")
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("confidence = %v, want (0, 1]", res.Confidence)
	}
}

func TestTranscriber_HonorsContext(t *testing.T) {
	tr := NewTranscriber()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Transcribe(ctx, make([]float32, 100), 16000, "en-US"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestDefaultUtterances(t *testing.T) {
	if len(DefaultUtterances) == 0 {
		t.Fatal("no default utterances")
	}
	for i, utt := range DefaultUtterances {
		if len(utt.Partials) == 0 {
			t.Errorf("utterance %d has no partials", i)
		}
		if utt.Final == "" {
			t.Errorf("utterance %d has empty final", i)
		}
		if utt.Confidence <= 0 || utt.Confidence > 1 {
			t.Errorf("utterance %d has invalid confidence %f", i, utt.Confidence)
		}
	}
}
