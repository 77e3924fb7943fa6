package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"target-speaker-monitor/internal/models"
)

func validFinal() models.TranscriptFinal {
	return models.TranscriptFinal{
		EventType:  models.EventTypeFinal,
		SessionID:  "sess-1",
		ProfileID:  "prof-1",
		ResultID:   "res-1",
		Text:       "hello there",
		Confidence: 0.9,
		IsTarget:   true,
		Similarity: 0.81,
		Timestamp:  time.Now().UnixMilli(),
	}
}

func validPartial() models.TranscriptPartial {
	return models.TranscriptPartial{
		EventType: models.EventTypePartial,
		SessionID: "sess-1",
		ProfileID: "prof-1",
		Text:      "hello",
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"nil brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil || p.writerFinal != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:      false,
		TopicPartial: "test.partial",
		TopicFinal:   "test.final",
	})

	if p.topicPartial != "test.partial" {
		t.Errorf("expected topic partial 'test.partial', got %s", p.topicPartial)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected topic final 'test.final', got %s", p.topicFinal)
	}
}

func TestPublisher_PublishDisabledIsNoop(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.PublishPartial(context.Background(), validPartial()); err != nil {
		t.Errorf("PublishPartial when disabled: %v", err)
	}
	if err := p.PublishFinal(context.Background(), validFinal()); err != nil {
		t.Errorf("PublishFinal when disabled: %v", err)
	}
}

func TestPublisher_PartialValidation(t *testing.T) {
	p := New(&Config{Enabled: false})

	e := validPartial()
	e.SessionID = ""
	if err := p.PublishPartial(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("missing sessionId: got %v, want ErrInvalidEvent", err)
	}

	e = validPartial()
	e.EventType = "bogus"
	if err := p.PublishPartial(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("wrong eventType: got %v, want ErrInvalidEvent", err)
	}

	e = validPartial()
	e.Text = ""
	if err := p.PublishPartial(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("missing text: got %v, want ErrInvalidEvent", err)
	}
}

func TestPublisher_FinalValidation(t *testing.T) {
	p := New(&Config{Enabled: false})

	e := validFinal()
	e.SessionID = ""
	if err := p.PublishFinal(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("missing sessionId: got %v, want ErrInvalidEvent", err)
	}

	e = validFinal()
	e.ResultID = ""
	if err := p.PublishFinal(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("missing resultId: got %v, want ErrInvalidEvent", err)
	}

	// An empty final text is legal: failed transcriptions still produce
	// a record.
	e = validFinal()
	e.Text = ""
	if err := p.PublishFinal(context.Background(), e); err != nil {
		t.Errorf("empty final text should be publishable, got %v", err)
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}

	p = &Publisher{}
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing zero-value publisher, got %v", err)
	}
}
