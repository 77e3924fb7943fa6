package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "METRICS_PORT",
		"AUDIO_SAMPLE_RATE_HZ", "AUDIO_CHANNELS",
		"PIPELINE_WINDOW_DURATION", "PIPELINE_OVERLAP_DURATION",
		"PIPELINE_BUFFER_TARGET", "PIPELINE_BUFFER_MAX_WAIT",
		"IDENTIFY_SIMILARITY_THRESHOLD", "IDENTIFY_EMBEDDING_DIM",
		"STT_PROVIDER", "STT_MODE", "STT_LANGUAGE_CODE",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "LOG_LEVEL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Principal != "svc-speaker-monitor" {
		t.Errorf("expected default principal 'svc-speaker-monitor', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}

	if cfg.Audio.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("expected default channels 1, got %d", cfg.Audio.Channels)
	}

	if cfg.Pipeline.WindowDuration != 5*time.Second {
		t.Errorf("expected default window 5s, got %v", cfg.Pipeline.WindowDuration)
	}
	if cfg.Pipeline.OverlapDuration != 2*time.Second {
		t.Errorf("expected default overlap 2s, got %v", cfg.Pipeline.OverlapDuration)
	}
	if cfg.Pipeline.BufferTarget != 15*time.Second {
		t.Errorf("expected default buffer target 15s, got %v", cfg.Pipeline.BufferTarget)
	}
	if cfg.Pipeline.BufferMaxWait != 20*time.Second {
		t.Errorf("expected default buffer max wait 20s, got %v", cfg.Pipeline.BufferMaxWait)
	}
	if cfg.Pipeline.TranscribeNonTarget {
		t.Error("expected non-target transcription disabled by default")
	}

	if cfg.Identify.Threshold != 0.75 {
		t.Errorf("expected default threshold 0.75, got %v", cfg.Identify.Threshold)
	}
	if cfg.Identify.EmbeddingDim != 512 {
		t.Errorf("expected default embedding dim 512, got %d", cfg.Identify.EmbeddingDim)
	}

	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.Mode != "oneshot" {
		t.Errorf("expected default STT mode 'oneshot', got %s", cfg.STT.Mode)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.STT.LanguageCode)
	}

	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	set := map[string]string{
		"SERVICE_PRINCIPAL":             "custom-principal",
		"HTTP_PORT":                     "9999",
		"AUDIO_SAMPLE_RATE_HZ":          "8000",
		"PIPELINE_WINDOW_DURATION":      "3s",
		"PIPELINE_OVERLAP_DURATION":     "1s",
		"PIPELINE_BUFFER_TARGET":        "10s",
		"PIPELINE_BUFFER_MAX_WAIT":      "12s",
		"PIPELINE_TRANSCRIBE_NON_TARGET": "true",
		"IDENTIFY_SIMILARITY_THRESHOLD": "0.6",
		"IDENTIFY_EMBEDDING_DIM":        "256",
		"STT_PROVIDER":                  "google",
		"STT_MODE":                      "streaming",
		"STT_LANGUAGE_CODE":             "he-IL",
		"KAFKA_ENABLED":                 "true",
		"KAFKA_BROKERS":                 "broker-1:9092, broker-2:9092",
	}
	for k, v := range set {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range set {
			os.Unsetenv(k)
		}
	}()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Audio.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Pipeline.WindowDuration != 3*time.Second {
		t.Errorf("expected window 3s, got %v", cfg.Pipeline.WindowDuration)
	}
	if cfg.Pipeline.OverlapDuration != time.Second {
		t.Errorf("expected overlap 1s, got %v", cfg.Pipeline.OverlapDuration)
	}
	if cfg.Pipeline.BufferTarget != 10*time.Second {
		t.Errorf("expected buffer target 10s, got %v", cfg.Pipeline.BufferTarget)
	}
	if cfg.Pipeline.BufferMaxWait != 12*time.Second {
		t.Errorf("expected buffer max wait 12s, got %v", cfg.Pipeline.BufferMaxWait)
	}
	if !cfg.Pipeline.TranscribeNonTarget {
		t.Error("expected non-target transcription enabled")
	}
	if cfg.Identify.Threshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %v", cfg.Identify.Threshold)
	}
	if cfg.Identify.EmbeddingDim != 256 {
		t.Errorf("expected embedding dim 256, got %d", cfg.Identify.EmbeddingDim)
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.Mode != "streaming" {
		t.Errorf("expected STT mode 'streaming', got %s", cfg.STT.Mode)
	}
	if cfg.STT.LanguageCode != "he-IL" {
		t.Errorf("expected language 'he-IL', got %s", cfg.STT.LanguageCode)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	os.Setenv("AUDIO_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("PIPELINE_WINDOW_DURATION", "soon")
	os.Setenv("IDENTIFY_SIMILARITY_THRESHOLD", "very")
	os.Setenv("KAFKA_ENABLED", "maybe")
	defer func() {
		os.Unsetenv("AUDIO_SAMPLE_RATE_HZ")
		os.Unsetenv("PIPELINE_WINDOW_DURATION")
		os.Unsetenv("IDENTIFY_SIMILARITY_THRESHOLD")
		os.Unsetenv("KAFKA_ENABLED")
	}()

	cfg := Load()

	if cfg.Audio.SampleRateHz != 16000 {
		t.Errorf("expected fallback sample rate 16000, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Pipeline.WindowDuration != 5*time.Second {
		t.Errorf("expected fallback window 5s, got %v", cfg.Pipeline.WindowDuration)
	}
	if cfg.Identify.Threshold != 0.75 {
		t.Errorf("expected fallback threshold 0.75, got %v", cfg.Identify.Threshold)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected fallback Kafka disabled")
	}
}
