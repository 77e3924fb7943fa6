// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all service configuration, grouped by concern.
type Configuration struct {
	Service       ServiceConfig
	Audio         AudioConfig
	Pipeline      PipelineConfig
	Diarization   DiarizationConfig
	Identify      IdentifyConfig
	STT           STTConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
	Profiles      ProfilesConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal   string // service identity attached to published events
	HTTPPort    string // control API port
	MetricsPort string // observability HTTP port (/metrics, /healthz)
}

// AudioConfig holds capture settings. The pipeline assumes a fixed
// sample rate and mono audio; resampling is the capture device's problem.
type AudioConfig struct {
	SampleRateHz  int
	Channels      int
	FrameDuration time.Duration // size of frames read from the capture stream
}

// PipelineConfig holds the windowing and buffering knobs.
type PipelineConfig struct {
	WindowDuration      time.Duration // analysis window length
	OverlapDuration     time.Duration // overlap with the previous window, < WindowDuration
	MinSegmentDuration  time.Duration // diarized segments shorter than this are dropped as noise
	SilenceRMSFloor     float64       // windows below this RMS are skipped entirely
	BufferTarget        time.Duration // target audio accumulated before a flush
	BufferMaxWait       time.Duration // flush deadline once the buffer opens
	TranscribeNonTarget bool          // also transcribe non-target segments (kept with isTarget=false)
	DrainTimeout        time.Duration // bounded wait for in-flight results at stop
}

// DiarizationConfig selects and configures the segmentation engine.
type DiarizationConfig struct {
	Provider    string // "energy" or "http"
	SidecarURL  string // base URL of the diarization sidecar (http provider)
	MinSpeakers int
	MaxSpeakers int
	Timeout     time.Duration
}

// IdentifyConfig configures speaker identity matching.
//
// Threshold is the dominant tuning knob in practice: a microphone or
// room mismatch between enrollment and live audio shifts the similarity
// distribution and the default needs operator adjustment.
type IdentifyConfig struct {
	Provider     string // "energy" or "http"
	SidecarURL   string // base URL of the embedding sidecar (http provider)
	EmbeddingDim int    // expected embedding dimensionality
	Threshold    float64
	Timeout      time.Duration
}

// STTConfig configures the transcription engine.
type STTConfig struct {
	Provider         string // "mock" or "google"
	Mode             string // "oneshot" or "streaming"
	LanguageCode     string
	InterimResults   bool
	RequestTimeout   time.Duration
	FailureWarnCount int // consecutive failures before a session-level warning
}

// KafkaConfig configures transcript event publishing.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// ProfilesConfig locates the enrolled speaker profiles.
type ProfilesConfig struct {
	Dir string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:   envOrDefault("SERVICE_PRINCIPAL", "svc-speaker-monitor"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		Audio: AudioConfig{
			SampleRateHz:  envInt("AUDIO_SAMPLE_RATE_HZ", 16000),
			Channels:      envInt("AUDIO_CHANNELS", 1),
			FrameDuration: envDuration("AUDIO_FRAME_DURATION", 100*time.Millisecond),
		},
		Pipeline: PipelineConfig{
			WindowDuration:      envDuration("PIPELINE_WINDOW_DURATION", 5*time.Second),
			OverlapDuration:     envDuration("PIPELINE_OVERLAP_DURATION", 2*time.Second),
			MinSegmentDuration:  envDuration("PIPELINE_MIN_SEGMENT_DURATION", 100*time.Millisecond),
			SilenceRMSFloor:     envFloat("PIPELINE_SILENCE_RMS_FLOOR", 0.003),
			BufferTarget:        envDuration("PIPELINE_BUFFER_TARGET", 15*time.Second),
			BufferMaxWait:       envDuration("PIPELINE_BUFFER_MAX_WAIT", 20*time.Second),
			TranscribeNonTarget: envBool("PIPELINE_TRANSCRIBE_NON_TARGET", false),
			DrainTimeout:        envDuration("PIPELINE_DRAIN_TIMEOUT", 3*time.Second),
		},
		Diarization: DiarizationConfig{
			Provider:    envOrDefault("DIARIZATION_PROVIDER", "energy"),
			SidecarURL:  envOrDefault("DIARIZATION_SIDECAR_URL", "http://localhost:8300"),
			MinSpeakers: envInt("DIARIZATION_MIN_SPEAKERS", 1),
			MaxSpeakers: envInt("DIARIZATION_MAX_SPEAKERS", 4),
			Timeout:     envDuration("DIARIZATION_TIMEOUT", 10*time.Second),
		},
		Identify: IdentifyConfig{
			Provider:     envOrDefault("IDENTIFY_PROVIDER", "energy"),
			SidecarURL:   envOrDefault("IDENTIFY_SIDECAR_URL", "http://localhost:8300"),
			EmbeddingDim: envInt("IDENTIFY_EMBEDDING_DIM", 512),
			Threshold:    envFloat("IDENTIFY_SIMILARITY_THRESHOLD", 0.75),
			Timeout:      envDuration("IDENTIFY_TIMEOUT", 10*time.Second),
		},
		STT: STTConfig{
			Provider:         envOrDefault("STT_PROVIDER", "mock"),
			Mode:             envOrDefault("STT_MODE", "oneshot"),
			LanguageCode:     envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			InterimResults:   envBool("STT_INTERIM_RESULTS", true),
			RequestTimeout:   envDuration("STT_REQUEST_TIMEOUT", 30*time.Second),
			FailureWarnCount: envInt("STT_FAILURE_WARN_COUNT", 3),
		},
		Kafka: KafkaConfig{
			Enabled:      envBool("KAFKA_ENABLED", false),
			Brokers:      envList("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "monitor.transcripts.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "monitor.transcripts.final"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
		Profiles: ProfilesConfig{
			Dir: envOrDefault("PROFILES_DIR", "data/profiles"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
