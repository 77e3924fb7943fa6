package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"target-speaker-monitor/internal/config"
	"target-speaker-monitor/internal/events"
	"target-speaker-monitor/internal/profile"
	"target-speaker-monitor/internal/service/diarize"
	"target-speaker-monitor/internal/service/identify"
	"target-speaker-monitor/internal/service/stt"
	"target-speaker-monitor/internal/service/stt/google"
	"target-speaker-monitor/internal/service/stt/mock"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Manager creates sessions from service configuration and tracks them by
// ID. Stopped sessions stay in the map so their transcripts remain
// queryable until process exit.
type Manager struct {
	cfg       *config.Configuration
	profiles  *profile.Store
	publisher *events.Publisher
	logger    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Controller
}

// NewManager creates a manager over the shared service collaborators.
func NewManager(cfg *config.Configuration, profiles *profile.Store, publisher *events.Publisher, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		profiles:  profiles,
		publisher: publisher,
		logger:    logger,
		sessions:  make(map[string]*Controller),
	}
}

// StartSession builds a pipeline from configuration and starts it.
func (m *Manager) StartSession(ctx context.Context, params Params) (*Controller, error) {
	deps, err := m.buildDeps(ctx)
	if err != nil {
		return nil, err
	}

	c := NewController(m.sessionConfig(), deps)
	if err := c.Start(ctx, params); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[c.ID()] = c
	m.mu.Unlock()
	return c, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return c, nil
}

// StopSession stops a session by ID and returns its summary.
func (m *Manager) StopSession(ctx context.Context, id string) (Summary, error) {
	c, err := m.Get(id)
	if err != nil {
		return Summary{}, err
	}
	return c.Stop(ctx)
}

// StopAll stops every running session. Used at shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		all = append(all, c)
	}
	m.mu.Unlock()

	for _, c := range all {
		if c.State() != StateRunning {
			continue
		}
		if _, err := c.Stop(ctx); err != nil {
			m.logger.Warn().Err(err).Str("sessionId", c.ID()).Msg("Stop at shutdown failed")
		}
	}
}

func (m *Manager) sessionConfig() Config {
	cfg := m.cfg
	return Config{
		SampleRateHz:        cfg.Audio.SampleRateHz,
		FrameDuration:       cfg.Audio.FrameDuration,
		WindowDuration:      cfg.Pipeline.WindowDuration,
		OverlapDuration:     cfg.Pipeline.OverlapDuration,
		MinSegmentDuration:  cfg.Pipeline.MinSegmentDuration,
		SilenceRMSFloor:     cfg.Pipeline.SilenceRMSFloor,
		BufferTarget:        cfg.Pipeline.BufferTarget,
		BufferMaxWait:       cfg.Pipeline.BufferMaxWait,
		TranscribeNonTarget: cfg.Pipeline.TranscribeNonTarget,
		DrainTimeout:        cfg.Pipeline.DrainTimeout,
		MinSpeakers:         cfg.Diarization.MinSpeakers,
		MaxSpeakers:         cfg.Diarization.MaxSpeakers,
		EmbeddingDim:        cfg.Identify.EmbeddingDim,
		Threshold:           cfg.Identify.Threshold,
		STTProvider:         cfg.STT.Provider,
		STTMode:             cfg.STT.Mode,
		Language:            cfg.STT.LanguageCode,
		RequestTimeout:      cfg.STT.RequestTimeout,
		FailureWarnCount:    cfg.STT.FailureWarnCount,
		Principal:           cfg.Service.Principal,
	}
}

func (m *Manager) buildDeps(ctx context.Context) (Deps, error) {
	deps := Deps{
		Profiles:  m.profiles,
		Publisher: m.publisher,
		Logger:    m.logger,
	}

	switch m.cfg.Diarization.Provider {
	case "http":
		deps.Segmenter = diarize.NewHTTPSegmenter(m.cfg.Diarization.SidecarURL, m.cfg.Diarization.Timeout)
	default:
		deps.Segmenter = diarize.NewEnergySegmenter()
	}

	switch m.cfg.Identify.Provider {
	case "http":
		deps.Embedder = identify.NewHTTPEmbedder(m.cfg.Identify.SidecarURL, m.cfg.Identify.Timeout)
	default:
		deps.Embedder = identify.NewEnergyEmbedder(m.cfg.Identify.EmbeddingDim)
	}

	switch m.cfg.STT.Provider {
	case "google":
		gcfg := google.Config{
			LanguageCode:   m.cfg.STT.LanguageCode,
			SampleRateHz:   m.cfg.Audio.SampleRateHz,
			InterimResults: m.cfg.STT.InterimResults,
			AudioEncoding:  "LINEAR16",
		}
		adapter, err := google.New(ctx, gcfg)
		if err != nil {
			return Deps{}, fmt.Errorf("google stt client: %w", err)
		}
		deps.Transcriber = adapter
		deps.StreamFactory = func() stt.Adapter { return adapter }
	default:
		deps.Transcriber = mock.NewTranscriber()
		deps.StreamFactory = func() stt.Adapter { return mock.New() }
	}

	return deps, nil
}
