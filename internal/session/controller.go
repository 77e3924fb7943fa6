// Package session orchestrates the capture-to-transcript pipeline for
// one monitoring session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"target-speaker-monitor/internal/audio"
	"target-speaker-monitor/internal/events"
	"target-speaker-monitor/internal/models"
	"target-speaker-monitor/internal/observability/metrics"
	"target-speaker-monitor/internal/profile"
	"target-speaker-monitor/internal/service/buffer"
	"target-speaker-monitor/internal/service/diarize"
	"target-speaker-monitor/internal/service/identify"
	"target-speaker-monitor/internal/service/stt"
)

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors returned by session lifecycle operations.
var (
	ErrNotIdle    = errors.New("session already started")
	ErrNotRunning = errors.New("session is not running")
)

// Params are the per-session start parameters. Zero values fall back to
// the configured defaults.
type Params struct {
	ProfileID string
	DeviceID  string
	Threshold float64
	Language  string
}

// Summary describes a finished session.
type Summary struct {
	SessionID        string
	ProfileID        string
	Duration         time.Duration
	WindowsProcessed int64
	TargetSegments   int
	Characters       int // total transcribed characters
	Transcripts      []models.TranscriptResult
	Failed           bool
}

// Config holds the pipeline knobs for a session.
type Config struct {
	SampleRateHz       int
	FrameDuration      time.Duration
	WindowDuration     time.Duration
	OverlapDuration    time.Duration
	MinSegmentDuration time.Duration
	SilenceRMSFloor    float64
	BufferTarget       time.Duration
	BufferMaxWait      time.Duration

	TranscribeNonTarget bool
	DrainTimeout        time.Duration

	MinSpeakers  int
	MaxSpeakers  int
	EmbeddingDim int
	Threshold    float64

	STTProvider      string
	STTMode          string // "oneshot" or "streaming"
	Language         string
	RequestTimeout   time.Duration
	FailureWarnCount int

	Principal string
}

// Deps are the pipeline collaborators injected into a session.
//
// StreamFactory is used in streaming mode; Transcriber in one-shot mode.
// OpenStream defaults to audio.OpenDevice when nil.
type Deps struct {
	Profiles      *profile.Store
	Segmenter     diarize.Segmenter
	Embedder      identify.Embedder
	Transcriber   stt.Transcriber
	StreamFactory func() stt.Adapter
	OpenStream    func(deviceID string, frameDuration time.Duration) (audio.Stream, error)
	Publisher     *events.Publisher
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// pendingSpan maps a streaming flush to the clip it carried, so the
// eventual final transcript can be stamped with the clip's time span.
type pendingSpan struct {
	start, end time.Duration
	similarity float64
}

// Controller runs one session through its lifecycle:
//
//	IDLE → STARTING → RUNNING → STOPPING → STOPPED
//
// A controller is single-use; a new session needs a new controller.
type Controller struct {
	id   string
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu          sync.Mutex
	state       State
	params      Params
	prof        *profile.SpeakerProfile
	transcripts []models.TranscriptResult
	subscribers map[chan models.TranscriptResult]struct{}
	pending     []pendingSpan
	lastFinal   string
	sttFailures int
	windows     int64
	targetSegs  int
	startedAt   time.Time
	duration    time.Duration // fixed at stop
	failed      bool

	stopping atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}

	stream    audio.Stream
	assembler *audio.Assembler
	buf       *buffer.Buffer
	matcher   *identify.Matcher
	sttStream stt.Adapter
}

// NewController creates an idle controller.
func NewController(cfg Config, deps Deps) *Controller {
	id := uuid.NewString()
	if deps.OpenStream == nil {
		deps.OpenStream = audio.OpenDevice
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	return &Controller{
		id:          id,
		cfg:         cfg,
		deps:        deps,
		log:         deps.Logger.With().Str("sessionId", id).Logger(),
		subscribers: make(map[chan models.TranscriptResult]struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start validates the parameters, opens the capture stream and launches
// the pipeline. Validation failures return the controller to IDLE.
func (c *Controller) Start(ctx context.Context, params Params) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.state = StateStarting
	c.mu.Unlock()

	err := c.start(ctx, params)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}
	return err
}

func (c *Controller) start(ctx context.Context, params Params) error {
	threshold := params.Threshold
	if threshold == 0 {
		threshold = c.cfg.Threshold
	}
	language := params.Language
	if language == "" {
		language = c.cfg.Language
	}
	params.Threshold = threshold
	params.Language = language

	prof, err := c.deps.Profiles.Load(params.ProfileID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	matcher, err := identify.NewMatcher(c.deps.Embedder, prof, threshold, c.cfg.EmbeddingDim, c.log)
	if err != nil {
		return fmt.Errorf("build matcher: %w", err)
	}

	assembler, err := audio.NewAssembler(c.cfg.SampleRateHz, c.cfg.WindowDuration, c.cfg.OverlapDuration)
	if err != nil {
		return fmt.Errorf("build window assembler: %w", err)
	}

	buf, err := buffer.New(c.cfg.BufferTarget, c.cfg.BufferMaxWait)
	if err != nil {
		return fmt.Errorf("build context buffer: %w", err)
	}

	stream, err := c.deps.OpenStream(params.DeviceID, c.cfg.FrameDuration)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	if c.cfg.STTMode == "streaming" && c.deps.StreamFactory != nil {
		s := c.deps.StreamFactory()
		if err := s.Start(runCtx, &streamSink{c: c}); err != nil {
			cancel()
			stream.Close()
			return fmt.Errorf("start streaming stt: %w", err)
		}
		c.sttStream = s
	}

	c.mu.Lock()
	c.params = params
	c.prof = prof
	c.matcher = matcher
	c.assembler = assembler
	c.buf = buf
	c.stream = stream
	c.cancel = cancel
	c.startedAt = time.Now()
	c.state = StateRunning
	c.mu.Unlock()

	c.deps.Metrics.RecordSessionStart()
	c.log.Info().
		Str("profileId", prof.ID).
		Str("deviceId", params.DeviceID).
		Float64("threshold", threshold).
		Str("sttMode", c.cfg.STTMode).
		Msg("Session started")

	go c.run(runCtx)
	return nil
}

// run is the pipeline loop. Capture and processing run in separate
// goroutines so a slow window never stalls the device reads.
func (c *Controller) run(ctx context.Context) {
	frames := make(chan audio.Frame, 16)

	go func() {
		defer close(frames)
		for {
			f, err := c.stream.Read(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil && !c.stopping.Load() {
					c.log.Error().Err(err).Msg("Capture read failed")
					c.mu.Lock()
					c.failed = true
					c.mu.Unlock()
				}
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	for f := range frames {
		for _, w := range c.assembler.Push(f) {
			c.processWindow(ctx, w)
		}
		c.tickBuffer(ctx)
	}

	c.finalize(ctx)
}

// processWindow runs one analysis window through diarization, identity
// matching and buffering. Window-level failures are logged and skipped;
// the session keeps running.
func (c *Controller) processWindow(ctx context.Context, w audio.Window) {
	c.deps.Metrics.RecordWindowProcessed()
	c.mu.Lock()
	c.windows++
	c.mu.Unlock()

	if audio.RMS(w.Samples) < c.cfg.SilenceRMSFloor {
		c.deps.Metrics.RecordWindowSkipped("silence")
		return
	}

	segs, err := c.deps.Segmenter.Segment(ctx, w, c.cfg.MinSpeakers, c.cfg.MaxSpeakers)
	if err != nil {
		c.log.Warn().Err(err).Dur("windowStart", w.Start).Msg("Diarization failed, skipping window")
		c.deps.Metrics.RecordWindowSkipped("diarization_error")
		return
	}
	c.deps.Metrics.RecordSegments(len(segs))

	before := len(segs)
	segs = diarize.FilterShort(segs, c.cfg.MinSegmentDuration, w.Duration())
	for i := len(segs); i < before; i++ {
		c.deps.Metrics.RecordSegmentDropped("too_short")
	}

	for _, seg := range c.matcher.Identify(ctx, w, segs) {
		c.deps.Metrics.RecordSimilarity(seg.Similarity, seg.IsTarget)

		if seg.IsTarget {
			c.mu.Lock()
			c.targetSegs++
			c.mu.Unlock()

			st := c.buf.Append(w.Slice(seg.Start, seg.End), w.SampleRate,
				w.Start+seg.Start, w.Start+seg.End, seg.Similarity)
			if st == buffer.StateReady {
				c.flushBuffer(ctx)
			}
			continue
		}

		if c.cfg.TranscribeNonTarget && c.deps.Transcriber != nil {
			clip := buffer.Clip{
				Samples:    w.Slice(seg.Start, seg.End),
				SampleRate: w.SampleRate,
				Start:      w.Start + seg.Start,
				End:        w.Start + seg.End,
				Similarity: seg.Similarity,
				Reason:     "non_target",
			}
			c.transcribeOneShot(ctx, clip, false)
		}
	}
}

// tickBuffer checks the flush deadline. Called once per frame so a
// paused speaker cannot stall a partially filled buffer forever.
func (c *Controller) tickBuffer(ctx context.Context) {
	if c.buf.Tick() == buffer.StateReady {
		c.flushBuffer(ctx)
	}
}

func (c *Controller) flushBuffer(ctx context.Context) {
	clip, ok := c.buf.Flush()
	if !ok {
		return
	}
	c.deps.Metrics.RecordBufferFlush(clip.Reason)
	c.transcribeClip(ctx, clip)
}

// transcribeClip routes a flushed clip to the configured STT mode.
func (c *Controller) transcribeClip(ctx context.Context, clip buffer.Clip) {
	if c.sttStream != nil {
		c.mu.Lock()
		c.pending = append(c.pending, pendingSpan{start: clip.Start, end: clip.End, similarity: clip.Similarity})
		c.mu.Unlock()

		if err := c.sttStream.SendAudio(ctx, audio.ToPCM16(clip.Samples)); err != nil {
			c.log.Error().Err(err).Msg("Streaming STT send failed")
			c.deps.Metrics.RecordSTT(c.cfg.STTProvider, "streaming", err, 0)
		}
		return
	}
	c.transcribeOneShot(ctx, clip, true)
}

// transcribeOneShot transcribes a clip synchronously. A failed
// transcription still produces a result with empty text so the audio's
// time span stays accounted for.
func (c *Controller) transcribeOneShot(ctx context.Context, clip buffer.Clip, isTarget bool) {
	reqCtx := ctx
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.deps.Transcriber.Transcribe(reqCtx, clip.Samples, clip.SampleRate, c.params.Language)
	c.deps.Metrics.RecordSTT(c.cfg.STTProvider, "oneshot", err, time.Since(start).Seconds())

	if err != nil {
		c.mu.Lock()
		c.sttFailures++
		failures := c.sttFailures
		c.mu.Unlock()

		ev := c.log.Warn()
		if failures >= c.cfg.FailureWarnCount && c.cfg.FailureWarnCount > 0 {
			ev = c.log.Error().Int("consecutiveFailures", failures)
		}
		ev.Err(err).Dur("clipStart", clip.Start).Msg("Transcription failed, recording empty result")
		res = stt.Result{}
	} else {
		c.mu.Lock()
		c.sttFailures = 0
		c.mu.Unlock()
	}

	c.deliver(ctx, models.TranscriptResult{
		ID:         uuid.NewString(),
		Text:       res.Text,
		Confidence: res.Confidence,
		Start:      clip.Start,
		End:        clip.End,
		IsTarget:   isTarget,
		Similarity: clip.Similarity,
		Timestamp:  time.Now(),
	})
}

// deliver records a final result in chronological order, publishes it
// and fans it out to subscribers.
func (c *Controller) deliver(ctx context.Context, res models.TranscriptResult) {
	c.mu.Lock()
	i := sort.Search(len(c.transcripts), func(i int) bool {
		return c.transcripts[i].Start > res.Start
	})
	c.transcripts = append(c.transcripts, models.TranscriptResult{})
	copy(c.transcripts[i+1:], c.transcripts[i:])
	c.transcripts[i] = res

	// Fan out under the lock so sends serialize with channel close at
	// stop. Sends are non-blocking; slow subscribers drop results rather
	// than stalling the pipeline.
	for ch := range c.subscribers {
		select {
		case ch <- res:
		default:
		}
	}
	profileID := c.params.ProfileID
	c.mu.Unlock()

	c.deps.Metrics.RecordFinalTranscript()

	if c.deps.Publisher != nil {
		err := c.deps.Publisher.PublishFinal(ctx, models.TranscriptFinal{
			EventType:  models.EventTypeFinal,
			SessionID:  c.id,
			ProfileID:  profileID,
			Principal:  c.cfg.Principal,
			ResultID:   res.ID,
			Text:       res.Text,
			Confidence: res.Confidence,
			IsTarget:   res.IsTarget,
			Similarity: res.Similarity,
			StartMs:    res.Start.Milliseconds(),
			EndMs:      res.End.Milliseconds(),
			Timestamp:  res.Timestamp.UnixMilli(),
		})
		if err != nil {
			c.log.Error().Err(err).Str("resultId", res.ID).Msg("Failed to publish final transcript")
		}
	}
}

// finalize drains the tail of the session and transitions to STOPPED.
// Runs exactly once, on the processing goroutine.
func (c *Controller) finalize(ctx context.Context) {
	if w, ok := c.assembler.Flush(); ok {
		c.processWindow(ctx, w)
	}
	if clip, ok := c.buf.ForceFlush(); ok {
		c.deps.Metrics.RecordBufferFlush(clip.Reason)
		c.transcribeClip(ctx, clip)
	}

	if c.sttStream != nil {
		if err := c.sttStream.Close(); err != nil {
			c.log.Warn().Err(err).Msg("Streaming STT close failed")
		}
		c.drainPending()
	}

	if err := c.stream.Close(); err != nil {
		c.log.Debug().Err(err).Msg("Capture close after drain")
	}

	c.mu.Lock()
	duration := time.Since(c.startedAt)
	c.duration = duration
	failed := c.failed
	c.state = StateStopped
	for ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = map[chan models.TranscriptResult]struct{}{}
	c.mu.Unlock()

	c.deps.Metrics.RecordSessionEnd(!failed, duration.Seconds())
	c.log.Info().
		Dur("duration", duration).
		Bool("failed", failed).
		Msg("Session stopped")

	c.cancel()
	close(c.done)
}

// drainPending waits, bounded by the drain timeout, for streaming finals
// still owed for flushed clips.
func (c *Controller) drainPending() {
	deadline := time.Now().Add(c.cfg.DrainTimeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		n := len(c.pending)
		c.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	c.mu.Lock()
	n := len(c.pending)
	c.mu.Unlock()
	if n > 0 {
		c.log.Warn().Int("pending", n).Msg("Drain timeout with streaming results outstanding")
	}
}

// Stop ends a running session and returns its summary. It blocks until
// the pipeline drains or the drain timeout expires.
func (c *Controller) Stop(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	switch c.state {
	case StateStopped:
		c.mu.Unlock()
		return c.summary(), nil
	case StateRunning:
		c.state = StateStopping
	default:
		st := c.state
		c.mu.Unlock()
		return Summary{}, fmt.Errorf("%w: state %s", ErrNotRunning, st)
	}
	c.mu.Unlock()

	c.stopping.Store(true)
	// Closing the stream ends the capture loop; the processing goroutine
	// then drains buffered frames and finalizes.
	if err := c.stream.Close(); err != nil {
		c.log.Debug().Err(err).Msg("Capture close at stop")
	}

	wait := c.cfg.DrainTimeout
	if wait <= 0 {
		wait = 3 * time.Second
	}
	select {
	case <-c.done:
	case <-time.After(wait + 2*time.Second):
		c.log.Error().Msg("Pipeline did not drain in time, cancelling")
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
			return Summary{}, ctx.Err()
		}
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}

	c.cancel()
	return c.summary(), nil
}

// Wait blocks until the session has fully stopped.
func (c *Controller) Wait() <-chan struct{} { return c.done }

func (c *Controller) summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	chars := 0
	for _, r := range c.transcripts {
		chars += len(r.Text)
	}
	duration := c.duration
	if duration == 0 && !c.startedAt.IsZero() {
		duration = time.Since(c.startedAt)
	}
	return Summary{
		SessionID:        c.id,
		ProfileID:        c.params.ProfileID,
		Duration:         duration,
		WindowsProcessed: c.windows,
		TargetSegments:   c.targetSegs,
		Characters:       chars,
		Transcripts:      append([]models.TranscriptResult(nil), c.transcripts...),
		Failed:           c.failed,
	}
}

// Transcripts returns the results so far in chronological order. With
// targetOnly set, non-target results are filtered from the view.
func (c *Controller) Transcripts(targetOnly bool) []models.TranscriptResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.TranscriptResult, 0, len(c.transcripts))
	for _, r := range c.transcripts {
		if targetOnly && !r.IsTarget {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Subscribe returns a channel of final results and a cancel function.
// The channel closes when the session stops.
func (c *Controller) Subscribe() (<-chan models.TranscriptResult, func()) {
	ch := make(chan models.TranscriptResult, 64)
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// streamSink adapts streaming STT callbacks onto the controller.
type streamSink struct {
	c *Controller
}

// OnPartial publishes interim text. Partials are fire-and-forget; they
// never enter the transcript record.
func (s *streamSink) OnPartial(text string) {
	c := s.c
	c.deps.Metrics.RecordPartialTranscript()

	c.mu.Lock()
	profileID := c.params.ProfileID
	c.mu.Unlock()

	if c.deps.Publisher != nil {
		err := c.deps.Publisher.PublishPartial(context.Background(), models.TranscriptPartial{
			EventType: models.EventTypePartial,
			SessionID: c.id,
			ProfileID: profileID,
			Principal: c.cfg.Principal,
			Text:      text,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			c.log.Debug().Err(err).Msg("Failed to publish partial transcript")
		}
	}
}

// OnFinal converts a streaming final into a transcript result, stamped
// with the span of the oldest unanswered clip. Consecutive identical
// finals are engine re-emissions and are dropped.
func (s *streamSink) OnFinal(text string, confidence float64) {
	c := s.c

	c.mu.Lock()
	if text != "" && text == c.lastFinal {
		if len(c.pending) > 0 {
			c.pending = c.pending[1:]
		}
		c.mu.Unlock()
		return
	}
	c.lastFinal = text

	var span pendingSpan
	if len(c.pending) > 0 {
		span = c.pending[0]
		c.pending = c.pending[1:]
	}
	c.mu.Unlock()

	if confidence <= 0 {
		confidence = 0.5
	}

	c.deliver(context.Background(), models.TranscriptResult{
		ID:         uuid.NewString(),
		Text:       text,
		Confidence: confidence,
		Start:      span.start,
		End:        span.end,
		IsTarget:   true,
		Similarity: span.similarity,
		Timestamp:  time.Now(),
	})
}

// OnError flags the session. Streaming errors are terminal for the STT
// side but capture keeps running; the operator sees the failure in the
// summary.
func (s *streamSink) OnError(err error) {
	c := s.c
	c.log.Error().Err(err).Msg("Streaming STT error")
	c.deps.Metrics.RecordSTT(c.cfg.STTProvider, "streaming", err, 0)
	c.mu.Lock()
	c.failed = true
	c.mu.Unlock()
}
