package diarize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"target-speaker-monitor/internal/audio"
)

// HTTPSegmenter calls a diarization sidecar (a pyannote-style model
// behind a small HTTP wrapper) at POST {base}/diarize.
type HTTPSegmenter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSegmenter creates an adapter for the sidecar at baseURL.
func NewHTTPSegmenter(baseURL string, timeout time.Duration) *HTTPSegmenter {
	return &HTTPSegmenter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type diarizeRequest struct {
	SampleRateHz int    `json:"sampleRateHz"`
	AudioPCM16   string `json:"audioPcm16"` // base64 little-endian 16-bit PCM
	MinSpeakers  int    `json:"minSpeakers,omitempty"`
	MaxSpeakers  int    `json:"maxSpeakers,omitempty"`
}

type diarizeResponse struct {
	Segments []struct {
		StartSec float64 `json:"start"`
		EndSec   float64 `json:"end"`
		Speaker  string  `json:"speaker"`
	} `json:"segments"`
}

// Segment sends the window to the sidecar and converts its response.
func (h *HTTPSegmenter) Segment(ctx context.Context, w audio.Window, minSpeakers, maxSpeakers int) ([]SpeakerSegment, error) {
	body, err := json.Marshal(diarizeRequest{
		SampleRateHz: w.SampleRate,
		AudioPCM16:   base64.StdEncoding.EncodeToString(audio.ToPCM16(w.Samples)),
		MinSpeakers:  minSpeakers,
		MaxSpeakers:  maxSpeakers,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/diarize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diarization sidecar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("diarization sidecar http %d: %s", resp.StatusCode, string(b))
	}

	var dr diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("diarization sidecar response: %w", err)
	}

	segs := make([]SpeakerSegment, 0, len(dr.Segments))
	for _, s := range dr.Segments {
		segs = append(segs, SpeakerSegment{
			Start:        time.Duration(s.StartSec * float64(time.Second)),
			End:          time.Duration(s.EndSec * float64(time.Second)),
			SpeakerLabel: s.Speaker,
		})
	}
	return segs, nil
}
