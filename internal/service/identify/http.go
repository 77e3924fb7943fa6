package identify

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

// HTTPEmbedder calls an embedding sidecar (a pyannote-style model behind
// a small HTTP wrapper) at POST {base}/embed.
type HTTPEmbedder struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEmbedder creates an adapter for the sidecar at baseURL.
func NewHTTPEmbedder(baseURL string, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	SampleRateHz int    `json:"sampleRateHz"`
	AudioPCM16   string `json:"audioPcm16"` // base64 little-endian 16-bit PCM
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed sends the samples to the sidecar and returns its vector.
func (h *HTTPEmbedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float64, error) {
	body, err := json.Marshal(embedRequest{
		SampleRateHz: sampleRate,
		AudioPCM16:   base64.StdEncoding.EncodeToString(audio.ToPCM16(samples)),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding sidecar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding sidecar http %d: %s", resp.StatusCode, string(b))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("embedding sidecar response: %w", err)
	}
	return er.Embedding, nil
}
