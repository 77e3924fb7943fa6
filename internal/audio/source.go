package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stream delivers capture frames until the device is exhausted or closed.
// Read returns io.EOF when the stream ends.
type Stream interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// ErrUnknownDevice is returned for device IDs no source can open.
var ErrUnknownDevice = errors.New("unknown audio device")

// OpenDevice opens a capture stream for a device ID.
//
// Supported schemes:
//
//	wav:<path>  - decode a WAV file and pace frames in real time
//
// Live microphone capture is platform-specific and is expected to be
// provided by the embedding process through the Stream interface.
func OpenDevice(deviceID string, frameDuration time.Duration) (Stream, error) {
	switch {
	case strings.HasPrefix(deviceID, "wav:"):
		return OpenWAV(strings.TrimPrefix(deviceID, "wav:"), frameDuration, true)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
}
