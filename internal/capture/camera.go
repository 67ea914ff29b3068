package capture

import (
	"context"

	"library_pos_backend/internal/decode"
)

// Capabilities are the optional controls a camera stream exposes.
type Capabilities struct {
	Zoom    bool    `json:"zoom"`
	MinZoom float64 `json:"min_zoom,omitempty"`
	MaxZoom float64 `json:"max_zoom,omitempty"`
	Torch   bool    `json:"torch"`
}

// Camera hands out streams. Open may block while the user answers a permission
// prompt and must return ErrPermissionDenied or ErrDeviceUnavailable on refusal.
type Camera interface {
	Open(ctx context.Context, key Key) (Stream, error)
}

// Stream is an acquired camera. Frame returns ErrNoFrame when nothing new is
// available and ErrStreamEnded once the device is gone. Close must be idempotent.
type Stream interface {
	Frame(ctx context.Context) (decode.Frame, error)
	Capabilities() Capabilities
	ApplyZoom(level float64) error
	SetTorch(on bool) error
	Close() error
}
