// Package decode turns camera frames into barcode values.
package decode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFrame is returned for frames that cannot be parsed or decoded as an image.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is one encoded still image sampled from a camera stream.
type Frame struct {
	Data        []byte
	ContentType string
	// Target is the scan target the frame was captured for ("add" or "bill").
	Target string
}

// Result is a detected barcode.
type Result struct {
	Barcode string `json:"barcode"`
	Format  string `json:"format"`
}

// Gateway decodes a single frame. found is false when no barcode was seen;
// err is reserved for malformed frames and transport failures.
type Gateway interface {
	Decode(ctx context.Context, frame Frame) (result Result, found bool, err error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, frame Frame) (Result, bool, error)

func (f GatewayFunc) Decode(ctx context.Context, frame Frame) (Result, bool, error) {
	return f(ctx, frame)
}

// FrameFromDataURL parses "data:image/jpeg;base64,...". A bare base64 payload
// is accepted as JPEG.
func FrameFromDataURL(s string) (Frame, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Frame{}, fmt.Errorf("%w: empty image", ErrInvalidFrame)
	}
	contentType := "image/jpeg"
	payload := s
	if strings.HasPrefix(s, "data:") {
		meta, data, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
		if !ok {
			return Frame{}, fmt.Errorf("%w: data url without payload", ErrInvalidFrame)
		}
		mediaType, encoding, _ := strings.Cut(meta, ";")
		if encoding != "base64" {
			return Frame{}, fmt.Errorf("%w: data url must be base64 encoded", ErrInvalidFrame)
		}
		if mediaType != "" {
			contentType = mediaType
		}
		payload = data
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if len(raw) == 0 {
		return Frame{}, fmt.Errorf("%w: empty image", ErrInvalidFrame)
	}
	return Frame{Data: raw, ContentType: contentType}, nil
}

// DataURL renders the frame back into data URL form.
func (f Frame) DataURL() string {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

type minLength struct {
	next Gateway
	min  int
}

// MinLength discards results shorter than n characters as noise.
func MinLength(next Gateway, n int) Gateway {
	return &minLength{next: next, min: n}
}

func (m *minLength) Decode(ctx context.Context, frame Frame) (Result, bool, error) {
	result, found, err := m.next.Decode(ctx, frame)
	if err != nil || !found {
		return Result{}, false, err
	}
	result.Barcode = strings.TrimSpace(result.Barcode)
	if len(result.Barcode) < m.min {
		return Result{}, false, nil
	}
	return result, true, nil
}
