package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTransport wraps failures talking to a remote decoder.
var ErrTransport = errors.New("decoder transport error")

// RemoteDecoder posts frames to an external decode endpoint.
type RemoteDecoder struct {
	url    string
	client *http.Client
}

func NewRemoteDecoder(url string, timeout time.Duration) *RemoteDecoder {
	return &RemoteDecoder{url: url, client: &http.Client{Timeout: timeout}}
}

// DecodeRequest is the body accepted by decode endpoints.
type DecodeRequest struct {
	Image string `json:"image" binding:"required"`
	Type  string `json:"type"`
}

// DecodeResponse is the body returned by decode endpoints.
type DecodeResponse struct {
	Detected bool   `json:"detected"`
	Barcode  string `json:"barcode,omitempty"`
	Format   string `json:"format,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

func (d *RemoteDecoder) Decode(ctx context.Context, frame Frame) (Result, bool, error) {
	body, err := json.Marshal(DecodeRequest{Image: frame.DataURL(), Type: frame.Target})
	if err != nil {
		return Result{}, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	var decoded DecodeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return Result{}, false, fmt.Errorf("%w: status %d: %v", ErrTransport, resp.StatusCode, err)
	}
	if decoded.Error != "" {
		return Result{}, false, fmt.Errorf("%w: %s", ErrTransport, decoded.Error)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, false, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}
	if !decoded.Detected || decoded.Barcode == "" {
		return Result{}, false, nil
	}
	return Result{Barcode: decoded.Barcode, Format: decoded.Format}, true, nil
}
