// Package capture runs barcode capture sessions: one camera stream per operator
// and target, sampled on a fixed interval until a barcode is decoded, the session
// times out, is stopped, or fails.
package capture

import (
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateDetecting  State = "detecting"
	StateDetected   State = "detected"
	StateTimedOut   State = "timed_out"
	StateStopped    State = "stopped"
	StateErrored    State = "errored"
)

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	switch s {
	case StateDetected, StateTimedOut, StateStopped, StateErrored:
		return true
	}
	return false
}

// Target is what a detected barcode is used for.
type Target string

const (
	TargetAdd  Target = "add"
	TargetBill Target = "bill"
)

// ParseTarget validates a target taken from a request path.
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetAdd, TargetBill:
		return Target(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}

// Key identifies a session slot. Each operator has one slot per target.
type Key struct {
	Operator string
	Target   Target
}

func (k Key) String() string {
	return k.Operator + "/" + string(k.Target)
}

var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceUnavailable = errors.New("camera unavailable")
	ErrStreamEnded       = errors.New("camera stream ended")
	ErrNoFrame           = errors.New("no new frame")
	ErrNotStreaming      = errors.New("session is not streaming")
	ErrNoSession         = errors.New("no capture session")
	ErrUnknownTarget     = errors.New("unknown scan target")
	ErrManagerClosed     = errors.New("capture manager is shut down")
)

// Remediation returns the message shown to the operator for a session error.
func Remediation(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access was denied. Allow camera access for this site in the browser settings and start the scanner again."
	case errors.Is(err, ErrDeviceUnavailable):
		return "No usable camera was found. Connect a camera or close other applications using it, then start the scanner again."
	case errors.Is(err, ErrStreamEnded):
		return "The camera stream ended unexpectedly. Start the scanner again."
	}
	return err.Error()
}

// Outcome is reported once when a session ends.
type Outcome struct {
	SessionID string
	Key       Key
	State     State
	Barcode   string
	Format    string
	Attempts  int
	Reason    string
	Err       error
}

// Status is a point-in-time view of a session.
type Status struct {
	ID             string     `json:"id,omitempty"`
	Target         Target     `json:"target"`
	State          State      `json:"state"`
	Outcome        State      `json:"outcome,omitempty"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"max_attempts"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	ZoomLevel      float64    `json:"zoom_level,omitempty"`
	TorchAvailable bool       `json:"torch_available"`
	TorchOn        bool       `json:"torch_on"`
	Barcode        string     `json:"barcode,omitempty"`
	Format         string     `json:"format,omitempty"`
	Error          string     `json:"error,omitempty"`
}
