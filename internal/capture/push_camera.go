package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"library_pos_backend/internal/decode"
)

var (
	ErrAlreadyAttached = errors.New("camera already attached")
	ErrCameraTimeout   = errors.New("camera was not attached in time")
)

// Attachment is the browser's report of its getUserMedia call.
type Attachment struct {
	Granted      bool         `json:"granted"`
	Error        string       `json:"error"`
	Capabilities Capabilities `json:"capabilities"`
}

func (a Attachment) err() error {
	if a.Granted {
		return nil
	}
	switch a.Error {
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return fmt.Errorf("%w: %s", ErrPermissionDenied, a.Error)
	case "":
		return ErrDeviceUnavailable
	default:
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, a.Error)
	}
}

// Controls are the zoom and torch settings the browser should apply.
type Controls struct {
	Zoom  float64 `json:"zoom,omitempty"`
	Torch bool    `json:"torch"`
}

type pushSlot struct {
	ready    chan struct{}
	waiters  int
	attached bool
	err      error
	caps     Capabilities
	frame    *decode.Frame
	controls Controls
	closed   bool
}

func newPushSlot() *pushSlot {
	return &pushSlot{ready: make(chan struct{})}
}

// PushCamera is a Camera whose frames are uploaded by the browser. The browser
// reports the outcome of its camera request with Attach, then posts frames with
// Push. Open waits for the report for at most the configured duration.
type PushCamera struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[Key]*pushSlot
}

func NewPushCamera(wait time.Duration) *PushCamera {
	return &PushCamera{wait: wait, slots: make(map[Key]*pushSlot)}
}

// slot returns the live slot for key, replacing one whose stream was closed.
// Callers hold c.mu.
func (c *PushCamera) slot(key Key) *pushSlot {
	slot, ok := c.slots[key]
	if !ok || slot.closed {
		slot = newPushSlot()
		c.slots[key] = slot
	}
	return slot
}

// Open waits for the browser's report on key. Concurrent opens of the same key
// share one slot, so a session that replaces a still-waiting one picks up the
// attachment meant for it.
func (c *PushCamera) Open(ctx context.Context, key Key) (Stream, error) {
	c.mu.Lock()
	slot := c.slot(key)
	slot.waiters++
	c.mu.Unlock()

	var timeout <-chan time.Time
	if c.wait > 0 {
		timer := time.NewTimer(c.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-slot.ready:
	case <-ctx.Done():
		c.abandon(key, slot)
		return nil, ctx.Err()
	case <-timeout:
		c.abandon(key, slot)
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, ErrCameraTimeout)
	}

	c.mu.Lock()
	slot.waiters--
	err := slot.err
	c.mu.Unlock()
	if err != nil {
		c.release(key, slot)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// the attachment stays for whichever session replaced this one
		return nil, err
	}
	return &pushStream{camera: c, key: key, slot: slot}, nil
}

// abandon drops one waiter. The slot is torn down only when nobody else waits
// on it and no attachment has arrived.
func (c *PushCamera) abandon(key Key, slot *pushSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot.waiters--
	if slot.waiters > 0 || slot.attached {
		return
	}
	c.closeSlot(key, slot)
}

// Attach records the browser's camera report for key.
func (c *PushCamera) Attach(key Key, a Attachment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := c.slot(key)
	if slot.attached {
		return ErrAlreadyAttached
	}
	slot.attached = true
	slot.err = a.err()
	slot.caps = a.Capabilities
	close(slot.ready)
	return nil
}

// Push stores frame as the latest frame for key and returns the controls the
// browser should apply.
func (c *PushCamera) Push(key Key, frame decode.Frame) (Controls, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[key]
	if !ok || slot.closed || !slot.attached || slot.err != nil {
		return Controls{}, ErrNotStreaming
	}
	slot.frame = &frame
	return slot.controls, nil
}

func (c *PushCamera) release(key Key, slot *pushSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSlot(key, slot)
}

// closeSlot marks slot closed and forgets it. Callers hold c.mu.
func (c *PushCamera) closeSlot(key Key, slot *pushSlot) {
	slot.closed = true
	slot.frame = nil
	if c.slots[key] == slot {
		delete(c.slots, key)
	}
}

type pushStream struct {
	camera *PushCamera
	key    Key
	slot   *pushSlot
}

// Frame returns the latest pushed frame once; later calls return ErrNoFrame
// until the browser pushes again.
func (s *pushStream) Frame(ctx context.Context) (decode.Frame, error) {
	if err := ctx.Err(); err != nil {
		return decode.Frame{}, err
	}
	s.camera.mu.Lock()
	defer s.camera.mu.Unlock()
	if s.slot.closed {
		return decode.Frame{}, ErrStreamEnded
	}
	if s.slot.frame == nil {
		return decode.Frame{}, ErrNoFrame
	}
	frame := *s.slot.frame
	s.slot.frame = nil
	return frame, nil
}

func (s *pushStream) Capabilities() Capabilities {
	s.camera.mu.Lock()
	defer s.camera.mu.Unlock()
	return s.slot.caps
}

func (s *pushStream) ApplyZoom(level float64) error {
	s.camera.mu.Lock()
	defer s.camera.mu.Unlock()
	if !s.slot.caps.Zoom {
		return errors.New("zoom not supported")
	}
	s.slot.controls.Zoom = level
	return nil
}

func (s *pushStream) SetTorch(on bool) error {
	s.camera.mu.Lock()
	defer s.camera.mu.Unlock()
	if !s.slot.caps.Torch {
		return errors.New("torch not supported")
	}
	s.slot.controls.Torch = on
	return nil
}

func (s *pushStream) Close() error {
	s.camera.release(s.key, s.slot)
	return nil
}
