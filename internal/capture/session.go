package capture

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"library_pos_backend/internal/decode"
	"library_pos_backend/pkg/utils"
)

// Options bound a session. A session ends TimedOut after MaxAttempts samples or
// after MaxDuration of streaming, whichever comes first.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	MaxDuration time.Duration
	DefaultZoom float64
}

// DefaultOptions samples every 300ms for 200 attempts, about one minute.
func DefaultOptions() Options {
	return Options{
		Interval:    300 * time.Millisecond,
		MaxAttempts: 200,
		MaxDuration: 90 * time.Second,
		DefaultZoom: 2.0,
	}
}

// Session is one capture lifecycle: camera acquisition, sampling and release.
// Every method is safe for concurrent use.
type Session struct {
	id       string
	key      Key
	camera   Camera
	gateway  decode.Gateway
	opts     Options
	onFinish func(Outcome)

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      State
	outcome    *Outcome
	stream     Stream
	caps       Capabilities
	attempts   int
	zoom       float64
	torchOn    bool
	startedAt  time.Time
	finishedAt time.Time
}

func newSession(key Key, camera Camera, gateway decode.Gateway, opts Options, onFinish func(Outcome)) *Session {
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	return &Session{
		id:       uuid.NewString(),
		key:      key,
		camera:   camera,
		gateway:  gateway,
		opts:     opts,
		onFinish: onFinish,
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}

func (s *Session) ID() string { return s.id }

// start launches the sampling goroutine. It is called once by the Manager.
func (s *Session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.startedAt = time.Now().UTC()
	s.state = StateRequesting
	s.mu.Unlock()

	utils.LogDebug("Capture session requesting camera", s.logFields())
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	stream, err := s.camera.Open(ctx, s.key)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(Outcome{State: StateStopped, Reason: "stopped while requesting camera"})
			return
		}
		s.finish(Outcome{State: StateErrored, Err: err})
		return
	}
	if !s.attach(stream) {
		_ = stream.Close()
		return
	}

	var deadline <-chan time.Time
	if s.opts.MaxDuration > 0 {
		deadlineTimer := time.NewTimer(s.opts.MaxDuration)
		defer deadlineTimer.Stop()
		deadline = deadlineTimer.C
	}
	ticker := time.NewTimer(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(Outcome{State: StateStopped})
			return
		case <-deadline:
			s.finish(Outcome{State: StateTimedOut, Reason: "max duration reached"})
			return
		case <-ticker.C:
		}

		if !s.beginAttempt() {
			s.finish(Outcome{State: StateTimedOut, Reason: "max attempts reached"})
			return
		}

		result, found, err := s.sample(ctx, stream)
		switch {
		case ctx.Err() != nil:
			// stopped while the decode was in flight; its result is discarded
			s.finish(Outcome{State: StateStopped})
			return
		case errors.Is(err, ErrStreamEnded):
			s.finish(Outcome{State: StateErrored, Err: err})
			return
		case err != nil && !errors.Is(err, ErrNoFrame):
			utils.LogDebug("Capture decode attempt failed", s.logFields(map[string]interface{}{"error": err.Error()}))
		case found:
			s.finish(Outcome{State: StateDetected, Barcode: result.Barcode, Format: result.Format})
			return
		}

		if !s.setState(StateStreaming) {
			return
		}
		ticker.Reset(s.opts.Interval)
	}
}

func (s *Session) sample(ctx context.Context, stream Stream) (decode.Result, bool, error) {
	frame, err := stream.Frame(ctx)
	if err != nil {
		return decode.Result{}, false, err
	}
	frame.Target = string(s.key.Target)
	return s.gateway.Decode(ctx, frame)
}

// attach records the acquired stream and enters Streaming. It returns false if
// the session was stopped while the camera was being opened.
func (s *Session) attach(stream Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != nil {
		return false
	}
	s.stream = stream
	s.caps = stream.Capabilities()
	s.state = StateStreaming

	if s.caps.Zoom && s.opts.DefaultZoom > 0 {
		level := s.opts.DefaultZoom
		if s.caps.MaxZoom > 0 {
			level = math.Min(level, s.caps.MaxZoom)
		}
		level = math.Max(level, s.caps.MinZoom)
		if err := stream.ApplyZoom(level); err != nil {
			utils.LogWarn("Could not apply default zoom", s.logFields(map[string]interface{}{"error": err.Error()}))
		} else {
			s.zoom = level
		}
	}
	utils.LogDebug("Capture session streaming", s.logFields(map[string]interface{}{"zoom": s.zoom, "torch": s.caps.Torch}))
	return true
}

func (s *Session) beginAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != nil || s.attempts >= s.opts.MaxAttempts {
		return false
	}
	s.attempts++
	s.state = StateDetecting
	return true
}

func (s *Session) setState(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != nil {
		return false
	}
	s.state = state
	return true
}

// finish moves the session to a terminal state, releases the camera and returns
// to Idle. Only the first call has any effect.
func (s *Session) finish(outcome Outcome) bool {
	s.mu.Lock()
	if s.outcome != nil {
		s.mu.Unlock()
		return false
	}
	outcome.SessionID = s.id
	outcome.Key = s.key
	outcome.Attempts = s.attempts
	s.outcome = &outcome
	s.state = outcome.State
	s.finishedAt = time.Now().UTC()
	if s.cancel != nil {
		s.cancel()
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			utils.LogWarn("Closing camera stream failed", s.logFields(map[string]interface{}{"error": err.Error()}))
		}
		s.stream = nil
	}
	s.torchOn = false
	s.state = StateIdle
	fields := s.logFields(map[string]interface{}{"outcome": string(outcome.State), "attempts": outcome.Attempts})
	s.mu.Unlock()

	if outcome.Err != nil {
		utils.LogWarn("Capture session failed", mergeFields(fields, map[string]interface{}{"error": outcome.Err.Error()}))
	} else {
		utils.LogInfo("Capture session finished", fields)
	}
	if s.onFinish != nil {
		s.onFinish(outcome)
	}
	return true
}

// Stop ends the session from any non-terminal state. The camera is released
// before Stop returns and any decode still in flight is ignored.
func (s *Session) Stop(reason string) bool {
	return s.finish(Outcome{State: StateStopped, Reason: reason})
}

// Wait blocks until the session goroutine has exited or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleTorch flips the torch. It returns false and no error when the stream
// has no torch.
func (s *Session) ToggleTorch() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil || s.outcome != nil {
		return false, ErrNotStreaming
	}
	if !s.caps.Torch {
		return false, nil
	}
	if err := s.stream.SetTorch(!s.torchOn); err != nil {
		return s.torchOn, err
	}
	s.torchOn = !s.torchOn
	return s.torchOn, nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ID:             s.id,
		Target:         s.key.Target,
		State:          s.state,
		Attempts:       s.attempts,
		MaxAttempts:    s.opts.MaxAttempts,
		StartedAt:      s.startedAt,
		ZoomLevel:      s.zoom,
		TorchAvailable: s.caps.Torch && s.stream != nil,
		TorchOn:        s.torchOn,
	}
	if s.outcome != nil {
		finished := s.finishedAt
		st.FinishedAt = &finished
		st.Outcome = s.outcome.State
		st.Barcode = s.outcome.Barcode
		st.Format = s.outcome.Format
		st.Error = Remediation(s.outcome.Err)
	}
	return st
}

func (s *Session) logFields(extra ...map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"session_id": s.id,
		"operator":   s.key.Operator,
		"target":     string(s.key.Target),
	}
	return mergeFields(fields, extra...)
}

func mergeFields(base map[string]interface{}, extra ...map[string]interface{}) map[string]interface{} {
	for _, e := range extra {
		for k, v := range e {
			base[k] = v
		}
	}
	return base
}
