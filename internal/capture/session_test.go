package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_pos_backend/internal/decode"
)

type fakeStream struct {
	mu         sync.Mutex
	caps       Capabilities
	ended      bool
	closeCount int
	zoom       float64
	torch      bool
}

func (s *fakeStream) Frame(ctx context.Context) (decode.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.closeCount > 0 {
		return decode.Frame{}, ErrStreamEnded
	}
	return decode.Frame{Data: []byte("frame"), ContentType: "image/jpeg"}, nil
}

func (s *fakeStream) Capabilities() Capabilities { return s.caps }

func (s *fakeStream) ApplyZoom(level float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = level
	return nil
}

func (s *fakeStream) SetTorch(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torch = on
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

func (s *fakeStream) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount > 0
}

type fakeCamera struct {
	stream *fakeStream
	err    error
	// block makes Open wait until the channel is closed or ctx is done.
	block chan struct{}
}

func (c *fakeCamera) Open(ctx context.Context, _ Key) (Stream, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

func noBarcode() decode.Gateway {
	return decode.GatewayFunc(func(context.Context, decode.Frame) (decode.Result, bool, error) {
		return decode.Result{}, false, nil
	})
}

func testOptions() Options {
	return Options{Interval: time.Millisecond, MaxAttempts: 1000, MaxDuration: time.Minute, DefaultZoom: 2.0}
}

func newTestManager(camera Camera, gateway decode.Gateway, opts Options) (*Manager, chan Outcome) {
	outcomes := make(chan Outcome, 16)
	m := NewManager(camera, gateway, opts, nil)
	m.OnFinish(func(o Outcome) { outcomes <- o })
	return m, outcomes
}

func waitOutcome(t *testing.T, outcomes <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-outcomes:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
		return Outcome{}
	}
}

func waitStreaming(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.State == StateStreaming || st.State == StateDetecting
	}, 5*time.Second, time.Millisecond)
}

var billKey = Key{Operator: "admin", Target: TargetBill}

func TestSessionDetectsBarcode(t *testing.T) {
	stream := &fakeStream{}
	var calls int32
	gateway := decode.GatewayFunc(func(_ context.Context, f decode.Frame) (decode.Result, bool, error) {
		assert.Equal(t, "bill", f.Target)
		if atomic.AddInt32(&calls, 1) < 3 {
			return decode.Result{}, false, nil
		}
		return decode.Result{Barcode: "9781234567897", Format: "ean_13"}, true, nil
	})
	m, outcomes := newTestManager(&fakeCamera{stream: stream}, gateway, testOptions())

	session, err := m.Start(billKey)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateDetected, outcome.State)
	assert.Equal(t, "9781234567897", outcome.Barcode)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, session.ID(), outcome.SessionID)
	assert.True(t, stream.closed())

	st := session.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, StateDetected, st.Outcome)
	assert.Equal(t, "9781234567897", st.Barcode)
	assert.NotNil(t, st.FinishedAt)
}

func TestStopBeforeCameraGrantedLeavesIdle(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	m, outcomes := newTestManager(&fakeCamera{stream: &fakeStream{}, block: block}, noBarcode(), testOptions())

	session, err := m.Start(billKey)
	require.NoError(t, err)
	assert.Equal(t, StateRequesting, session.Status().State)

	st, err := m.Stop(billKey, "stop button")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, StateStopped, st.Outcome)
	assert.Empty(t, st.Barcode)

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateStopped, outcome.State)
	assert.Equal(t, "stop button", outcome.Reason)
	require.NoError(t, session.Wait(context.Background()))
}

func TestStopWhileStreamingReleasesCamera(t *testing.T) {
	stream := &fakeStream{}
	m, outcomes := newTestManager(&fakeCamera{stream: stream}, noBarcode(), testOptions())

	session, err := m.Start(billKey)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return session.Status().Attempts > 2 }, 5*time.Second, time.Millisecond)

	assert.True(t, session.Stop("navigation"))
	assert.True(t, stream.closed(), "camera must be released before Stop returns")
	assert.False(t, session.Stop("again"))

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateStopped, outcome.State)
	assert.Empty(t, outcome.Barcode)
	require.NoError(t, session.Wait(context.Background()))
	assert.Equal(t, StateIdle, session.Status().State)
}

func TestLateDecodeAfterStopIsDiscarded(t *testing.T) {
	inFlight := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gateway := decode.GatewayFunc(func(context.Context, decode.Frame) (decode.Result, bool, error) {
		once.Do(func() { close(inFlight) })
		<-release
		return decode.Result{Barcode: "LATE-123", Format: "code_128"}, true, nil
	})
	m, outcomes := newTestManager(&fakeCamera{stream: &fakeStream{}}, gateway, testOptions())

	session, err := m.Start(billKey)
	require.NoError(t, err)
	<-inFlight

	session.Stop("page hidden")
	close(release)
	require.NoError(t, session.Wait(context.Background()))

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateStopped, outcome.State)
	assert.Empty(t, outcome.Barcode)

	st := session.Status()
	assert.Equal(t, StateStopped, st.Outcome)
	assert.Empty(t, st.Barcode)
	select {
	case extra := <-outcomes:
		t.Fatalf("unexpected second outcome %+v", extra)
	default:
	}
}

func TestSessionTimesOutAfterMaxAttempts(t *testing.T) {
	opts := testOptions()
	opts.MaxAttempts = 3
	stream := &fakeStream{}
	m, outcomes := newTestManager(&fakeCamera{stream: stream}, noBarcode(), opts)

	_, err := m.Start(billKey)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateTimedOut, outcome.State)
	assert.Equal(t, 3, outcome.Attempts)
	assert.True(t, stream.closed())
}

func TestSessionTimesOutAfterMaxDuration(t *testing.T) {
	opts := testOptions()
	opts.Interval = time.Hour
	opts.MaxDuration = 10 * time.Millisecond
	m, outcomes := newTestManager(&fakeCamera{stream: &fakeStream{}}, noBarcode(), opts)

	_, err := m.Start(billKey)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateTimedOut, outcome.State)
	assert.Equal(t, 0, outcome.Attempts)
}

func TestDecodeErrorsDoNotEndSession(t *testing.T) {
	var calls int32
	gateway := decode.GatewayFunc(func(context.Context, decode.Frame) (decode.Result, bool, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return decode.Result{}, false, decode.ErrTransport
		}
		return decode.Result{Barcode: "ABC123"}, true, nil
	})
	m, outcomes := newTestManager(&fakeCamera{stream: &fakeStream{}}, gateway, testOptions())

	_, err := m.Start(billKey)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateDetected, outcome.State)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestPermissionDeniedErrors(t *testing.T) {
	m, outcomes := newTestManager(&fakeCamera{err: ErrPermissionDenied}, noBarcode(), testOptions())

	session, err := m.Start(billKey)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateErrored, outcome.State)
	assert.ErrorIs(t, outcome.Err, ErrPermissionDenied)

	st := session.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, StateErrored, st.Outcome)
	assert.Contains(t, st.Error, "denied")
}

func TestStreamEndedErrors(t *testing.T) {
	stream := &fakeStream{ended: true}
	m, outcomes := newTestManager(&fakeCamera{stream: stream}, noBarcode(), testOptions())

	_, err := m.Start(billKey)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateErrored, outcome.State)
	assert.ErrorIs(t, outcome.Err, ErrStreamEnded)
}

func TestZoomAndTorch(t *testing.T) {
	stream := &fakeStream{caps: Capabilities{Zoom: true, MinZoom: 1, MaxZoom: 1.5, Torch: true}}
	m, _ := newTestManager(&fakeCamera{stream: stream}, noBarcode(), testOptions())

	session, err := m.Start(billKey)
	require.NoError(t, err)
	waitStreaming(t, session)
	defer session.Stop("test done")

	st := session.Status()
	assert.Equal(t, 1.5, st.ZoomLevel)
	assert.True(t, st.TorchAvailable)

	on, err := m.ToggleTorch(billKey)
	require.NoError(t, err)
	assert.True(t, on)
	on, err = session.ToggleTorch()
	require.NoError(t, err)
	assert.False(t, on)
}

func TestTorchUnsupportedDegradesGracefully(t *testing.T) {
	stream := &fakeStream{}
	m, _ := newTestManager(&fakeCamera{stream: stream}, noBarcode(), testOptions())

	session, err := m.Start(billKey)
	require.NoError(t, err)
	waitStreaming(t, session)

	on, err := session.ToggleTorch()
	require.NoError(t, err)
	assert.False(t, on)
	st := session.Status()
	assert.False(t, st.TorchAvailable)
	assert.Zero(t, st.ZoomLevel)

	session.Stop("test done")
	_, err = session.ToggleTorch()
	assert.ErrorIs(t, err, ErrNotStreaming)
}
