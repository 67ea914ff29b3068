package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_pos_backend/internal/decode"
)

func openAsync(cam *PushCamera, key Key) <-chan struct {
	stream Stream
	err    error
} {
	ch := make(chan struct {
		stream Stream
		err    error
	}, 1)
	go func() {
		s, err := cam.Open(context.Background(), key)
		ch <- struct {
			stream Stream
			err    error
		}{s, err}
	}()
	return ch
}

func TestPushCameraFlow(t *testing.T) {
	cam := NewPushCamera(5 * time.Second)
	opened := openAsync(cam, billKey)

	require.Eventually(t, func() bool {
		return cam.Attach(billKey, Attachment{Granted: true, Capabilities: Capabilities{Zoom: true, MaxZoom: 4, Torch: true}}) == nil
	}, 5*time.Second, time.Millisecond)

	res := <-opened
	require.NoError(t, res.err)
	stream := res.stream
	assert.True(t, stream.Capabilities().Torch)

	_, err := stream.Frame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, stream.ApplyZoom(2))
	require.NoError(t, stream.SetTorch(true))
	controls, err := cam.Push(billKey, decode.Frame{Data: []byte("jpeg"), ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, Controls{Zoom: 2, Torch: true}, controls)

	frame, err := stream.Frame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), frame.Data)
	_, err = stream.Frame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	_, err = stream.Frame(context.Background())
	assert.ErrorIs(t, err, ErrStreamEnded)
	_, err = cam.Push(billKey, decode.Frame{Data: []byte("jpeg")})
	assert.ErrorIs(t, err, ErrNotStreaming)
}

func TestPushCameraAttachBeforeOpen(t *testing.T) {
	cam := NewPushCamera(time.Second)
	require.NoError(t, cam.Attach(billKey, Attachment{Granted: true}))
	assert.ErrorIs(t, cam.Attach(billKey, Attachment{Granted: true}), ErrAlreadyAttached)

	stream, err := cam.Open(context.Background(), billKey)
	require.NoError(t, err)
	assert.Error(t, stream.SetTorch(true))
	assert.Error(t, stream.ApplyZoom(2))
}

func TestPushCameraDenied(t *testing.T) {
	cam := NewPushCamera(time.Second)
	require.NoError(t, cam.Attach(billKey, Attachment{Error: "NotAllowedError"}))
	_, err := cam.Open(context.Background(), billKey)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, cam.Attach(billKey, Attachment{Error: "NotFoundError"}))
	_, err = cam.Open(context.Background(), billKey)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestPushCameraOpenTimesOut(t *testing.T) {
	cam := NewPushCamera(10 * time.Millisecond)
	_, err := cam.Open(context.Background(), billKey)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.ErrorIs(t, err, ErrCameraTimeout)
}

func TestPushCameraDrivesSession(t *testing.T) {
	cam := NewPushCamera(5 * time.Second)
	gateway := decode.GatewayFunc(func(_ context.Context, f decode.Frame) (decode.Result, bool, error) {
		return decode.Result{Barcode: string(f.Data), Format: "code_128"}, true, nil
	})
	m, outcomes := newTestManager(cam, gateway, testOptions())

	_, err := m.Start(billKey)
	require.NoError(t, err)
	require.NoError(t, cam.Attach(billKey, Attachment{Granted: true}))
	require.Eventually(t, func() bool {
		_, err := cam.Push(billKey, decode.Frame{Data: []byte("A1-BOOK")})
		return err == nil
	}, 5*time.Second, time.Millisecond)

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, StateDetected, outcome.State)
	assert.Equal(t, "A1-BOOK", outcome.Barcode)
}

func TestPushCameraRestartWhileRequesting(t *testing.T) {
	cam := NewPushCamera(300 * time.Millisecond)
	m, outcomes := newTestManager(cam, noBarcode(), testOptions())

	first, err := m.Start(billKey)
	require.NoError(t, err)
	second, err := m.Start(billKey)
	require.NoError(t, err)
	defer second.Stop("test done")

	outcome := waitOutcome(t, outcomes)
	assert.Equal(t, first.ID(), outcome.SessionID)
	assert.Equal(t, StateStopped, outcome.State)
	require.NoError(t, first.Wait(context.Background()))

	require.NoError(t, cam.Attach(billKey, Attachment{Granted: true}))
	waitStreaming(t, second)
	assert.Empty(t, second.Status().Error)
}

func TestPushCameraCancelledOpenKeepsSharedSlot(t *testing.T) {
	cam := NewPushCamera(5 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := cam.Open(ctx, billKey)
		cancelled <- err
	}()
	require.Eventually(t, func() bool {
		cam.mu.Lock()
		defer cam.mu.Unlock()
		slot, ok := cam.slots[billKey]
		return ok && slot.waiters == 1
	}, 5*time.Second, time.Millisecond)

	opened := openAsync(cam, billKey)
	require.Eventually(t, func() bool {
		cam.mu.Lock()
		defer cam.mu.Unlock()
		return cam.slots[billKey].waiters == 2
	}, 5*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-cancelled, context.Canceled)

	require.NoError(t, cam.Attach(billKey, Attachment{Granted: true, Capabilities: Capabilities{Torch: true}}))
	res := <-opened
	require.NoError(t, res.err)
	assert.True(t, res.stream.Capabilities().Torch)

	_, err := cam.Push(billKey, decode.Frame{Data: []byte("jpeg")})
	require.NoError(t, err)
	frame, err := res.stream.Frame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), frame.Data)
}

func TestPushCameraAbandonedOpenForgetsSlot(t *testing.T) {
	cam := NewPushCamera(5 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cam.Open(ctx, billKey)
	assert.ErrorIs(t, err, context.Canceled)

	cam.mu.Lock()
	_, ok := cam.slots[billKey]
	cam.mu.Unlock()
	assert.False(t, ok)
}
