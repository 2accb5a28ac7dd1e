package camera

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	grabs     int
	grabErr   error
	fps       float64
	closed    bool
	closeErr  error
	depthErr  error
}

func (f *fakeDevice) Grab() error {
	if f.grabErr != nil {
		return f.grabErr
	}
	f.grabs++
	return nil
}

func (f *fakeDevice) Left() (*Image, error) {
	return &Image{Width: 2, Height: 2, Pix: make([]byte, 12)}, nil
}

func (f *fakeDevice) Depth(roi *ROI) (*DepthMap, error) {
	if f.depthErr != nil {
		return nil, f.depthErr
	}
	return &DepthMap{Width: 2, Height: 2, Data: make([]float32, 4)}, nil
}

func (f *fakeDevice) NativeFPS() float64 { return f.fps }

func (f *fakeDevice) Close() error {
	f.closed = true
	return f.closeErr
}

func TestLiveAdapter_SeekUnsupported(t *testing.T) {
	a := NewLiveAdapter(&fakeDevice{fps: 30})
	require.ErrorIs(t, a.Seek(5), ErrSeekUnsupported)
}

func TestLiveAdapter_FramesTotalUnbounded(t *testing.T) {
	a := NewLiveAdapter(&fakeDevice{fps: 30})
	_, ok := a.FramesTotal()
	require.False(t, ok)
}

func TestLiveAdapter_GrabAdvancesIndex(t *testing.T) {
	a := NewLiveAdapter(&fakeDevice{fps: 30})
	require.Equal(t, -1, a.CurrentIndex())
	require.NoError(t, a.Grab())
	require.Equal(t, 0, a.CurrentIndex())
	require.NoError(t, a.Grab())
	require.Equal(t, 1, a.CurrentIndex())
}

func TestLiveAdapter_DepthRetrieveOncePerFrame(t *testing.T) {
	a := NewLiveAdapter(&fakeDevice{fps: 30})
	require.NoError(t, a.Grab())
	_, err := a.RetrieveDepth(nil)
	require.NoError(t, err)
	_, err = a.RetrieveDepth(nil)
	require.Error(t, err)
}

func TestLiveAdapter_GrabErrorPropagates(t *testing.T) {
	a := NewLiveAdapter(&fakeDevice{grabErr: errors.New("device offline")})
	err := a.Grab()
	require.Error(t, err)
}

func TestLiveAdapter_CloseReleasesDevice(t *testing.T) {
	dev := &fakeDevice{fps: 30}
	a := NewLiveAdapter(dev)
	require.NoError(t, a.Close())
	require.True(t, dev.closed)
	require.NoError(t, a.Close(), "close is idempotent")
}

func TestLiveAdapter_NativeFPSUnknownWhenZero(t *testing.T) {
	a := NewLiveAdapter(&fakeDevice{fps: 0})
	_, ok := a.NativeFPS()
	require.False(t, ok)
}
