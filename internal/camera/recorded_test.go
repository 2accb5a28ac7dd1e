package camera

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// memSource is a synthetic in-memory FrameSource for tests, grounded on
// the teacher's MockPCAPReader pattern (internal/lidar/network/pcap_interface.go).
type memSource struct {
	frames []*Image
	depths []*DepthMap
	fps    float64
}

func newMemSource(n int) *memSource {
	s := &memSource{fps: 60}
	for i := 0; i < n; i++ {
		s.frames = append(s.frames, &Image{Width: 4, Height: 4, Pix: make([]byte, 4*4*3)})
		s.depths = append(s.depths, &DepthMap{Width: 4, Height: 4, Data: make([]float32, 16)})
	}
	return s
}

func (m *memSource) Len() int { return len(m.frames) }

func (m *memSource) Frame(index int) (*Image, *DepthMap, error) {
	return m.frames[index], m.depths[index], nil
}

func (m *memSource) NativeFPS() (float64, bool) { return m.fps, true }

func TestRecordedAdapter_SequentialGrab(t *testing.T) {
	a := NewRecordedAdapter(newMemSource(5))
	require.Equal(t, -1, a.CurrentIndex())

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Grab())
		require.Equal(t, i, a.CurrentIndex())
	}
	require.ErrorIs(t, a.Grab(), ErrEndOfSession)
}

func TestRecordedAdapter_SeekThenGrabReturnsTarget(t *testing.T) {
	// spec §8 invariant #4 / S3: after seek(t), the next grab's index == t.
	a := NewRecordedAdapter(newMemSource(50))
	require.NoError(t, a.Seek(30))
	require.NoError(t, a.Grab())
	require.Equal(t, 30, a.CurrentIndex())
}

func TestRecordedAdapter_SeekToLastFrameThenEndOfSession(t *testing.T) {
	total := 10
	a := NewRecordedAdapter(newMemSource(total))
	require.NoError(t, a.Seek(total-1))
	require.NoError(t, a.Grab())
	require.Equal(t, total-1, a.CurrentIndex())
	require.ErrorIs(t, a.Grab(), ErrEndOfSession)
}

func TestRecordedAdapter_SeekOutOfRange(t *testing.T) {
	a := NewRecordedAdapter(newMemSource(10))
	require.ErrorIs(t, a.Seek(10), ErrOutOfRange)
	require.ErrorIs(t, a.Seek(-1), ErrOutOfRange)
}

func TestRecordedAdapter_DepthRetrieveOnceLimitPerFrame(t *testing.T) {
	a := NewRecordedAdapter(newMemSource(3))
	require.NoError(t, a.Grab())
	_, err := a.RetrieveDepth(nil)
	require.NoError(t, err)
	_, err = a.RetrieveDepth(nil)
	require.Error(t, err)

	require.NoError(t, a.Grab())
	_, err = a.RetrieveDepth(nil)
	require.NoError(t, err, "depth limit resets on the next grab")
}

func TestRecordedAdapter_DepthROICrop(t *testing.T) {
	src := newMemSource(1)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.depths[0].Data[y*4+x] = float32(y*4 + x)
		}
	}
	a := NewRecordedAdapter(src)
	require.NoError(t, a.Grab())
	d, err := a.RetrieveDepth(&ROI{X1: 1, Y1: 1, X2: 3, Y2: 3})
	require.NoError(t, err)
	require.Equal(t, 2, d.Width)
	require.Equal(t, 2, d.Height)
	require.Equal(t, float32(5), d.At(0, 0))
	require.Equal(t, float32(10), d.At(1, 1))
}

func TestRecordedAdapter_FramesTotalAndNativeFPS(t *testing.T) {
	a := NewRecordedAdapter(newMemSource(7))
	total, ok := a.FramesTotal()
	require.True(t, ok)
	require.Equal(t, 7, total)

	fps, ok := a.NativeFPS()
	require.True(t, ok)
	require.Equal(t, 60.0, fps)
}

func TestRecordedAdapter_CloseThenGrabFails(t *testing.T) {
	a := NewRecordedAdapter(newMemSource(3))
	require.NoError(t, a.Close())
	err := a.Grab()
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
}
