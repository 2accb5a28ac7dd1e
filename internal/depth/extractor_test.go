package depth

import (
	"math"
	"testing"

	"github.com/stereotrack/stereotrack/internal/camera"
	"github.com/stereotrack/stereotrack/internal/detector"
	"github.com/stretchr/testify/require"
)

var defaultBounds = Bounds{Min: 1.0, Max: 40.0}

func makeDepth(w, h int, fill func(x, y int) float32) *camera.DepthMap {
	d := &camera.DepthMap{Width: w, Height: h, Data: make([]float32, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d.Data[y*w+x] = fill(x, y)
		}
	}
	return d
}

func TestExtract_BBoxClippingOutOfFrame(t *testing.T) {
	// spec §8 boundary: x1=-5,x2=2,y1=0,y2=2 in a (H=10,W=10) frame clips
	// to (0,0,2,2), aggregating over at most 4 samples.
	d := makeDepth(10, 10, func(x, y int) float32 { return 5.0 })
	dets := []detector.Detection{{ClassID: detector.ClassWithinRange, BBox: detector.BBox{X1: -5, Y1: 0, X2: 2, Y2: 2}}}
	stats := Extract(d, dets, defaultBounds)
	require.Len(t, stats, 1)
	require.Equal(t, 4, stats[0].ValidCount)
	require.Equal(t, 5.0, stats[0].Mean)
}

func TestExtract_AllInvalidYieldsSentinel(t *testing.T) {
	d := makeDepth(4, 4, func(x, y int) float32 { return float32(math.NaN()) })
	dets := []detector.Detection{{ClassID: detector.ClassWithinRange, BBox: detector.BBox{X1: 0, Y1: 0, X2: 4, Y2: 4}}}
	stats := Extract(d, dets, defaultBounds)
	require.Equal(t, Sentinel, stats[0])
	require.False(t, stats[0].HasDepth())
}

func TestExtract_SinglePixelValidROI(t *testing.T) {
	// spec §8 boundary: single-pixel ROI with a valid sample gives
	// valid_count=1, stdev=0.0, mean=min=max=sample.
	d := makeDepth(4, 4, func(x, y int) float32 { return float32(math.NaN()) })
	d.Data[1*4+1] = 6.5
	dets := []detector.Detection{{ClassID: detector.ClassWithinRange, BBox: detector.BBox{X1: 1, Y1: 1, X2: 2, Y2: 2}}}
	stats := Extract(d, dets, defaultBounds)
	require.Equal(t, 1, stats[0].ValidCount)
	require.Equal(t, 0.0, stats[0].Stdev)
	require.Equal(t, 6.5, stats[0].Mean)
	require.Equal(t, 6.5, stats[0].Min)
	require.Equal(t, 6.5, stats[0].Max)
}

func TestExtract_BboxEntirelyOutsideFrame(t *testing.T) {
	d := makeDepth(4, 4, func(x, y int) float32 { return 5.0 })
	dets := []detector.Detection{{ClassID: detector.ClassWithinRange, BBox: detector.BBox{X1: 10, Y1: 10, X2: 20, Y2: 20}}}
	stats := Extract(d, dets, defaultBounds)
	require.Equal(t, Sentinel, stats[0])
}

func TestExtract_MixedValidInvalidMasksCorrectly(t *testing.T) {
	// Three of the four samples are invalid (zero, negative, out-of-range);
	// only one is valid.
	d := makeDepth(4, 1, func(x, y int) float32 {
		vals := []float32{0, -1, 2.0, 100.0}
		return vals[x]
	})
	dets := []detector.Detection{{ClassID: detector.ClassWithinRange, BBox: detector.BBox{X1: 0, Y1: 0, X2: 4, Y2: 1}}}
	stats := Extract(d, dets, defaultBounds)
	require.Equal(t, 1, stats[0].ValidCount) // only 2.0 is within [1,40]
	require.Equal(t, 2.0, stats[0].Mean)
}

func TestExtract_OutOfRangeClassNeverGetsDepthStats(t *testing.T) {
	d := makeDepth(4, 4, func(x, y int) float32 { return 5.0 })
	dets := []detector.Detection{{ClassID: detector.ClassOutOfRange, BBox: detector.BBox{X1: 0, Y1: 0, X2: 4, Y2: 4}}}
	stats := Extract(d, dets, defaultBounds)
	require.Equal(t, Sentinel, stats[0])
}

func TestExtract_MeanWithinMinMax(t *testing.T) {
	// spec §8 invariant #5: for class 0 with valid_count>=1,
	// depth_min <= mean <= depth_max and min <= mean <= max.
	d := makeDepth(4, 4, func(x, y int) float32 { return float32(2 + x + y) })
	dets := []detector.Detection{{ClassID: detector.ClassWithinRange, BBox: detector.BBox{X1: 0, Y1: 0, X2: 4, Y2: 4}}}
	stats := Extract(d, dets, defaultBounds)
	s := stats[0]
	require.True(t, s.HasDepth())
	require.GreaterOrEqual(t, s.Mean, defaultBounds.Min)
	require.LessOrEqual(t, s.Mean, defaultBounds.Max)
	require.GreaterOrEqual(t, s.Mean, s.Min)
	require.LessOrEqual(t, s.Mean, s.Max)
}

func TestExtract_MultipleDetectionsAligned(t *testing.T) {
	d := makeDepth(4, 4, func(x, y int) float32 { return 10.0 })
	dets := []detector.Detection{
		{ClassID: detector.ClassWithinRange, BBox: detector.BBox{X1: 0, Y1: 0, X2: 2, Y2: 2}},
		{ClassID: detector.ClassOutOfRange, BBox: detector.BBox{X1: 2, Y1: 2, X2: 4, Y2: 4}},
	}
	stats := Extract(d, dets, defaultBounds)
	require.Len(t, stats, 2)
	require.True(t, stats[0].HasDepth())
	require.False(t, stats[1].HasDepth())
}
