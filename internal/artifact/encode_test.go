package artifact

import (
	"testing"

	"github.com/stereotrack/stereotrack/internal/depth"
	"github.com/stereotrack/stereotrack/internal/detector"
	"github.com/stretchr/testify/require"
)

func TestLabelText_WithDepth(t *testing.T) {
	det := detector.Detection{Confidence: 0.873}
	s := depth.Stats{ValidCount: 3, Mean: 12.345}
	require.Equal(t, "C:0.87 D:12.35m", labelText(det, s))
}

func TestLabelText_NoDepth(t *testing.T) {
	det := detector.Detection{Confidence: 0.5}
	require.Equal(t, "C:0.50 D:--", labelText(det, depth.Sentinel))
}

func TestAnnotate_ProducesFrameSizedImage(t *testing.T) {
	img := testImage(16, 12)
	out := annotate(img, []detector.Detection{
		{ClassID: detector.ClassWithinRange, BBox: detector.BBox{X1: 1, Y1: 1, X2: 8, Y2: 8}, Confidence: 0.6},
	}, []depth.Stats{{ValidCount: 1, Mean: 3.0}})
	require.Equal(t, 16, out.Bounds().Dx())
	require.Equal(t, 12, out.Bounds().Dy())
}
