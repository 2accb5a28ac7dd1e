// Package depth implements the Depth Extractor (spec §4.3): for each
// detection, clips its bbox to the frame, filters invalid depth samples,
// and produces per-detection aggregates. A single aggregate computed over
// unmasked pixels would be contaminated by the pervasive invalid samples
// in stereo depth maps (sensor noise, occlusion, reflective surfaces);
// the sentinel "no depth" outcome is therefore first-class, not an error.
package depth

import (
	"math"

	"github.com/stereotrack/stereotrack/internal/camera"
	"github.com/stereotrack/stereotrack/internal/detector"
	"gonum.org/v1/gonum/stat"
)

// Bounds configures the valid-sample interval (spec §3 defaults: 1.0m-40.0m).
type Bounds struct {
	Min float64
	Max float64
}

// Stats is the per-detection depth aggregate (spec §3). All fields are
// sentinel-valued (zero ValidCount, zero-valued Mean/Min/Max/Stdev) when
// ValidCount == 0 — never mixed with a numerical aggregate (spec §4.3,
// GLOSSARY "Depth sentinel").
type Stats struct {
	ValidCount int
	Mean       float64
	Min        float64
	Max        float64
	Stdev      float64
}

// Sentinel is the "no depth available" outcome.
var Sentinel = Stats{}

// HasDepth reports whether s carries a non-sentinel aggregate.
func (s Stats) HasDepth() bool { return s.ValidCount > 0 }

// Extract computes DepthStats for each detection against depthMap
// (spec §4.3 steps 1-4). Class-1 ("out-of-range target") detections are
// never paired with depth statistics (spec §3) and always yield Sentinel.
func Extract(depthMap *camera.DepthMap, detections []detector.Detection, bounds Bounds) []Stats {
	out := make([]Stats, len(detections))
	for i, det := range detections {
		if det.ClassID == detector.ClassOutOfRange {
			out[i] = Sentinel
			continue
		}
		out[i] = extractOne(depthMap, det.BBox, bounds)
	}
	return out
}

func extractOne(depthMap *camera.DepthMap, bbox detector.BBox, bounds Bounds) Stats {
	x1, y1, x2, y2 := clip(bbox, depthMap.Width, depthMap.Height)
	if x2 <= x1 || y2 <= y1 {
		return Sentinel
	}

	var valid []float64
	for y := y1; y < y2; y++ {
		row := y * depthMap.Width
		for x := x1; x < x2; x++ {
			v := depthMap.Data[row+x]
			if isValidSample(v, bounds) {
				valid = append(valid, float64(v))
			}
		}
	}
	if len(valid) == 0 {
		return Sentinel
	}

	mean, stdev := stat.MeanStdDev(valid, nil)
	if len(valid) == 1 {
		stdev = 0.0
	}
	lo, hi := valid[0], valid[0]
	for _, v := range valid[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return Stats{
		ValidCount: len(valid),
		Mean:       mean,
		Min:        lo,
		Max:        hi,
		Stdev:      stdev,
	}
}

// clip restricts bbox to the frame, per spec §4.3 step 1.
func clip(b detector.BBox, w, h int) (int, int, int, int) {
	x1 := max(0, b.X1)
	y1 := max(0, b.Y1)
	x2 := min(w, b.X2)
	y2 := min(h, b.Y2)
	return x1, y1, x2, y2
}

// isValidSample implements the mask from spec §3/§4.3 step 2: not NaN,
// not ±Inf, strictly positive, and within [bounds.Min, bounds.Max].
func isValidSample(v float32, bounds Bounds) bool {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	if f <= 0 {
		return false
	}
	return f >= bounds.Min && f <= bounds.Max
}
