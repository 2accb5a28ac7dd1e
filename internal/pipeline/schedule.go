package pipeline

import "math"

// DepthSchedule decides, for each grabbed frame index, whether the
// orchestrator should retrieve a fresh depth map or reuse the last one
// (spec §4.6 "Depth schedule").
//
// defaultLiveFrameInterval is the fallback used when the source is live
// and native_fps is unknown (spec §4.6: "the schedule is expressed in
// frames directly"). Open Question (SPEC_FULL.md, resolved in DESIGN.md):
// absent a configured frame-count override, every 3rd frame is sampled —
// a conservative middle ground between the default depth_hz=10 and a
// typical 30fps sensor.
const defaultLiveFrameInterval = 3

type DepthSchedule struct {
	skipInterval int
}

// NewDepthSchedule builds a schedule from the camera's reported native
// frame rate (if known), the configured depth_hz, and the every_frame
// override.
func NewDepthSchedule(nativeFPS float64, fpsKnown bool, depthHz float64, everyFrame bool, fallbackEveryKFrames int) *DepthSchedule {
	if everyFrame {
		return &DepthSchedule{skipInterval: 1}
	}
	if fpsKnown && depthHz > 0 {
		interval := int(math.Round(nativeFPS / depthHz))
		return &DepthSchedule{skipInterval: max(1, interval)}
	}
	if fallbackEveryKFrames < 1 {
		fallbackEveryKFrames = defaultLiveFrameInterval
	}
	return &DepthSchedule{skipInterval: fallbackEveryKFrames}
}

// ShouldSample reports whether frameIndex is a depth-sampling frame
// (spec §4.6: "current_index mod skip_interval == 0").
func (s *DepthSchedule) ShouldSample(frameIndex int) bool {
	if frameIndex < 0 {
		return false
	}
	return frameIndex%s.skipInterval == 0
}

// SkipInterval exposes the computed interval, mainly for diagnostics and
// tests.
func (s *DepthSchedule) SkipInterval() int { return s.skipInterval }
