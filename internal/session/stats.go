// Package session implements the Session Lifecycle (spec §4.9): multi-step
// initialization with discrete progress milestones, guaranteed single-
// release teardown, and the end-of-session stats.json summary (spec §6).
//
// Grounded on the teacher's AnalysisRunManager
// (internal/lidar/analysis_run_manager.go), which tracks a run's
// start time, frame/cluster counters, and a uuid-keyed run ID across
// Start/Complete/Fail; here the run becomes a camera/detector session and
// CompleteRun's AnalysisStats becomes the stats.json Summary.
package session

import (
	"encoding/json"
	"math"
	"time"

	"github.com/stereotrack/stereotrack/internal/artifact"
	"github.com/stereotrack/stereotrack/internal/pipeline"
	"github.com/stereotrack/stereotrack/internal/timing"
)

// Outcome is the terminal state recorded in stats.json's session.outcome
// field (spec §6).
type Outcome string

const (
	OutcomeStopped Outcome = "stopped"
	OutcomeEnded   Outcome = "ended"
	OutcomeFailed  Outcome = "failed"
)

// Summary aggregates everything persisted to stats.json at session end
// (spec §6). Timing is a raw timing.Snapshot (nanoseconds); MarshalStatsJSON
// converts to the milliseconds the schema specifies.
type Summary struct {
	ID         string
	StartedUTC time.Time
	EndedUTC   time.Time
	Outcome    Outcome
	Reason     string

	Counters pipeline.Counters
	Timing   timing.Snapshot
	Writer   artifact.Counts
}

type stageJSON struct {
	Mean     *float64 `json:"mean"`
	SharePct *float64 `json:"share_pct"`
}

type statsJSON struct {
	Session struct {
		StartedUTC string `json:"started_utc"`
		EndedUTC   string `json:"ended_utc"`
		Outcome    string `json:"outcome"`
		Reason     string `json:"reason,omitempty"`
	} `json:"session"`
	Counts struct {
		FramesProcessed      int `json:"frames_processed"`
		FramesSkipped        int `json:"frames_skipped"`
		FramesWithDetections int `json:"frames_with_detections"`
		FramesEmpty          int `json:"frames_empty"`
		DetectionsTotal      int `json:"detections_total"`
	} `json:"counts"`
	TimingMs struct {
		Grab         stageJSON `json:"grab"`
		Infer        stageJSON `json:"infer"`
		Depth        stageJSON `json:"depth"`
		Housekeeping stageJSON `json:"housekeeping"`
		WallMean     *float64  `json:"wall_mean"`
		WallP50      *float64  `json:"wall_p50"`
		WallP95      *float64  `json:"wall_p95"`
		FPSGlobal    *float64  `json:"fps_global"`
	} `json:"timing_ms"`
	DetectionVsEmptyMs struct {
		DetectionMean *float64 `json:"detection_mean"`
		EmptyMean     *float64 `json:"empty_mean"`
		DeltaMs       *float64 `json:"delta_ms"`
		DeltaPct      *float64 `json:"delta_pct"`
		Significant   bool     `json:"significant"`
	} `json:"detection_vs_empty_ms"`
	Writer struct {
		JPEGWritten int `json:"jpeg_written"`
		TXTWritten  int `json:"txt_written"`
		Drops       int `json:"drops"`
	} `json:"writer"`
}

// nsToMs converts a nanosecond duration to milliseconds, or nil if the
// result isn't finite (spec §6: "NaN/Inf are replaced by null").
func nsToMs(ns float64) *float64 {
	return safe(ns / 1e6)
}

func safe(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func stage(s timing.StageSnapshot) stageJSON {
	return stageJSON{Mean: nsToMs(s.Mean), SharePct: safe(s.SharePct)}
}

// MarshalStatsJSON renders s in the exact stats.json shape (spec §6),
// indented for operator readability.
func (s Summary) MarshalStatsJSON() ([]byte, error) {
	var out statsJSON
	out.Session.StartedUTC = s.StartedUTC.UTC().Format(time.RFC3339)
	out.Session.EndedUTC = s.EndedUTC.UTC().Format(time.RFC3339)
	out.Session.Outcome = string(s.Outcome)
	out.Session.Reason = s.Reason

	out.Counts.FramesProcessed = s.Counters.FramesProcessed
	out.Counts.FramesSkipped = s.Counters.FramesSkipped
	out.Counts.FramesWithDetections = s.Counters.FramesWithDetections
	out.Counts.FramesEmpty = s.Counters.FramesEmpty
	out.Counts.DetectionsTotal = s.Counters.DetectionsTotal

	out.TimingMs.Grab = stage(s.Timing.Grab)
	out.TimingMs.Infer = stage(s.Timing.Infer)
	out.TimingMs.Depth = stage(s.Timing.Depth)
	out.TimingMs.Housekeeping = stage(s.Timing.Housekeeping)
	out.TimingMs.WallMean = nsToMs(s.Timing.WallMean)
	out.TimingMs.WallP50 = nsToMs(s.Timing.WallP50)
	out.TimingMs.WallP95 = nsToMs(s.Timing.WallP95)
	if s.Timing.WallMean > 0 {
		out.TimingMs.FPSGlobal = safe(1e9 / s.Timing.WallMean)
	}

	dve := s.Timing.DetectionVsEmpty
	out.DetectionVsEmptyMs.DetectionMean = nsToMs(dve.DetectionMean)
	out.DetectionVsEmptyMs.EmptyMean = nsToMs(dve.EmptyMean)
	out.DetectionVsEmptyMs.DeltaMs = nsToMs(dve.DeltaMs)
	out.DetectionVsEmptyMs.DeltaPct = safe(dve.DeltaPct)
	out.DetectionVsEmptyMs.Significant = dve.Significant

	out.Writer.JPEGWritten = s.Writer.JPEGWritten
	out.Writer.TXTWritten = s.Writer.TXTWritten
	out.Writer.Drops = s.Writer.Drops

	return json.MarshalIndent(out, "", "  ")
}
