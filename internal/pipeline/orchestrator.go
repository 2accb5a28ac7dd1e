// Package pipeline implements the Pipeline Orchestrator (spec §4.6): the
// explicit state machine driving the four-stage per-frame loop over a
// single-threaded camera handle.
//
// Grounded on the teacher's tracking_pipeline.go callback, which runs a
// per-frame staged pipeline (foreground extraction, clustering, tracking,
// persistence, publish) behind three logging streams and a throttle; here
// the stages are grab/infer/depth/housekeeping and the callback becomes an
// explicit state machine so pause/resume/seek/stop can interleave between
// frames without a data race on the camera handle (spec §5).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stereotrack/stereotrack/internal/artifact"
	"github.com/stereotrack/stereotrack/internal/camera"
	"github.com/stereotrack/stereotrack/internal/control"
	"github.com/stereotrack/stereotrack/internal/depth"
	"github.com/stereotrack/stereotrack/internal/detector"
	"github.com/stereotrack/stereotrack/internal/telemetry"
	"github.com/stereotrack/stereotrack/internal/timing"
)

// Counters accumulates the non-fatal per-session counts reported in
// stats.json's "counts" block and used to derive writer/error counters
// (spec §6, §7).
type Counters struct {
	FramesProcessed      int
	FramesSkipped        int
	FramesWithDetections int
	FramesEmpty          int
	DetectionsTotal      int

	GrabTransients  int
	InferTransients int
	DepthFailures   int
}

// Config carries the orchestrator's run-time parameters that are not
// themselves components (spec §3 depth_min/depth_max, §7 staleness).
type Config struct {
	DepthBounds      depth.Bounds
	DepthStaleFrames int
	PauseWakeup      time.Duration
}

// Orchestrator is the single-threaded owner of the camera handle and
// inference engine (spec §5). All of its unexported state is mutated only
// from the goroutine running Run; State() and Counters() are safe to call
// from other goroutines (e.g. a GPIO status LED or a stats snapshot).
type Orchestrator struct {
	cam    camera.Adapter
	det    *detector.Detector
	writer *artifact.Writer
	timing *timing.Core
	queue  *control.Queue
	stream *telemetry.Stream
	sched  *DepthSchedule
	cfg    Config

	state atomic.Int32 // telemetry.State

	lastDepthMap   *camera.DepthMap
	lastDepthIndex int
	haveLastDepth  bool

	mu       sync.Mutex
	counters Counters

	failReason string
}

// New constructs an Orchestrator in the Ready state. All components are
// exclusively owned by the orchestrator from this point on (spec §5).
func New(cam camera.Adapter, det *detector.Detector, writer *artifact.Writer, tc *timing.Core, queue *control.Queue, stream *telemetry.Stream, sched *DepthSchedule, cfg Config) *Orchestrator {
	o := &Orchestrator{
		cam:    cam,
		det:    det,
		writer: writer,
		timing: tc,
		queue:  queue,
		stream: stream,
		sched:  sched,
		cfg:    cfg,
	}
	o.state.Store(int32(telemetry.StateReady))
	return o
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() telemetry.State {
	return telemetry.State(o.state.Load())
}

// Counters returns a snapshot of the session's non-fatal counts.
func (o *Orchestrator) Counters() Counters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters
}

func (o *Orchestrator) setState(s telemetry.State, reason string) {
	o.state.Store(int32(s))
	o.stream.EmitLifecycle(telemetry.Lifecycle{NewState: s, Reason: reason})
	diagf("state -> %s (%s)", s, reason)
}

func (o *Orchestrator) warn(kind, detail string) {
	o.stream.EmitLifecycle(telemetry.Lifecycle{NewState: o.State(), Reason: kind + ": " + detail})
	opsf("warning %s: %s", kind, detail)
}

// Run drives the state machine to completion: Ready -> Running/Paused,
// until Stopped or Failed. It returns nil on a clean Stopped transition
// and a non-nil error carrying the failure reason on Failed.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		switch o.State() {
		case telemetry.StateReady:
			if !o.awaitStart(ctx) {
				return nil // context cancelled before Start; treat as a clean non-run
			}
		case telemetry.StateRunning:
			o.runOneFrame()
		case telemetry.StatePaused:
			o.runPaused(ctx)
		case telemetry.StateStopped:
			return nil
		case telemetry.StateFailed:
			return fmt.Errorf("pipeline: failed: %s", o.failReason)
		default:
			return fmt.Errorf("pipeline: unknown state %v", o.State())
		}
		if ctx.Err() != nil && o.State() != telemetry.StateStopped && o.State() != telemetry.StateFailed {
			o.setState(telemetry.StateStopped, "context cancelled")
			return nil
		}
	}
}

// awaitStart blocks (cooperatively, checking ctx) until a Start command
// arrives, honoring Stop as an immediate terminal transition. Commands
// polled in the same batch after Start are applied in order against the
// resulting state. Returns false only if ctx is cancelled first.
func (o *Orchestrator) awaitStart(ctx context.Context) bool {
	for {
		cmds := o.queue.Poll()
		for i, cmd := range cmds {
			switch cmd.Kind {
			case control.Start:
				o.setState(telemetry.StateRunning, "start command")
				for _, rest := range cmds[i+1:] {
					switch o.State() {
					case telemetry.StateRunning:
						o.applyRunningCommand(rest)
					case telemetry.StatePaused:
						o.applyPausedCommand(rest)
					}
				}
				return true
			case control.Stop:
				o.setState(telemetry.StateStopped, "stop command")
				return true
			default:
				o.rejectCommand(cmd, "not valid before Start")
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// runPaused sleeps in bounded increments, applying queued commands between
// naps, per spec §5's bounded wake-up latency suspension point.
func (o *Orchestrator) runPaused(ctx context.Context) {
	wakeup := o.cfg.PauseWakeup
	if wakeup <= 0 {
		wakeup = 100 * time.Millisecond
	}
	for _, cmd := range o.queue.Poll() {
		o.applyPausedCommand(cmd)
		if o.State() != telemetry.StatePaused {
			return
		}
	}
	select {
	case <-ctx.Done():
		o.setState(telemetry.StateStopped, "context cancelled")
	case <-time.After(wakeup):
	}
}

func (o *Orchestrator) applyPausedCommand(cmd control.Command) {
	switch cmd.Kind {
	case control.Resume:
		o.setState(telemetry.StateRunning, "resume command")
	case control.Stop:
		o.setState(telemetry.StateStopped, "stop command")
	case control.Skip:
		o.applySkip(cmd.SkipFrames)
	case control.ReconfigureDepth:
		o.applyReconfigureDepth(cmd)
	default:
		o.rejectCommand(cmd, "not valid while Paused")
	}
}

// applySkip implements the forward-seek rule (spec §4.6): Skip adjusts the
// camera cursor so that the next Grab returns frame current+n, and clears
// last_depth_map because it now belongs to a far-past frame.
func (o *Orchestrator) applySkip(n int) {
	if n < 1 {
		o.warn("IllegalCommand", "Skip requires n>=1")
		return
	}
	total, ok := o.cam.FramesTotal()
	if !ok {
		o.warn("IllegalCommand", "Skip is not valid on a live source")
		return
	}

	target := o.cam.CurrentIndex() + n
	clamped := target >= total
	if clamped {
		target = total - 1
	}

	if err := o.cam.Seek(target); err != nil {
		o.warn("OutOfRangeSeek", err.Error())
		return
	}
	o.haveLastDepth = false
	o.lastDepthMap = nil
	if clamped {
		o.warn("OutOfRangeSeek", fmt.Sprintf("skip target clamped to %d (frames_total=%d)", target, total))
	}
}

func (o *Orchestrator) applyReconfigureDepth(cmd control.Command) {
	fpsKnown := false
	nativeFPS := 0.0
	if fps, ok := o.cam.NativeFPS(); ok {
		fpsKnown, nativeFPS = true, fps
	}
	o.sched = NewDepthSchedule(nativeFPS, fpsKnown, cmd.DepthHz, cmd.EveryFrame, o.sched.SkipInterval())
	diagf("depth schedule reconfigured: skip_interval=%d", o.sched.SkipInterval())
	// last_depth_map is retained per spec §4.6.
}

func (o *Orchestrator) rejectCommand(cmd control.Command, why string) {
	o.warn("IllegalCommand", fmt.Sprintf("%s rejected: %s", cmd.Kind, why))
}

// runOneFrame executes a single iteration of the Running per-frame loop
// (spec §4.6 pseudocode). It applies any queued commands first; if a
// command transitions out of Running, the frame is not processed.
func (o *Orchestrator) runOneFrame() {
	for _, cmd := range o.queue.Poll() {
		o.applyRunningCommand(cmd)
		if o.State() != telemetry.StateRunning {
			return
		}
	}

	t0 := time.Now()
	err := o.cam.Grab()
	t1 := time.Now()

	switch {
	case err == nil:
		// continue
	case isEndOfSession(err):
		o.setState(telemetry.StateStopped, "end of session")
		return
	case isTransient(err):
		o.countGrabTransient()
		tracef("grab transient: %v", err)
		return
	default:
		o.fail("CameraUnavailable", err)
		return
	}

	left, err := o.cam.RetrieveLeft()
	if err != nil {
		if isTransient(err) {
			o.countGrabTransient()
			return
		}
		o.fail("CameraUnavailable", err)
		return
	}

	detections, err := o.det.Infer(left)
	if err != nil {
		if _, ok := err.(*detector.TransientError); ok {
			o.countInferTransient()
			tracef("infer transient: %v", err)
			return
		}
		o.fail("UnsupportedOperation", err)
		return
	}
	t2 := time.Now()

	currentIndex := o.cam.CurrentIndex()
	if o.sched.ShouldSample(currentIndex) {
		depthMap, derr := o.cam.RetrieveDepth(nil)
		if derr != nil {
			o.mu.Lock()
			o.counters.DepthFailures++
			o.mu.Unlock()
			tracef("depth retrieve failed, reusing last map: %v", derr)
		} else {
			o.lastDepthMap = depthMap
			o.lastDepthIndex = currentIndex
			o.haveLastDepth = true
		}
	}

	var stats []depth.Stats
	if o.haveLastDepth {
		stats = depth.Extract(o.lastDepthMap, detections, o.cfg.DepthBounds)
		if age := currentIndex - o.lastDepthIndex; o.cfg.DepthStaleFrames > 0 && age > o.cfg.DepthStaleFrames {
			o.warn("DepthMapStale", fmt.Sprintf("reused depth is %d frames old", age))
		}
	} else {
		stats = make([]depth.Stats, len(detections))
	}
	t3 := time.Now()

	o.writer.Dispatch(artifact.Request{
		FrameIndex: currentIndex,
		Left:       left,
		Detections: detections,
		DepthStats: stats,
	})

	housekeeping := time.Since(t3)
	wall := time.Since(t0)
	hadDetections := len(detections) > 0

	o.timing.Push(timing.StageRecord{
		Grab:         float64(t1.Sub(t0)),
		Infer:        float64(t2.Sub(t1)),
		Depth:        float64(t3.Sub(t2)),
		Housekeeping: float64(housekeeping),
	}, float64(wall), hadDetections)

	o.mu.Lock()
	o.counters.FramesProcessed++
	o.counters.DetectionsTotal += len(detections)
	if hadDetections {
		o.counters.FramesWithDetections++
	} else {
		o.counters.FramesEmpty++
	}
	o.mu.Unlock()

	snap := o.timing.Snapshot()
	globalFPS := 0.0
	if snap.WallMean > 0 {
		globalFPS = 1e9 / snap.WallMean
	}

	o.stream.EmitProgress(telemetry.FrameProgress{
		Index:              currentIndex,
		GlobalFPS:          globalFPS,
		RollingStageShares: snap,
		LastDepthStats:     summarizeDepthStats(stats),
		DetectionCount:     len(detections),
		WallMs:             float64(wall) / float64(time.Millisecond),
	})
}

// summarizeDepthStats condenses one frame's per-detection depth stats into
// the progress event's summary (spec §4.8 "last_depth_stats_summary").
func summarizeDepthStats(stats []depth.Stats) telemetry.DepthStatsSummary {
	summary := telemetry.DepthStatsSummary{DetectionCount: len(stats)}
	var sumOfMeans float64
	for _, s := range stats {
		if s.HasDepth() {
			summary.WithDepthCount++
			sumOfMeans += s.Mean
		}
	}
	if summary.WithDepthCount > 0 {
		summary.MeanOfMeansDepth = sumOfMeans / float64(summary.WithDepthCount)
	}
	return summary
}

func (o *Orchestrator) applyRunningCommand(cmd control.Command) {
	switch cmd.Kind {
	case control.Pause:
		o.setState(telemetry.StatePaused, "pause command")
	case control.Stop:
		o.setState(telemetry.StateStopped, "stop command")
	case control.ReconfigureDepth:
		o.applyReconfigureDepth(cmd)
	default:
		o.rejectCommand(cmd, "not valid while Running")
	}
}

func (o *Orchestrator) countGrabTransient() {
	o.mu.Lock()
	o.counters.GrabTransients++
	o.counters.FramesSkipped++
	o.mu.Unlock()
}

func (o *Orchestrator) countInferTransient() {
	o.mu.Lock()
	o.counters.InferTransients++
	o.counters.FramesSkipped++
	o.mu.Unlock()
}

func (o *Orchestrator) fail(reason string, err error) {
	o.failReason = fmt.Sprintf("%s: %v", reason, err)
	o.setState(telemetry.StateFailed, o.failReason)
	opsf("fatal: %s", o.failReason)
}

func isEndOfSession(err error) bool {
	return errors.Is(err, camera.ErrEndOfSession)
}

func isTransient(err error) bool {
	switch err.(type) {
	case *camera.TransientError, *detector.TransientError:
		return true
	}
	return false
}
