// Package telemetry implements the Telemetry Stream (spec §4.8): two
// event kinds. FrameProgress is lossy (subscribers must tolerate drops);
// Lifecycle is lossless. Emission never blocks the orchestrator beyond an
// O(1) enqueue.
//
// Grounded on the teacher's non-blocking forwarding channel in
// cmd/lidar/lidar.go (forwardPacketAsync): a buffered channel plus a
// select/default drop path for the lossy stream. The lossless Lifecycle
// stream instead uses a mutex-guarded growable queue so "never blocks the
// producer" and "never drops an event" can both hold.
package telemetry

import (
	"sync"

	"github.com/stereotrack/stereotrack/internal/timing"
)

// DepthStatsSummary condenses one frame's per-detection depth stats for
// progress reporting (spec §4.8: "last_depth_stats_summary").
type DepthStatsSummary struct {
	DetectionCount   int
	WithDepthCount   int
	MeanOfMeansDepth float64
}

// FrameProgress is the lossy per-frame event (spec §4.8).
type FrameProgress struct {
	Index              int
	GlobalFPS          float64
	RollingStageShares timing.Snapshot
	LastDepthStats     DepthStatsSummary
	DetectionCount     int
	WallMs             float64
}

// State mirrors the orchestrator's state machine (spec §4.6).
type State int

const (
	StateInit State = iota
	StateReady
	StateRunning
	StatePaused
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Lifecycle is the lossless state-transition/diagnostic event (spec §4.8).
type Lifecycle struct {
	NewState State
	Reason   string // present iff the transition carries an explanation (e.g. Failed, policy rejection)
}

// defaultProgressCapacity bounds memory for the lossy stream; beyond this
// many unread events, new FrameProgress events are dropped (spec §4.8).
const defaultProgressCapacity = 64

// Stream owns the two telemetry channels. A single producer (the
// orchestrator goroutine) and a single consumer per stream are expected.
type Stream struct {
	progress chan FrameProgress

	mu        sync.Mutex
	lifecycle []Lifecycle
	notify    chan struct{}
	closed    bool

	progressDrops int
}

// New constructs a Stream.
func New() *Stream {
	return &Stream{
		progress: make(chan FrameProgress, defaultProgressCapacity),
		notify:   make(chan struct{}, 1),
	}
}

// Progress returns the read side of the FrameProgress channel.
func (s *Stream) Progress() <-chan FrameProgress { return s.progress }

// EmitProgress is an O(1) non-blocking enqueue; if the channel is full the
// event is dropped and the drop counter incremented (spec §4.8).
func (s *Stream) EmitProgress(ev FrameProgress) {
	select {
	case s.progress <- ev:
	default:
		s.progressDrops++
	}
}

// ProgressDrops returns the number of FrameProgress events dropped so far.
func (s *Stream) ProgressDrops() int { return s.progressDrops }

// EmitLifecycle appends ev to the lossless queue in O(1) and wakes any
// blocked RecvLifecycle caller. Never drops and never blocks the caller.
func (s *Stream) EmitLifecycle(ev Lifecycle) {
	s.mu.Lock()
	s.lifecycle = append(s.lifecycle, ev)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// RecvLifecycle blocks until at least one Lifecycle event is available (or
// the stream is closed), then drains and returns all queued events in
// enqueue order.
func (s *Stream) RecvLifecycle() []Lifecycle {
	for {
		s.mu.Lock()
		if len(s.lifecycle) > 0 {
			out := s.lifecycle
			s.lifecycle = nil
			s.mu.Unlock()
			return out
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil
		}
		<-s.notify
	}
}

// Close marks the stream closed so blocked RecvLifecycle callers return.
// Call only after the producer goroutine has stopped emitting.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	close(s.progress)
}
