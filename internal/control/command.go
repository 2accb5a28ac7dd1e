// Package control implements the Control Surface (spec §4.7): a
// single-producer/single-consumer non-blocking command channel plus policy
// rejection for commands invalid in the orchestrator's current state.
//
// Grounded on the teacher's forwardChan pattern in cmd/lidar/lidar.go
// (buffered channel, select/default enqueue so the producer never
// blocks), generalized from a byte-packet queue to a typed command queue.
package control

import "fmt"

// Kind enumerates the control-surface command kinds (spec §4.7).
type Kind int

const (
	Start Kind = iota
	Pause
	Resume
	Skip
	ReconfigureDepth
	Stop
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "Start"
	case Pause:
		return "Pause"
	case Resume:
		return "Resume"
	case Skip:
		return "Skip"
	case ReconfigureDepth:
		return "ReconfigureDepth"
	case Stop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// Command is one control-surface message. SkipFrames is meaningful only
// for Kind == Skip (n >= 1). DepthHz/EveryFrame are meaningful only for
// Kind == ReconfigureDepth.
type Command struct {
	Kind        Kind
	SkipFrames  int
	DepthHz     float64
	EveryFrame  bool
}

// defaultQueueCapacity bounds the command queue; enqueue never blocks the
// producer because the consumer (orchestrator) drains at least once per
// frame, which vastly outpaces realistic command rates.
const defaultQueueCapacity = 16

// Queue is the non-blocking SPSC command channel (spec §4.7).
type Queue struct {
	ch chan Command
}

// NewQueue constructs an empty command Queue.
func NewQueue() *Queue {
	return &Queue{ch: make(chan Command, defaultQueueCapacity)}
}

// ErrQueueFull is returned by Enqueue when the queue's buffer is saturated.
// This should not happen in normal operation: the consumer polls the
// queue at the top of every frame iteration.
var ErrQueueFull = fmt.Errorf("control: command queue full")

// Enqueue submits cmd without blocking. Returns ErrQueueFull if the buffer
// is saturated; the caller (e.g. a GPIO interrupt handler) must not block.
func (q *Queue) Enqueue(cmd Command) error {
	select {
	case q.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Poll drains and returns all commands currently queued, in enqueue order,
// without blocking. Called by the orchestrator at the top of each loop
// iteration (spec §4.6).
func (q *Queue) Poll() []Command {
	var out []Command
	for {
		select {
		case cmd := <-q.ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
}
