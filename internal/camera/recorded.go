package camera

import (
	"fmt"
	"sync"
)

// FrameSource supplies decoded frames for a recorded session. A real
// implementation decodes an opaque ZED-family SVO container; this
// abstraction exists so RecordedAdapter can be exercised without one,
// mirroring the teacher's PCAPReader/MockPCAPReader split
// (internal/lidar/network/pcap_interface.go) that isolates replay logic
// from the concrete container format.
type FrameSource interface {
	// Len returns the total number of frames in the session.
	Len() int
	// Frame returns the left image and depth map for the frame at index.
	// The depth map may be nil if this source doesn't carry per-frame
	// depth; RecordedAdapter does not compute depth from the image, and
	// RetrieveDepth reports a TransientError for such a frame.
	Frame(index int) (*Image, *DepthMap, error)
	// NativeFPS returns the session's recording framerate, when known.
	NativeFPS() (float64, bool)
}

// RecordedAdapter implements Adapter over a FrameSource representing a
// previously captured stereo session file (spec §4.1).
//
// The cursor field tracks the index that the *next* Grab will deliver,
// not the index most recently delivered. This sidesteps the off-by-one
// class of bug spec §9 calls out: a design that instead tracks "last
// delivered index" and pre-increments inside Grab requires a seek target
// adjustment (target-1) to keep the "next grab returns target exactly"
// contract (spec §4.1, invariant #4 in spec §8); tracking "pending index"
// makes Seek a direct assignment with no adjustment needed.
type RecordedAdapter struct {
	mu     sync.Mutex
	source FrameSource
	total  int

	cursor       int // index the next Grab() will deliver
	currentIndex int // index most recently delivered by Grab(), -1 before first grab
	ended        bool
	depthTaken   bool // RetrieveDepth already called for the current frame
	closed       bool
}

// NewRecordedAdapter opens a recorded session backed by source.
func NewRecordedAdapter(source FrameSource) *RecordedAdapter {
	return &RecordedAdapter{
		source:       source,
		total:        source.Len(),
		currentIndex: -1,
	}
}

func (r *RecordedAdapter) Grab() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return &FatalError{Reason: "grab on closed adapter"}
	}
	if r.cursor >= r.total {
		r.ended = true
		return ErrEndOfSession
	}

	idx := r.cursor
	r.cursor++
	r.currentIndex = idx
	r.depthTaken = false
	return nil
}

func (r *RecordedAdapter) RetrieveLeft() (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentIndex < 0 {
		return nil, fmt.Errorf("camera: RetrieveLeft before first Grab")
	}
	img, _, err := r.source.Frame(r.currentIndex)
	if err != nil {
		return nil, &TransientError{Reason: err.Error()}
	}
	return img, nil
}

func (r *RecordedAdapter) RetrieveDepth(roi *ROI) (*DepthMap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentIndex < 0 {
		return nil, fmt.Errorf("camera: RetrieveDepth before first Grab")
	}
	if r.depthTaken {
		return nil, fmt.Errorf("camera: RetrieveDepth already called for frame %d", r.currentIndex)
	}
	_, depth, err := r.source.Frame(r.currentIndex)
	if err != nil {
		return nil, &TransientError{Reason: err.Error()}
	}
	if depth == nil {
		return nil, &TransientError{Reason: "no depth available for this frame"}
	}
	r.depthTaken = true
	if roi == nil {
		return depth, nil
	}
	return cropDepth(depth, *roi), nil
}

func cropDepth(d *DepthMap, roi ROI) *DepthMap {
	x1, y1, x2, y2 := clipROI(roi, d.Width, d.Height)
	w, h := x2-x1, y2-y1
	if w <= 0 || h <= 0 {
		return &DepthMap{Width: 0, Height: 0}
	}
	out := &DepthMap{Width: w, Height: h, Data: make([]float32, w*h)}
	for y := 0; y < h; y++ {
		srcRow := (y1 + y) * d.Width
		copy(out.Data[y*w:(y+1)*w], d.Data[srcRow+x1:srcRow+x2])
	}
	return out
}

func clipROI(roi ROI, w, h int) (int, int, int, int) {
	x1 := max(0, roi.X1)
	y1 := max(0, roi.Y1)
	x2 := min(w, roi.X2)
	y2 := min(h, roi.Y2)
	return x1, y1, x2, y2
}

func (r *RecordedAdapter) Seek(target int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if target < 0 || target >= r.total {
		return ErrOutOfRange
	}
	r.cursor = target
	r.ended = false
	return nil
}

func (r *RecordedAdapter) CurrentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentIndex
}

func (r *RecordedAdapter) FramesTotal() (int, bool) {
	return r.total, true
}

func (r *RecordedAdapter) NativeFPS() (float64, bool) {
	return r.source.NativeFPS()
}

func (r *RecordedAdapter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
