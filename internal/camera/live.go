package camera

import "sync"

// Device abstracts the vendor SDK handle for a live stereo camera. A real
// implementation binds to the ZED-family SDK; this interface isolates
// Live Adapter logic from that binding for testability.
type Device interface {
	// Grab blocks until the next frame is captured, or returns an error.
	Grab() error
	// Left returns the rectified left image for the most recently grabbed frame.
	Left() (*Image, error)
	// Depth returns the depth map for the most recently grabbed frame.
	Depth(roi *ROI) (*DepthMap, error)
	// NativeFPS returns the device's configured capture framerate.
	NativeFPS() float64
	// Close releases the device handle.
	Close() error
}

// LiveAdapter implements Adapter over a live Device (spec §4.1). Seek is
// never supported on a live source; FramesTotal is always unbounded.
type LiveAdapter struct {
	mu           sync.Mutex
	dev          Device
	currentIndex int
	depthTaken   bool
	closed       bool
}

// NewLiveAdapter opens a live stereo source bound to dev.
func NewLiveAdapter(dev Device) *LiveAdapter {
	return &LiveAdapter{dev: dev, currentIndex: -1}
}

func (l *LiveAdapter) Grab() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return &FatalError{Reason: "grab on closed adapter"}
	}
	if err := l.dev.Grab(); err != nil {
		return err
	}
	l.currentIndex++
	l.depthTaken = false
	return nil
}

func (l *LiveAdapter) RetrieveLeft() (*Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dev.Left()
}

func (l *LiveAdapter) RetrieveDepth(roi *ROI) (*DepthMap, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depthTaken {
		return nil, &TransientError{Reason: "depth already retrieved for this frame"}
	}
	d, err := l.dev.Depth(roi)
	if err != nil {
		return nil, err
	}
	l.depthTaken = true
	return d, nil
}

func (l *LiveAdapter) Seek(target int) error {
	return ErrSeekUnsupported
}

func (l *LiveAdapter) CurrentIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentIndex
}

func (l *LiveAdapter) FramesTotal() (int, bool) {
	return 0, false
}

func (l *LiveAdapter) NativeFPS() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fps := l.dev.NativeFPS()
	if fps <= 0 {
		return 0, false
	}
	return fps, true
}

func (l *LiveAdapter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.dev.Close()
}
