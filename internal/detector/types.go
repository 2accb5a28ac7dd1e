// Package detector wraps a prebuilt inference engine mapping a left
// rectified image to a set of detections (spec §4.2). The core treats the
// engine file as an opaque handle; engine construction is an external
// collaborator (spec §1 Out-of-scope).
package detector

import (
	"errors"

	"github.com/stereotrack/stereotrack/internal/camera"
)

// ClassID is an opaque finite enumeration. The core assumes a two-valued
// enumeration (0: within-range target, 1: out-of-range target) but must
// tolerate and pass through others untouched (spec §4.2).
type ClassID int

const (
	ClassWithinRange ClassID = 0
	ClassOutOfRange  ClassID = 1
)

// BBox is a pixel-coordinate bounding box with x1<x2, y1<y2.
type BBox struct {
	X1, Y1, X2, Y2 int
}

// Width returns x2-x1.
func (b BBox) Width() int { return b.X2 - b.X1 }

// Height returns y2-y1.
func (b BBox) Height() int { return b.Y2 - b.Y1 }

// Detection is one post-NMS detector output (spec §3).
type Detection struct {
	ClassID    ClassID
	BBox       BBox
	Confidence float32
}

// Params configures engine load behavior (spec §4.2). ConfidenceThreshold
// is applied once, at load time, inside the engine — the spec forbids
// additional confidence filtering downstream (spec §9 Open Questions).
type Params struct {
	ConfidenceThreshold float32
	InputSizeHint       int
}

var ErrEngineLoadFailure = errors.New("detector: engine load failure")

// Backend is the pluggable inference surface a concrete engine binding
// implements — a hardware-accelerated runtime in production, a
// deterministic fake in tests. Isolating this from Detector mirrors the
// teacher's Parser/FrameBuilder interfaces in
// internal/lidar/network/listener.go, which exist solely so the
// orchestration logic around them can be tested without real hardware.
type Backend interface {
	// Infer returns detections for left, deterministic given identical
	// input. Implementations must not retain references to left's pixel
	// buffer after returning (spec §4.2).
	Infer(left *camera.Image) ([]Detection, error)
	// Close releases the backend's device/engine resources.
	Close() error
}

// Loader constructs a Backend bound to the opaque engine file at
// enginePath, configured with params.
type Loader func(enginePath string, params Params) (Backend, error)

// Detector wraps a loaded Backend (spec §4.2).
type Detector struct {
	backend Backend
}

// Load loads an inference engine using loader. Failure is always fatal
// (spec §7: EngineLoadFailure).
func Load(enginePath string, params Params, loader Loader) (*Detector, error) {
	backend, err := loader(enginePath, params)
	if err != nil {
		return nil, errors.Join(ErrEngineLoadFailure, err)
	}
	return &Detector{backend: backend}, nil
}

// Infer maps a left image to detections, deterministic given identical
// input (spec §4.2). A transient inference failure on one frame is a
// skippable per-frame error (spec §7: InferTransient), never fatal.
func (d *Detector) Infer(left *camera.Image) ([]Detection, error) {
	dets, err := d.backend.Infer(left)
	if err != nil {
		return nil, &TransientError{Reason: err.Error()}
	}
	return dets, nil
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.backend.Close()
}

// TransientError wraps a recoverable per-frame inference failure.
type TransientError struct {
	Reason string
}

func (e *TransientError) Error() string { return "detector: transient inference error: " + e.Reason }
