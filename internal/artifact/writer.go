// Package artifact implements the Artifact Writer (spec §4.4): best-effort
// JPEG annotation and YOLO-format label-file output, gated by a single-slot
// backpressure buffer so a slow disk never blocks the orchestrator.
//
// Grounded on the teacher's fire-and-forget dispatch idiom in
// tracking_pipeline.go (publishing to a channel and dropping on
// contention rather than blocking the tracking loop), generalized from
// one publish target to two file writers sharing one slot.
package artifact

import (
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/stereotrack/stereotrack/internal/camera"
	"github.com/stereotrack/stereotrack/internal/depth"
	"github.com/stereotrack/stereotrack/internal/detector"
)

// Request is one frame's worth of artifact-writer input.
type Request struct {
	FrameIndex int
	Left       *camera.Image
	Detections []detector.Detection
	DepthStats []depth.Stats // aligned with Detections; may be nil
}

// Counts mirrors the "writer" block of stats.json (spec §6).
type Counts struct {
	JPEGWritten int
	TXTWritten  int
	Drops       int
}

// Config carries the toggles and paths a Writer needs (spec §4.4).
type Config struct {
	SaveAnnotatedImage bool
	SaveLabelFile      bool
	JPEGQuality        int
	OutputDir          string // timestamped directory, created by the session lifecycle
}

// Writer dispatches one in-flight write at a time. A Dispatch call while a
// previous write is still running drops the new request and increments
// drops, per spec §4.2/§4.4: "the pipeline never blocks on I/O."
type Writer struct {
	cfg Config

	mu      sync.Mutex
	busy    bool
	jpegN   int64
	txtN    int64
	dropN   int64
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Writer. If either toggle is set and cfg.OutputDir is
// non-empty, the directory is created eagerly so the first Dispatch does
// not pay mkdir latency.
func New(cfg Config) (*Writer, error) {
	if (cfg.SaveAnnotatedImage || cfg.SaveLabelFile) && cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("artifact: create output dir: %w", err)
		}
	}
	return &Writer{cfg: cfg, closeCh: make(chan struct{})}, nil
}

// Dispatch submits req for best-effort writing. It never blocks: if a
// previous write is still in flight, req is dropped and the drop counter
// incremented. Returns whether the request was accepted.
func (w *Writer) Dispatch(req Request) bool {
	if !w.cfg.SaveAnnotatedImage && !w.cfg.SaveLabelFile {
		return false
	}

	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		atomic.AddInt64(&w.dropN, 1)
		return false
	}
	w.busy = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			w.busy = false
			w.mu.Unlock()
		}()
		w.write(req)
	}()
	return true
}

// Close waits for any in-flight write to finish. Safe to call once, after
// the orchestrator has stopped issuing Dispatch calls.
func (w *Writer) Close() {
	w.wg.Wait()
}

// Stats returns a point-in-time view of the write counters.
func (w *Writer) Stats() Counts {
	return Counts{
		JPEGWritten: int(atomic.LoadInt64(&w.jpegN)),
		TXTWritten:  int(atomic.LoadInt64(&w.txtN)),
		Drops:       int(atomic.LoadInt64(&w.dropN)),
	}
}

func (w *Writer) write(req Request) {
	base := fmt.Sprintf("frame_%06d", req.FrameIndex)

	if w.cfg.SaveAnnotatedImage && req.Left != nil {
		path := filepath.Join(w.cfg.OutputDir, base+".jpg")
		if err := w.writeJPEG(path, req); err != nil {
			logWriterFailure("jpeg", req.FrameIndex, err)
		} else {
			atomic.AddInt64(&w.jpegN, 1)
		}
	}

	if w.cfg.SaveLabelFile && req.Left != nil {
		path := filepath.Join(w.cfg.OutputDir, base+".txt")
		if err := w.writeLabels(path, req); err != nil {
			logWriterFailure("label", req.FrameIndex, err)
		} else {
			atomic.AddInt64(&w.txtN, 1)
		}
	}
}

func (w *Writer) writeJPEG(path string, req Request) error {
	img := annotate(req.Left, req.Detections, req.DepthStats)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	quality := w.cfg.JPEGQuality
	if quality <= 0 {
		quality = 85
	}
	return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
}

func (w *Writer) writeLabels(path string, req Request) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteYOLOLabels(f, req.Left.Width, req.Left.Height, req.Detections)
}

// logWriterFailure reports a per-frame best-effort write failure on the ops
// log stream. The failure is not counted: neither the writer's Counts nor
// the orchestrator's Counters has a field for it. The writer never aborts
// or retries.
func logWriterFailure(kind string, frameIndex int, err error) {
	opsf("artifact: %s write failed for frame %d: %v", kind, frameIndex, err)
}
