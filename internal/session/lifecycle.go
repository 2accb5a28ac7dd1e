package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stereotrack/stereotrack/internal/camera"
	"github.com/stereotrack/stereotrack/internal/detector"
	"github.com/stereotrack/stereotrack/internal/telemetry"
)

// NewID returns a fresh session correlation ID (spec §4.9), used as the
// sessionstore primary key and attachable to Lifecycle diagnostics.
// Grounded on the teacher's AnalysisRunManager.StartRun, which mints a
// uuid.New().String() run ID at the same point in the lifecycle.
func NewID() string {
	return uuid.New().String()
}

// OutputDir builds the per-session output directory path (spec §6):
// <root>/session_<YYYYMMDD_HHMMSS>/.
func OutputDir(root string, startedUTC time.Time) string {
	return filepath.Join(root, "session_"+startedUTC.UTC().Format("20060102_150405"))
}

// EnsureOutputDir creates dir, and its frames/ subdirectory iff
// anyArtifactEnabled, per spec §6's "frames/ # optional, present iff any
// artifact was written".
func EnsureOutputDir(dir string, anyArtifactEnabled bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: create output dir: %w", err)
	}
	if anyArtifactEnabled {
		if err := os.MkdirAll(filepath.Join(dir, "frames"), 0o755); err != nil {
			return fmt.Errorf("session: create frames dir: %w", err)
		}
	}
	return nil
}

// WriteStatsJSON writes s to <dir>/stats.json (spec §6).
func WriteStatsJSON(dir string, s Summary) error {
	data, err := s.MarshalStatsJSON()
	if err != nil {
		return fmt.Errorf("session: marshal stats.json: %w", err)
	}
	path := filepath.Join(dir, "stats.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write stats.json: %w", err)
	}
	return nil
}

// InitConfig parameterizes the multi-step initialization sequence
// (spec §4.9).
type InitConfig struct {
	// WarmupGrabs is the number of grab+retrieve_depth cycles to perform
	// and discard before the session is Ready. Certain depth backends
	// need 1-2 warm-up grabs before they produce a usable depth map.
	WarmupGrabs int
}

// Init runs the Session Lifecycle's multi-step initialization (spec §4.9):
// opening the camera, warming the depth backend, loading the inference
// engine, and finalizing — emitting a Lifecycle milestone before each step
// so a slow open can be surfaced to an operator. On any failure it closes
// whatever was already opened and returns a Failed-classified error; on
// success the stream is left in the Ready state, matching the
// orchestrator's own starting state.
func Init(
	cfg InitConfig,
	openCamera func() (camera.Adapter, error),
	loadEngine func() (*detector.Detector, error),
	stream *telemetry.Stream,
) (camera.Adapter, *detector.Detector, error) {
	stream.EmitLifecycle(telemetry.Lifecycle{NewState: telemetry.StateInit, Reason: "opening_camera"})
	cam, err := openCamera()
	if err != nil {
		stream.EmitLifecycle(telemetry.Lifecycle{NewState: telemetry.StateFailed, Reason: "CameraUnavailable: " + err.Error()})
		return nil, nil, fmt.Errorf("session: open camera: %w", err)
	}

	stream.EmitLifecycle(telemetry.Lifecycle{NewState: telemetry.StateInit, Reason: "warming_depth_backend"})
	for i := 0; i < cfg.WarmupGrabs; i++ {
		if err := cam.Grab(); err != nil {
			cam.Close()
			stream.EmitLifecycle(telemetry.Lifecycle{NewState: telemetry.StateFailed, Reason: "CameraUnavailable: warm-up grab failed: " + err.Error()})
			return nil, nil, fmt.Errorf("session: warm-up grab %d: %w", i, err)
		}
		// Warm-up depth retrieval failures are expected for some backends
		// on their first cycle(s) and are discarded, per spec §4.9.
		_, _ = cam.RetrieveDepth(nil)
	}

	stream.EmitLifecycle(telemetry.Lifecycle{NewState: telemetry.StateInit, Reason: "loading_engine"})
	det, err := loadEngine()
	if err != nil {
		cam.Close()
		stream.EmitLifecycle(telemetry.Lifecycle{NewState: telemetry.StateFailed, Reason: "EngineLoadFailure: " + err.Error()})
		return nil, nil, fmt.Errorf("session: load engine: %w", err)
	}

	stream.EmitLifecycle(telemetry.Lifecycle{NewState: telemetry.StateInit, Reason: "finalizing"})
	stream.EmitLifecycle(telemetry.Lifecycle{NewState: telemetry.StateReady})
	return cam, det, nil
}

// Teardown releases cam and det. Either may be nil (e.g. Init failed
// before the engine loaded).
func Teardown(cam camera.Adapter, det *detector.Detector) error {
	var camErr, detErr error
	if cam != nil {
		camErr = cam.Close()
	}
	if det != nil {
		detErr = det.Close()
	}
	switch {
	case camErr != nil && detErr != nil:
		return fmt.Errorf("session: teardown: camera: %v; detector: %v", camErr, detErr)
	case camErr != nil:
		return fmt.Errorf("session: teardown: camera: %w", camErr)
	case detErr != nil:
		return fmt.Errorf("session: teardown: detector: %w", detErr)
	default:
		return nil
	}
}

// Releaser guarantees Teardown runs at most once regardless of how many
// exit paths (Stopped, Failed, panic-recover) call Release (spec §4.9:
// "Teardown ... MUST release the camera handle and the inference engine
// exactly once").
type Releaser struct {
	once sync.Once
	cam  camera.Adapter
	det  *detector.Detector
	err  error
}

// NewReleaser wraps cam and det for single-release teardown.
func NewReleaser(cam camera.Adapter, det *detector.Detector) *Releaser {
	return &Releaser{cam: cam, det: det}
}

// Release tears down the wrapped camera and detector exactly once.
// Subsequent calls return the first call's result.
func (r *Releaser) Release() error {
	r.once.Do(func() {
		r.err = Teardown(r.cam, r.det)
	})
	return r.err
}
