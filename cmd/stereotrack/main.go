// Command stereotrack drives one stereo-camera tracking session end to
// end: open the source, run the Pipeline Orchestrator to completion or
// until signaled, and persist stats.json plus a sessionstore row.
//
// Grounded on the teacher's cmd/lidar/lidar.go main(): flag-configured
// binary, signal.NotifyContext+sync.WaitGroup graceful shutdown, and a
// dedicated goroutine draining a telemetry channel for logging.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/stereotrack/stereotrack/internal/artifact"
	"github.com/stereotrack/stereotrack/internal/camera"
	"github.com/stereotrack/stereotrack/internal/config"
	"github.com/stereotrack/stereotrack/internal/control"
	"github.com/stereotrack/stereotrack/internal/depth"
	"github.com/stereotrack/stereotrack/internal/detector"
	"github.com/stereotrack/stereotrack/internal/pipeline"
	"github.com/stereotrack/stereotrack/internal/session"
	"github.com/stereotrack/stereotrack/internal/sessionstore"
	"github.com/stereotrack/stereotrack/internal/telemetry"
	"github.com/stereotrack/stereotrack/internal/timing"
)

var (
	recordingDir   = flag.String("recording", "", "path to a recorded session directory (manifest.json + frame_NNNNNN.rgb/.depth)")
	liveDevice     = flag.String("device", "", "live camera device identifier; mutually exclusive with -recording")
	configPath     = flag.String("config", "", "optional path to a pipeline.defaults.json-shaped tuning file")
	outputRoot     = flag.String("output-root", ".", "root directory under which session_<timestamp>/ is created")
	sessionDBPath  = flag.String("session-db", "sessions.db", "path to the sqlite session-history database")
	enginePath     = flag.String("engine", "", "path to the inference engine file")
	useFakeEngine  = flag.Bool("fake-engine", false, "use a deterministic fake detector backend instead of loading -engine (development only)")
	warmupGrabs    = flag.Int("warmup-grabs", 1, "number of grab+retrieve_depth cycles to discard before the session is Ready")
	confidence     = flag.Float64("confidence", 0.5, "detector confidence threshold")
)

func main() {
	flag.Parse()

	closeLogs := setupLogging()
	defer closeLogs()

	cfg := config.EmptyPipelineConfig()
	if *configPath != "" {
		loaded, err := config.LoadPipelineConfig(*configPath)
		if err != nil {
			log.Fatalf("stereotrack: load config: %v", err)
		}
		cfg = loaded
	}
	if cfg.ConfidenceThreshold == nil {
		cfg.ConfidenceThreshold = confidence
	}

	if (*recordingDir == "") == (*liveDevice == "") {
		log.Fatal("stereotrack: exactly one of -recording or -device must be set")
	}

	stream := telemetry.New()
	queue := control.NewQueue()

	startedUTC := time.Now().UTC()
	outDir := session.OutputDir(*outputRoot, startedUTC)
	anyArtifact := cfg.GetSaveAnnotatedImage() || cfg.GetSaveLabelFile()
	if err := session.EnsureOutputDir(outDir, anyArtifact); err != nil {
		log.Fatalf("stereotrack: %v", err)
	}

	// Recorded sources must deliver frame 0 first (spec scenario S1): a
	// warm-up grab against a RecordedAdapter would consume it before Running
	// ever starts. Warm-up grabs only make sense for live sources settling
	// auto-exposure/auto-gain.
	grabs := *warmupGrabs
	if *recordingDir != "" {
		grabs = 0
	}
	cam, det, err := session.Init(
		session.InitConfig{WarmupGrabs: grabs},
		func() (camera.Adapter, error) { return openCamera(cfg) },
		func() (*detector.Detector, error) { return loadEngine(cfg) },
		stream,
	)
	if err != nil {
		writeFailureSummary(startedUTC, outDir, err)
		log.Fatalf("stereotrack: session init: %v", err)
	}
	releaser := session.NewReleaser(cam, det)
	defer releaser.Release()

	writer, err := artifact.New(artifact.Config{
		SaveAnnotatedImage: cfg.GetSaveAnnotatedImage(),
		SaveLabelFile:      cfg.GetSaveLabelFile(),
		JPEGQuality:        cfg.GetJPEGQuality(),
		OutputDir:          filepath.Join(outDir, "frames"),
	})
	if err != nil {
		log.Fatalf("stereotrack: artifact writer: %v", err)
	}
	defer writer.Close()

	tc := timing.New()

	nativeFPS, fpsKnown := cam.NativeFPS()
	everyFrame := cfg.GetDepthEveryFrame() || cfg.GetDepthHz() == 0
	sched := pipeline.NewDepthSchedule(nativeFPS, fpsKnown, cfg.GetDepthHz(), everyFrame, 0)

	orch := pipeline.New(cam, det, writer, tc, queue, stream, sched, pipeline.Config{
		DepthBounds:      depth.Bounds{Min: cfg.GetDepthMin(), Max: cfg.GetDepthMax()},
		DepthStaleFrames: cfg.GetDepthStaleFrames(),
		PauseWakeup:      cfg.GetPauseWakeupInterval(),
	})

	var gpio *control.GPIOSurface
	if cfg.GetGPIOEnabled() {
		gpio, err = control.OpenGPIOSurface(control.GPIOConfig{
			ButtonPin:    cfg.GetGPIOButtonPin(),
			StatusLEDPin: cfg.GetGPIOStatusLEDPin(),
		}, queue)
		if err != nil {
			log.Printf("stereotrack: GPIO control surface unavailable, continuing without it: %v", err)
			gpio = nil
		} else {
			gpio.Run()
			defer gpio.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range stream.Progress() {
			if gpio != nil {
				gpio.ReflectState(orch.State())
			}
			log.Printf("frame %d: %d detections, %.1fms wall", ev.Index, ev.DetectionCount, ev.WallMs)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, ev := range stream.RecvLifecycle() {
			if ev.Reason != "" {
				log.Printf("lifecycle -> %s: %s", ev.NewState, ev.Reason)
			} else {
				log.Printf("lifecycle -> %s", ev.NewState)
			}
		}
	}()

	if err := queue.Enqueue(control.Command{Kind: control.Start}); err != nil {
		log.Fatalf("stereotrack: enqueue start: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = queue.Enqueue(control.Command{Kind: control.Stop})
	}()

	runErr := orch.Run(ctx)
	stream.Close()
	wg.Wait()

	endedUTC := time.Now().UTC()
	outcome := session.OutcomeEnded
	reason := ""
	if runErr != nil {
		outcome = session.OutcomeFailed
		reason = runErr.Error()
	} else if orch.State() == telemetry.StateStopped {
		outcome = session.OutcomeStopped
	}

	summary := session.Summary{
		ID:         session.NewID(),
		StartedUTC: startedUTC,
		EndedUTC:   endedUTC,
		Outcome:    outcome,
		Reason:     reason,
		Counters:   orch.Counters(),
		Timing:     tc.Snapshot(),
		Writer:     writer.Stats(),
	}

	if err := session.WriteStatsJSON(outDir, summary); err != nil {
		log.Printf("stereotrack: write stats.json: %v", err)
	}

	store, err := sessionstore.Open(*sessionDBPath)
	if err != nil {
		log.Printf("stereotrack: open session history database: %v", err)
	} else {
		defer store.Close()
		if err := store.InsertSession(summary.ID, summary); err != nil {
			log.Printf("stereotrack: record session history: %v", err)
		}
	}

	if runErr != nil {
		log.Fatalf("stereotrack: %v", runErr)
	}
}

// setupLogging wires the pipeline and artifact packages' three-stream
// ops/diag/trace loggers, grounded on the teacher's cmd/radar/radar.go
// VELOCITY_LIDAR_{OPS,DEBUG,TRACE}_LOG env-var scheme. Ops and diag default
// to stderr via log.Default() so they are never silent no-ops even when no
// env vars are set; trace stays off by default since it is per-frame
// verbose. STEREOTRACK_LOG routes all three streams to a single file,
// mirroring the teacher's legacy VELOCITY_DEBUG_LOG fallback.
func setupLogging() func() {
	var logFiles []*os.File
	openLog := func(path string) io.Writer {
		if path == "" {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Printf("stereotrack: create directory for %s: %v", path, err)
			return nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Printf("stereotrack: open %s: %v", path, err)
			return nil
		}
		logFiles = append(logFiles, f)
		return f
	}
	closeAll := func() {
		for _, f := range logFiles {
			f.Close()
		}
	}

	if legacy := os.Getenv("STEREOTRACK_LOG"); legacy != "" {
		w := openLog(legacy)
		pipeline.SetLegacyLogger(w)
		artifact.SetLogWriters(w, w)
		return closeAll
	}

	ops := io.Writer(log.Default().Writer())
	diag := io.Writer(log.Default().Writer())
	var trace io.Writer
	if p := os.Getenv("STEREOTRACK_OPS_LOG"); p != "" {
		if w := openLog(p); w != nil {
			ops = w
		}
	}
	if p := os.Getenv("STEREOTRACK_DIAG_LOG"); p != "" {
		if w := openLog(p); w != nil {
			diag = w
		}
	}
	if p := os.Getenv("STEREOTRACK_TRACE_LOG"); p != "" {
		trace = openLog(p)
	}

	pipeline.SetLogWriters(ops, diag, trace)
	artifact.SetLogWriters(ops, diag)
	return closeAll
}

func openCamera(cfg *config.PipelineConfig) (camera.Adapter, error) {
	quality, err := camera.ParseDepthQuality(cfg.GetDepthQuality())
	if err != nil {
		return nil, err
	}
	camCfg := camera.Config{
		ResolutionHint:  cfg.GetResolutionHint(),
		TargetNativeFPS: cfg.GetTargetNativeFPS(),
		DepthQuality:    quality,
		DepthMin:        cfg.GetDepthMin(),
		DepthMax:        cfg.GetDepthMax(),
	}

	desc := camera.SourceDescriptor{}
	if *recordingDir != "" {
		desc.Kind = camera.SourceRecorded
		desc.FilePath = *recordingDir
	} else {
		desc.Kind = camera.SourceLive
		desc.DevicePath = *liveDevice
	}

	return camera.Open(desc, camCfg, openRecordedDir, openLiveUnavailable)
}

func openRecordedDir(path string) (camera.FrameSource, error) {
	return camera.OpenDirSource(path)
}

// openLiveUnavailable stands in for the vendor SDK binding this build does
// not include; wiring a real ZED-family SDK binding belongs to a platform
// build tag, not this reference implementation.
func openLiveUnavailable(devicePath string, cfg camera.Config) (camera.Device, error) {
	return nil, fmt.Errorf("stereotrack: vendor SDK binding not included in this build (requested device %q)", devicePath)
}

func loadEngine(cfg *config.PipelineConfig) (*detector.Detector, error) {
	params := detector.Params{
		ConfidenceThreshold: float32(cfg.GetConfidenceThreshold()),
		InputSizeHint:       cfg.GetInputSizeHint(),
	}
	if *useFakeEngine {
		return detector.Load(*enginePath, params, func(string, detector.Params) (detector.Backend, error) {
			return &detector.FakeBackend{}, nil
		})
	}
	return detector.Load(*enginePath, params, func(enginePath string, params detector.Params) (detector.Backend, error) {
		return nil, fmt.Errorf("stereotrack: no inference engine binding registered for %q (build with an engine binding or pass -fake-engine)", enginePath)
	})
}

func writeFailureSummary(startedUTC time.Time, outDir string, initErr error) {
	summary := session.Summary{
		ID:         session.NewID(),
		StartedUTC: startedUTC,
		EndedUTC:   time.Now().UTC(),
		Outcome:    session.OutcomeFailed,
		Reason:     initErr.Error(),
	}
	if err := session.WriteStatsJSON(outDir, summary); err != nil {
		log.Printf("stereotrack: write failure stats.json: %v", err)
	}
}
