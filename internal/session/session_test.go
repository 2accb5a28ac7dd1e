package session

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stereotrack/stereotrack/internal/artifact"
	"github.com/stereotrack/stereotrack/internal/camera"
	"github.com/stereotrack/stereotrack/internal/detector"
	"github.com/stereotrack/stereotrack/internal/pipeline"
	"github.com/stereotrack/stereotrack/internal/telemetry"
	"github.com/stereotrack/stereotrack/internal/timing"
)

func TestNewID_IsUniqueAndNonEmpty(t *testing.T) {
	a, b := NewID(), NewID()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestOutputDir_MatchesTimestampedSchema(t *testing.T) {
	ts := time.Date(2026, 7, 30, 14, 5, 9, 0, time.UTC)
	dir := OutputDir("/data", ts)
	require.Equal(t, filepath.Join("/data", "session_20260730_140509"), dir)
}

func TestEnsureOutputDir_CreatesFramesOnlyWhenEnabled(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "session_x")
	require.NoError(t, EnsureOutputDir(dir, false))
	_, err := os.Stat(filepath.Join(dir, "frames"))
	require.True(t, os.IsNotExist(err))

	dir2 := filepath.Join(root, "session_y")
	require.NoError(t, EnsureOutputDir(dir2, true))
	info, err := os.Stat(filepath.Join(dir2, "frames"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestWriteStatsJSON_WritesReadableFile(t *testing.T) {
	dir := t.TempDir()
	s := Summary{
		ID:         NewID(),
		StartedUTC: time.Now(),
		EndedUTC:   time.Now(),
		Outcome:    OutcomeEnded,
	}
	require.NoError(t, WriteStatsJSON(dir, s))
	data, err := os.ReadFile(filepath.Join(dir, "stats.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"outcome": "ended"`)
}

func TestMarshalStatsJSON_NaNBecomesNull(t *testing.T) {
	s := Summary{Outcome: OutcomeEnded, Timing: timing.Snapshot{Grab: timing.StageSnapshot{Mean: math.NaN()}}}
	data, err := s.MarshalStatsJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), `"mean": null`)
}

func TestMarshalStatsJSON_CarriesCountsAndWriter(t *testing.T) {
	s := Summary{
		Outcome: OutcomeStopped,
		Counters: pipeline.Counters{
			FramesProcessed:      10,
			FramesWithDetections: 4,
			FramesEmpty:          6,
			DetectionsTotal:      7,
		},
		Writer: artifact.Counts{JPEGWritten: 10, TXTWritten: 10, Drops: 1},
	}
	data, err := s.MarshalStatsJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), `"frames_processed": 10`)
	require.Contains(t, string(data), `"jpeg_written": 10`)
}

func TestMarshalStatsJSON_FiniteTimingConvertsNsToMs(t *testing.T) {
	s := Summary{
		Outcome: OutcomeEnded,
		Timing: timing.Snapshot{
			Grab:     timing.StageSnapshot{Mean: 2_000_000, SharePct: 50},
			WallMean: 4_000_000,
		},
	}
	data, err := s.MarshalStatsJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), `"mean": 2,`)
	require.Contains(t, string(data), `"wall_mean": 4,`)
	require.Contains(t, string(data), `"fps_global": 250`)
}

// fakeCam is a minimal camera.Adapter for Init/Teardown tests.
type fakeCam struct {
	grabErr    error
	closeCalls int
}

func (f *fakeCam) Grab() error                                    { return f.grabErr }
func (f *fakeCam) RetrieveLeft() (*camera.Image, error)            { return &camera.Image{}, nil }
func (f *fakeCam) RetrieveDepth(roi *camera.ROI) (*camera.DepthMap, error) {
	return nil, errors.New("warming up")
}
func (f *fakeCam) Seek(target int) error     { return nil }
func (f *fakeCam) CurrentIndex() int         { return 0 }
func (f *fakeCam) FramesTotal() (int, bool)  { return 0, false }
func (f *fakeCam) NativeFPS() (float64, bool) { return 0, false }
func (f *fakeCam) Close() error {
	f.closeCalls++
	return nil
}

func TestInit_HappyPathEmitsReadyAndReturnsComponents(t *testing.T) {
	cam := &fakeCam{}
	stream := telemetry.New()

	backend := &detector.FakeBackend{}
	gotCam, gotDet, err := Init(InitConfig{WarmupGrabs: 2}, func() (camera.Adapter, error) {
		return cam, nil
	}, func() (*detector.Detector, error) {
		return detector.Load("engine.plan", detector.Params{}, func(string, detector.Params) (detector.Backend, error) {
			return backend, nil
		})
	}, stream)

	require.NoError(t, err)
	require.Same(t, cam, gotCam)
	require.NotNil(t, gotDet)

	events := stream.RecvLifecycle()
	require.NotEmpty(t, events)
	require.Equal(t, telemetry.StateReady, events[len(events)-1].NewState)
}

func TestInit_CameraOpenFailureEmitsFailed(t *testing.T) {
	stream := telemetry.New()
	_, _, err := Init(InitConfig{}, func() (camera.Adapter, error) {
		return nil, errors.New("no device")
	}, func() (*detector.Detector, error) {
		t.Fatal("loadEngine should not be called")
		return nil, nil
	}, stream)
	require.Error(t, err)

	events := stream.RecvLifecycle()
	require.Equal(t, telemetry.StateFailed, events[len(events)-1].NewState)
}

func TestInit_EngineLoadFailureClosesCamera(t *testing.T) {
	cam := &fakeCam{}
	stream := telemetry.New()
	_, _, err := Init(InitConfig{}, func() (camera.Adapter, error) {
		return cam, nil
	}, func() (*detector.Detector, error) {
		return nil, errors.New("bad engine")
	}, stream)
	require.Error(t, err)
	require.Equal(t, 1, cam.closeCalls)
}

func TestInit_WarmupGrabFailureClosesCameraAndFails(t *testing.T) {
	cam := &fakeCam{grabErr: errors.New("device glitch")}
	stream := telemetry.New()
	_, _, err := Init(InitConfig{WarmupGrabs: 1}, func() (camera.Adapter, error) {
		return cam, nil
	}, func() (*detector.Detector, error) {
		t.Fatal("loadEngine should not be called")
		return nil, nil
	}, stream)
	require.Error(t, err)
	require.Equal(t, 1, cam.closeCalls)
}

func TestReleaser_ReleasesExactlyOnce(t *testing.T) {
	cam := &fakeCam{}
	r := NewReleaser(cam, nil)
	require.NoError(t, r.Release())
	require.NoError(t, r.Release())
	require.Equal(t, 1, cam.closeCalls)
}

func TestSafe_NonFiniteBecomesNil(t *testing.T) {
	require.Nil(t, safe(math.NaN()))
	require.Nil(t, safe(math.Inf(1)))
	v := safe(3.5)
	require.NotNil(t, v)
	require.Equal(t, 3.5, *v)
}
