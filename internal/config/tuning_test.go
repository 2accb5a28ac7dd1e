package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadPipelineConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, `{}`)
	cfg, err := LoadPipelineConfig(path)
	require.NoError(t, err)

	require.Equal(t, 1.0, cfg.GetDepthMin())
	require.Equal(t, 40.0, cfg.GetDepthMax())
	require.Equal(t, "balanced", cfg.GetDepthQuality())
	require.Equal(t, 0.5, cfg.GetConfidenceThreshold())
	require.Equal(t, 10.0, cfg.GetDepthHz())
	require.False(t, cfg.GetDepthEveryFrame())
	require.Equal(t, 30, cfg.GetDepthStaleFrames())
	require.False(t, cfg.GetSaveAnnotatedImage())
	require.False(t, cfg.GetSaveLabelFile())
	require.Equal(t, 85, cfg.GetJPEGQuality())
	require.Equal(t, 100*time.Millisecond, cfg.GetPauseWakeupInterval())
	require.False(t, cfg.GetGPIOEnabled())
}

func TestLoadPipelineConfig_PartialOverride(t *testing.T) {
	path := writeConfigFile(t, `{"depth_hz": 20, "save_label_file": true, "jpeg_quality": 95}`)
	cfg, err := LoadPipelineConfig(path)
	require.NoError(t, err)

	require.Equal(t, 20.0, cfg.GetDepthHz())
	require.True(t, cfg.GetSaveLabelFile())
	require.Equal(t, 95, cfg.GetJPEGQuality())
	// Unrelated fields keep their defaults.
	require.Equal(t, 1.0, cfg.GetDepthMin())
	require.False(t, cfg.GetSaveAnnotatedImage())
}

func TestLoadPipelineConfig_RejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := LoadPipelineConfig(path)
	require.Error(t, err)
}

func TestLoadPipelineConfig_RejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.json")
	big := make([]byte, 2*1024*1024)
	for i := range big {
		big[i] = ' '
	}
	require.NoError(t, os.WriteFile(path, big, 0o644))

	_, err := LoadPipelineConfig(path)
	require.Error(t, err)
}

func TestPipelineConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PipelineConfig
		wantErr bool
	}{
		{"depth min >= max", PipelineConfig{DepthMin: ptrFloat64(40), DepthMax: ptrFloat64(1)}, true},
		{"confidence out of range", PipelineConfig{ConfidenceThreshold: ptrFloat64(1.5)}, true},
		{"negative depth_hz", PipelineConfig{DepthHz: ptrFloat64(-1)}, true},
		{"bad jpeg quality", PipelineConfig{JPEGQuality: ptrInt(0)}, true},
		{"bad depth quality label", PipelineConfig{DepthQuality: ptrString("ultra")}, true},
		{"bad pause interval", PipelineConfig{PauseWakeupInterval: ptrString("soon")}, true},
		{"valid", PipelineConfig{DepthMin: ptrFloat64(1), DepthMax: ptrFloat64(10)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPipelineConfig_GPIODefaults(t *testing.T) {
	cfg := EmptyPipelineConfig()
	require.Equal(t, "GPIO17", cfg.GetGPIOButtonPin())
	require.Equal(t, "GPIO27", cfg.GetGPIOStatusLEDPin())

	custom := EmptyPipelineConfig()
	custom.GPIOButtonPin = ptrString("GPIO5")
	require.Equal(t, "GPIO5", custom.GetGPIOButtonPin())
}
