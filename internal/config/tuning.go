package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the conventional location of a pipeline tuning file.
// Nothing loads it automatically; the default for each unset field comes
// from the matching Get* accessor below.
const DefaultConfigPath = "config/pipeline.defaults.json"

// PipelineConfig represents the root configuration for a stereo-vision
// tracking session. It is read at startup only; neither stats.json nor
// the session-history record stores it.
type PipelineConfig struct {
	// Camera params
	DepthMin        *float64 `json:"depth_min,omitempty"`
	DepthMax        *float64 `json:"depth_max,omitempty"`
	DepthQuality    *string  `json:"depth_quality,omitempty"` // "fast" | "balanced" | "best"
	ResolutionHint  *string  `json:"resolution_hint,omitempty"`
	TargetNativeFPS *float64 `json:"target_native_fps,omitempty"`

	// Detector params
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	InputSizeHint       *int     `json:"input_size_hint,omitempty"`

	// Depth decimation
	DepthHz         *float64 `json:"depth_hz,omitempty"`   // 0 means "every_frame"
	DepthEveryFrame *bool    `json:"depth_every_frame,omitempty"`
	DepthStaleFrames *int    `json:"depth_stale_frames,omitempty"`

	// Artifact writer params
	SaveAnnotatedImage *bool   `json:"save_annotated_image,omitempty"`
	SaveLabelFile      *bool   `json:"save_label_file,omitempty"`
	JPEGQuality        *int    `json:"jpeg_quality,omitempty"`
	OutputRoot         *string `json:"output_root,omitempty"`

	// Control surface params
	PauseWakeupInterval *string `json:"pause_wakeup_interval,omitempty"` // duration string like "100ms"
	GPIOEnabled         *bool   `json:"gpio_enabled,omitempty"`
	GPIOButtonPin       *string `json:"gpio_button_pin,omitempty"`
	GPIOStatusLEDPin    *string `json:"gpio_status_led_pin,omitempty"`
}

// Helper functions to create pointers.
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPipelineConfig returns a PipelineConfig with all fields set to nil.
// Use LoadPipelineConfig to load actual values from a defaults file.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are internally consistent.
func (c *PipelineConfig) Validate() error {
	if c.DepthMin != nil && c.DepthMax != nil && *c.DepthMin >= *c.DepthMax {
		return fmt.Errorf("depth_min (%f) must be less than depth_max (%f)", *c.DepthMin, *c.DepthMax)
	}
	if c.ConfidenceThreshold != nil {
		if *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1 {
			return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
		}
	}
	if c.DepthHz != nil && *c.DepthHz < 0 {
		return fmt.Errorf("depth_hz must be non-negative, got %f", *c.DepthHz)
	}
	if c.JPEGQuality != nil {
		if *c.JPEGQuality < 1 || *c.JPEGQuality > 100 {
			return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", *c.JPEGQuality)
		}
	}
	if c.DepthQuality != nil {
		switch *c.DepthQuality {
		case "fast", "balanced", "best":
		default:
			return fmt.Errorf("depth_quality must be one of fast|balanced|best, got %q", *c.DepthQuality)
		}
	}
	if c.PauseWakeupInterval != nil && *c.PauseWakeupInterval != "" {
		if _, err := time.ParseDuration(*c.PauseWakeupInterval); err != nil {
			return fmt.Errorf("invalid pause_wakeup_interval %q: %w", *c.PauseWakeupInterval, err)
		}
	}
	return nil
}

// GetDepthMin returns the depth_min value or the default (1.0 m, spec §3).
func (c *PipelineConfig) GetDepthMin() float64 {
	if c.DepthMin == nil {
		return 1.0
	}
	return *c.DepthMin
}

// GetDepthMax returns the depth_max value or the default (40.0 m, spec §3).
func (c *PipelineConfig) GetDepthMax() float64 {
	if c.DepthMax == nil {
		return 40.0
	}
	return *c.DepthMax
}

// GetResolutionHint returns the requested resolution hint, or "" (adapter
// default) if unset.
func (c *PipelineConfig) GetResolutionHint() string {
	if c.ResolutionHint == nil {
		return ""
	}
	return *c.ResolutionHint
}

// GetTargetNativeFPS returns the requested capture framerate, or 0 (adapter
// default) if unset.
func (c *PipelineConfig) GetTargetNativeFPS() float64 {
	if c.TargetNativeFPS == nil {
		return 0
	}
	return *c.TargetNativeFPS
}

// GetInputSizeHint returns the detector's input size hint, or 0 (backend
// default) if unset.
func (c *PipelineConfig) GetInputSizeHint() int {
	if c.InputSizeHint == nil {
		return 0
	}
	return *c.InputSizeHint
}

// GetDepthQuality returns the depth_quality preset or the default.
func (c *PipelineConfig) GetDepthQuality() string {
	if c.DepthQuality == nil {
		return "balanced"
	}
	return *c.DepthQuality
}

// GetConfidenceThreshold returns the detector confidence threshold or the default.
func (c *PipelineConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.5
	}
	return *c.ConfidenceThreshold
}

// GetDepthEveryFrame returns whether depth is sampled on every frame.
func (c *PipelineConfig) GetDepthEveryFrame() bool {
	if c.DepthEveryFrame == nil {
		return false
	}
	return *c.DepthEveryFrame
}

// GetDepthHz returns the configured depth sampling frequency or the default.
func (c *PipelineConfig) GetDepthHz() float64 {
	if c.DepthHz == nil {
		return 10.0
	}
	return *c.DepthHz
}

// GetDepthStaleFrames returns the reused-depth-map staleness threshold
// (in frames) used to emit the DepthMapStale warning, or the default.
func (c *PipelineConfig) GetDepthStaleFrames() int {
	if c.DepthStaleFrames == nil {
		return 30
	}
	return *c.DepthStaleFrames
}

// GetSaveAnnotatedImage returns whether annotated JPEGs are written.
func (c *PipelineConfig) GetSaveAnnotatedImage() bool {
	if c.SaveAnnotatedImage == nil {
		return false
	}
	return *c.SaveAnnotatedImage
}

// GetSaveLabelFile returns whether YOLO-format label files are written.
func (c *PipelineConfig) GetSaveLabelFile() bool {
	if c.SaveLabelFile == nil {
		return false
	}
	return *c.SaveLabelFile
}

// GetJPEGQuality returns the JPEG encode quality or the default.
func (c *PipelineConfig) GetJPEGQuality() int {
	if c.JPEGQuality == nil {
		return 85
	}
	return *c.JPEGQuality
}

// GetOutputRoot returns the artifact output root directory or the default.
func (c *PipelineConfig) GetOutputRoot() string {
	if c.OutputRoot == nil {
		return "."
	}
	return *c.OutputRoot
}

// GetPauseWakeupInterval parses and returns the paused-loop wakeup cadence,
// or the default (spec §5: "bounded wake-up latency, e.g., 100 ms").
func (c *PipelineConfig) GetPauseWakeupInterval() time.Duration {
	if c.PauseWakeupInterval == nil || *c.PauseWakeupInterval == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.PauseWakeupInterval)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetGPIOEnabled returns whether the physical GPIO control surface is active.
func (c *PipelineConfig) GetGPIOEnabled() bool {
	if c.GPIOEnabled == nil {
		return false
	}
	return *c.GPIOEnabled
}

// GetGPIOButtonPin returns the configured GPIO pin name for the pause/resume button.
func (c *PipelineConfig) GetGPIOButtonPin() string {
	if c.GPIOButtonPin == nil {
		return "GPIO17"
	}
	return *c.GPIOButtonPin
}

// GetGPIOStatusLEDPin returns the configured GPIO pin name for the status LED.
func (c *PipelineConfig) GetGPIOStatusLEDPin() string {
	if c.GPIOStatusLEDPin == nil {
		return "GPIO27"
	}
	return *c.GPIOStatusLEDPin
}
