package camera

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// dirManifest describes a DirSource recording (spec §4.1: recorded
// sources are opaque containers interpreted only by the Camera Adapter).
type dirManifest struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Count    int     `json:"count"`
	FPS      float64 `json:"fps"`
	FPSKnown bool    `json:"fps_known"`
}

// DirSource is a FrameSource over a plain directory of raw frame/depth
// pairs plus a manifest.json — a stand-in for the vendor-specific SVO
// container the spec treats as an external collaborator (§1: engine and
// container construction are out of scope). Grounded on the teacher's
// MockPCAPReader split (internal/lidar/network/pcap_interface.go): a real
// binary container format behind the same interface a synthetic one
// satisfies for tests.
type DirSource struct {
	dir      string
	manifest dirManifest
}

// OpenDirSource reads dir/manifest.json and validates it describes a
// non-empty recording.
func OpenDirSource(dir string) (*DirSource, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("camera: read manifest: %w", err)
	}
	var m dirManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("camera: parse manifest: %w", err)
	}
	if m.Width <= 0 || m.Height <= 0 || m.Count <= 0 {
		return nil, fmt.Errorf("camera: invalid manifest %+v", m)
	}
	return &DirSource{dir: dir, manifest: m}, nil
}

// WriteDirSource writes a manifest plus raw .rgb/.depth pairs for frames,
// building a recording OpenDirSource can read back. Used by tests and by
// tooling that converts some other capture into STEREOTRACK's format.
func WriteDirSource(dir string, fps float64, fpsKnown bool, frames []*Image, depths []*DepthMap) error {
	if len(frames) != len(depths) {
		return fmt.Errorf("camera: frames/depths length mismatch: %d vs %d", len(frames), len(depths))
	}
	if len(frames) == 0 {
		return fmt.Errorf("camera: refusing to write an empty recording")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("camera: create recording dir: %w", err)
	}
	w, h := frames[0].Width, frames[0].Height
	for i, img := range frames {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("frame_%06d.rgb", i)), img.Pix, 0o644); err != nil {
			return fmt.Errorf("camera: write frame %d image: %w", i, err)
		}
		raw := make([]byte, len(depths[i].Data)*4)
		for j, v := range depths[i].Data {
			binary.LittleEndian.PutUint32(raw[j*4:], math.Float32bits(v))
		}
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("frame_%06d.depth", i)), raw, 0o644); err != nil {
			return fmt.Errorf("camera: write frame %d depth: %w", i, err)
		}
	}
	manifest, err := json.Marshal(dirManifest{Width: w, Height: h, Count: len(frames), FPS: fps, FPSKnown: fpsKnown})
	if err != nil {
		return fmt.Errorf("camera: marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), manifest, 0o644)
}

func (d *DirSource) Len() int { return d.manifest.Count }

func (d *DirSource) NativeFPS() (float64, bool) { return d.manifest.FPS, d.manifest.FPSKnown }

func (d *DirSource) Frame(index int) (*Image, *DepthMap, error) {
	if index < 0 || index >= d.manifest.Count {
		return nil, nil, fmt.Errorf("camera: frame index %d out of range [0,%d)", index, d.manifest.Count)
	}
	w, h := d.manifest.Width, d.manifest.Height

	rgb, err := os.ReadFile(filepath.Join(d.dir, fmt.Sprintf("frame_%06d.rgb", index)))
	if err != nil {
		return nil, nil, fmt.Errorf("camera: read frame %d image: %w", index, err)
	}
	if len(rgb) != w*h*3 {
		return nil, nil, fmt.Errorf("camera: frame %d image size mismatch: got %d want %d", index, len(rgb), w*h*3)
	}

	depthRaw, err := os.ReadFile(filepath.Join(d.dir, fmt.Sprintf("frame_%06d.depth", index)))
	if err != nil {
		return nil, nil, fmt.Errorf("camera: read frame %d depth: %w", index, err)
	}
	if len(depthRaw) != w*h*4 {
		return nil, nil, fmt.Errorf("camera: frame %d depth size mismatch: got %d want %d", index, len(depthRaw), w*h*4)
	}
	data := make([]float32, w*h)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(depthRaw[i*4:]))
	}

	return &Image{Width: w, Height: h, Pix: rgb}, &DepthMap{Width: w, Height: h, Data: data}, nil
}
