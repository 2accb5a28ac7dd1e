package camera

import "fmt"

// RecordedFrameSourceOpener opens a recorded session file and returns a
// FrameSource over it. Real deployments register a decoder for the
// ZED-family SVO container; tests register an in-memory fake.
type RecordedFrameSourceOpener func(path string) (FrameSource, error)

// LiveDeviceOpener opens a live camera device and returns a Device bound
// to it. Real deployments register a binding to the vendor SDK; tests
// register a fake.
type LiveDeviceOpener func(devicePath string, cfg Config) (Device, error)

// Open opens a stereo source per spec §4.1: source descriptor distinguishes
// live vs file, config carries resolution hint, framerate, depth quality,
// and clipping bounds. openRecorded/openLive are the concrete backends to
// use for each source kind.
func Open(desc SourceDescriptor, cfg Config, openRecorded RecordedFrameSourceOpener, openLive LiveDeviceOpener) (Adapter, error) {
	switch desc.Kind {
	case SourceRecorded:
		if desc.FilePath == "" {
			return nil, fmt.Errorf("%w: recorded source requires a file path", ErrInvalidSession)
		}
		src, err := openRecorded(desc.FilePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}
		return NewRecordedAdapter(src), nil
	case SourceLive:
		dev, err := openLive(desc.DevicePath, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
		}
		return NewLiveAdapter(dev), nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind", ErrConfigurationRejected)
	}
}
