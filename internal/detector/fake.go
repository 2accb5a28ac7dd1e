package detector

import "github.com/stereotrack/stereotrack/internal/camera"

// FakeBackend is a deterministic Backend for tests and for development
// without real hardware. It returns a fixed sequence of detection lists,
// cycling if Infer is called more times than len(Sequence).
type FakeBackend struct {
	Sequence []FakeResult
	calls    int
	closed   bool
}

// FakeResult pairs a detection list with an optional per-call error.
type FakeResult struct {
	Detections []Detection
	Err        error
}

func (f *FakeBackend) Infer(left *camera.Image) ([]Detection, error) {
	if len(f.Sequence) == 0 {
		f.calls++
		return nil, nil
	}
	r := f.Sequence[f.calls%len(f.Sequence)]
	f.calls++
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Detections, nil
}

func (f *FakeBackend) Close() error {
	f.closed = true
	return nil
}
