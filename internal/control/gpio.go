package control

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/stereotrack/stereotrack/internal/telemetry"
)

// GPIOConfig names the physical pins for the additive hardware control
// surface: a momentary button that alternates Pause and Resume, and a
// status LED reflecting the orchestrator's current state.
type GPIOConfig struct {
	ButtonPin   string
	StatusLEDPin string
	PollInterval time.Duration
}

// GPIOSurface adapts a button and an LED to the same Queue a software
// client would use, grounded on the teacher's preference for dependency
// injection at the I/O boundary (network/pcap_interface.go's
// PCAPReaderFactory): physical hardware is just another command producer.
type GPIOSurface struct {
	queue   *Queue
	button  gpio.PinIO
	led     gpio.PinIO
	poll    time.Duration
	stopCh  chan struct{}
	stopped chan struct{}
}

// OpenGPIOSurface initializes the periph.io host drivers and resolves the
// configured pins. Returns an error if the host cannot be initialized or a
// named pin does not exist — both are setup-time failures, not per-frame
// ones.
func OpenGPIOSurface(cfg GPIOConfig, queue *Queue) (*GPIOSurface, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("control: periph host init: %w", err)
	}

	button := gpioreg.ByName(cfg.ButtonPin)
	if button == nil {
		return nil, fmt.Errorf("control: unknown button pin %q", cfg.ButtonPin)
	}
	if err := button.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("control: configure button pin: %w", err)
	}

	led := gpioreg.ByName(cfg.StatusLEDPin)
	if led == nil {
		return nil, fmt.Errorf("control: unknown status LED pin %q", cfg.StatusLEDPin)
	}
	if err := led.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("control: configure status LED pin: %w", err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	return &GPIOSurface{
		queue:   queue,
		button:  button,
		led:     led,
		poll:    poll,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Run watches the button pin on its own goroutine, translating a falling
// edge into a Pause/Resume toggle command, until Close is called.
// paused tracks whether the last button-triggered command was Pause,
// so the next press issues the opposite command.
func (g *GPIOSurface) Run() {
	go func() {
		defer close(g.stopped)
		paused := false
		for {
			select {
			case <-g.stopCh:
				return
			default:
			}
			if g.button.WaitForEdge(g.poll) {
				if paused {
					_ = g.queue.Enqueue(Command{Kind: Resume})
				} else {
					_ = g.queue.Enqueue(Command{Kind: Pause})
				}
				paused = !paused
			}
		}
	}()
}

// ReflectState drives the status LED from the orchestrator's current
// state: solid on while Running, off otherwise. Best-effort; an I/O error
// toggling an LED is not worth surfacing as a pipeline failure.
func (g *GPIOSurface) ReflectState(state telemetry.State) {
	level := gpio.Low
	if state == telemetry.StateRunning {
		level = gpio.High
	}
	_ = g.led.Out(level)
}

// Close stops the button-watching goroutine and waits for it to exit.
func (g *GPIOSurface) Close() {
	close(g.stopCh)
	<-g.stopped
}
