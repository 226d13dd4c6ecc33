package machine

import (
	"context"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// Compile time check for protocol compatibility
var _ Turntable = (*RaspberryTurntable)(nil)

// poll interval while waiting for the detent switch, bounds how late a
// cancelled context is noticed
const detentPoll = 50 * time.Millisecond

type RaspberryTurntableConfig struct {
	MotorPin     string
	DirectionPin string
	DetentPin    string
	Logger       Logger
}

// RaspberryTurntable drives a stepper driver through two output pins and
// waits for a detent switch that closes once the table locks in place.
type RaspberryTurntable struct {
	motorPinName     string
	directionPinName string
	detentPinName    string
	motorPin         gpio.PinIO
	directionPin     gpio.PinIO
	detentPin        gpio.PinIO
	mtx              sync.Mutex
	log              Logger
}

func NewRaspberryTurntable(config *RaspberryTurntableConfig) *RaspberryTurntable {
	t := &RaspberryTurntable{
		motorPinName:     config.MotorPin,
		directionPinName: config.DirectionPin,
		detentPinName:    config.DetentPin,
	}

	if config.Logger != nil {
		t.log = config.Logger
	} else {
		t.log = noopLogger{}
	}

	return t
}

func (t *RaspberryTurntable) Start() error {
	if _, err := host.Init(); err != nil {
		return errors.Errorf("Could not initialize periph: %v", err)
	}

	t.motorPin = gpioreg.ByName(t.motorPinName)
	if t.motorPin == nil {
		return errors.Errorf("Could not find motor pin %v", t.motorPinName)
	}

	t.directionPin = gpioreg.ByName(t.directionPinName)
	if t.directionPin == nil {
		return errors.Errorf("Could not find direction pin %v", t.directionPinName)
	}

	t.detentPin = gpioreg.ByName(t.detentPinName)
	if t.detentPin == nil {
		return errors.Errorf("Could not find detent pin %v", t.detentPinName)
	}

	if err := t.motorPin.Out(gpio.Low); err != nil {
		return errors.Errorf("Could not reset motor pin: %v", err)
	}

	if err := t.detentPin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return errors.Errorf("Could not watch detent pin: %v", err)
	}

	return nil
}

func (t *RaspberryTurntable) Stop() error {
	if t.motorPin == nil {
		return nil
	}

	if err := t.motorPin.Out(gpio.Low); err != nil {
		return errors.Errorf("Could not stop motor: %v", err)
	}

	return nil
}

// Rotate drives the motor until the detent switch fires. Concurrent
// rotations queue behind each other.
func (t *RaspberryTurntable) Rotate(ctx context.Context, to Position) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	direction := gpio.Low
	if to == PositionElectron {
		direction = gpio.High
	}

	if err := t.directionPin.Out(direction); err != nil {
		return errors.Errorf("Could not set direction: %v", err)
	}

	if err := t.motorPin.Out(gpio.High); err != nil {
		return errors.Errorf("Could not start motor: %v", err)
	}

	defer func() {
		if err := t.motorPin.Out(gpio.Low); err != nil {
			t.log.Errorf("Could not stop motor: %v", err)
		}
	}()

	t.log.Debugf("Rotating turntable to %v", to)

	for {
		if t.detentPin.WaitForEdge(detentPoll) {
			t.log.Debugf("Turntable locked at %v", to)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
