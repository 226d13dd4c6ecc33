package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/theracd/machine"
)

// ControlModule holds the state of the treatment machine. Every field is
// stored atomically, so single reads and writes never tear, but in
// Unsynchronized mode nothing orders one operation against another.
type ControlModule struct {
	mode      Mode
	policy    policy
	turntable machine.Turntable
	timeUnit  time.Duration
	log       Logger

	state             atomic.Int32
	beamMode          atomic.Int32
	dose              atomic.Int64
	positionX         atomic.Int64
	positionY         atomic.Int64
	setupCounter      atomic.Int32
	turntablePosition atomic.Int32
	turntableMoving   atomic.Bool

	// hardware tasks outlive the call that started them
	ctx         context.Context
	cancel      context.CancelFunc
	hardware    sync.WaitGroup
	hardwareMtx sync.RWMutex
	closed      bool
	closeOnce   sync.Once

	events *eventHub
}

func New(config *Config) *ControlModule {
	c := &ControlModule{
		mode:      config.Mode,
		turntable: config.Turntable,
		timeUnit:  config.TimeUnit,
		events:    newEventHub(),
	}

	if config.Logger != nil {
		c.log = config.Logger
	} else {
		c.log = noopLogger{}
	}

	if c.timeUnit <= 0 {
		c.timeUnit = DefaultTimeUnit
	}

	if c.turntable == nil {
		c.turntable = machine.NewSimulatedTurntable(&machine.SimulatedTurntableConfig{
			Travel: Units(c.timeUnit, TurntableTravelUnits),
		})
	}

	timeout := config.HardwareTimeout
	if timeout <= 0 {
		timeout = Units(c.timeUnit, hardwareTimeoutUnits)
	}

	c.policy = newPolicy(c.mode, timeout, c.log)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.state.Store(int32(StateStartup))
	c.beamMode.Store(int32(BeamXray))
	c.turntablePosition.Store(int32(machine.PositionXray))

	c.log.Infof("Control module initialized in %v mode", c.mode)

	return c
}

func (c *ControlModule) Mode() Mode {
	return c.mode
}

// ChangeMode commands a new beam mode and starts moving the turntable.
// Unsynchronized, it returns before the turntable has moved. A closed
// module refuses with ErrClosed.
func (c *ControlModule) ChangeMode(mode BeamMode) error {
	return c.policy.exclusive(func() error {
		if c.isClosed() {
			return ErrClosed
		}

		previous := BeamMode(c.beamMode.Swap(int32(mode)))

		c.log.Infof("Changing mode from %v to %v", previous, mode)

		if previous == mode {
			return nil
		}

		c.turntableMoving.Store(true)
		c.publish(EventModeChanged, FireSuccess, "beam mode changed from %v to %v", previous, mode)

		done := make(chan struct{})

		if !c.spawnHardware(func() { c.moveTurntable(mode.Position(), done) }) {
			return ErrClosed
		}

		err := c.policy.awaitTurntable(c.ctx, done)
		if errors.Is(err, ErrClosed) {
			return err
		} else if err != nil {
			c.state.Store(int32(StateError))
			c.log.Errorf("Turntable did not reach %v: %v", mode.Position(), err)
			c.publish(EventHardwareTimeout, FireSuccess, "turntable did not reach %v", mode.Position())
			return err
		}

		return nil
	})
}

func (c *ControlModule) isClosed() bool {
	c.hardwareMtx.RLock()
	defer c.hardwareMtx.RUnlock()

	return c.closed
}

// spawnHardware runs task as a hardware task Close waits for. It reports
// false without running task once the module is closed.
func (c *ControlModule) spawnHardware(task func()) bool {
	c.hardwareMtx.RLock()
	defer c.hardwareMtx.RUnlock()

	if c.closed {
		return false
	}

	c.hardware.Add(1)

	go func() {
		defer c.hardware.Done()
		task()
	}()

	return true
}

// moveTurntable is the hardware actor. It writes the same fields FireBeam
// reads, whatever the caller of ChangeMode is doing by then.
func (c *ControlModule) moveTurntable(to machine.Position, done chan<- struct{}) {
	err := c.turntable.Rotate(c.ctx, to)
	if err != nil && c.ctx.Err() != nil {
		c.log.Debugf("Turntable movement to %v cancelled", to)
		return
	} else if err != nil {
		c.log.Errorf("Turntable failed moving to %v: %v", to, err)
		c.publish(EventHardwareFault, FireSuccess, "turntable failed moving to %v: %v", to, err)
		return
	}

	c.turntablePosition.Store(int32(to))
	c.turntableMoving.Store(false)
	close(done)

	c.log.Infof("Turntable moved to %v", to)
	c.publish(EventTurntableMoved, FireSuccess, "turntable moved to %v", to)
}

// SetupTreatment stores the treatment parameters and validates the dose.
// Unsynchronized, validation is skipped whenever the setup counter has just
// wrapped to zero.
func (c *ControlModule) SetupTreatment(dose int, x int, y int) error {
	c.log.Infof("Setup treatment: dose=%d, position=(%d,%d)", dose, x, y)

	counter := c.policy.nextCounter(&c.setupCounter)
	bypass := c.policy.skipValidation(counter)

	c.log.Debugf("Setup counter: %d", counter)

	if bypass {
		c.log.Errorf("Setup counter overflowed to zero, dose validation bypassed")
	}

	c.dose.Store(int64(dose))
	c.positionX.Store(int64(x))
	c.positionY.Store(int64(y))
	c.state.Store(int32(StateSetup))

	if !bypass && (dose < MinDose || dose > MaxDose) {
		c.state.Store(int32(StateError))
		c.log.Warnf("Rejected dose %d, allowed range is %d-%d", dose, MinDose, MaxDose)
		c.publish(EventSetupRejected, FireSuccess, "dose %d rejected", dose)
		return ErrInvalidDose
	}

	c.state.Store(int32(StateReady))

	if bypass {
		c.publish(EventSafetyBypassed, FireSuccess, "dose %d accepted without validation", dose)
	} else {
		c.publish(EventSetupAccepted, FireSuccess, "dose %d at (%d,%d)", dose, x, y)
	}

	return nil
}

// EditField overwrites a single treatment parameter. No validation happens
// here, only SetupTreatment checks the dose.
func (c *ControlModule) EditField(field Field, value int) error {
	var target *atomic.Int64

	switch field {
	case FieldDose:
		target = &c.dose
	case FieldPositionX:
		target = &c.positionX
	case FieldPositionY:
		target = &c.positionY
	default:
		return ErrUnknownField
	}

	c.log.Infof("Editing %v to %d", field, value)

	return c.policy.exclusive(func() error {
		// keystroke latency of the operator terminal
		time.Sleep(Units(c.timeUnit, keystrokeUnits))

		target.Store(int64(value))
		c.publish(EventFieldEdited, FireSuccess, "%v set to %d", field, value)

		return nil
	})
}

// FireBeam delivers the configured dose. It never checks the dose itself.
func (c *ControlModule) FireBeam() FireResult {
	c.log.Infof("Firing beam")

	if c.turntableMoving.Load() {
		beam := BeamMode(c.beamMode.Load())
		position := machine.Position(c.turntablePosition.Load())

		if !c.policy.firesUnsafe() {
			return c.abort("turntable still moving")
		}

		c.log.Errorf("ACCIDENT: firing while turntable moving, beam mode %v, turntable at %v", beam, position)

		if beam == BeamElectron && position == machine.PositionXray {
			return c.accident(FireLethalOverdose, "electron beam fired with turntable at %v", position)
		}

		return c.accident(FireOverdose, "%v beam fired with turntable in motion", beam)
	}

	beam := BeamMode(c.beamMode.Load())
	position := machine.Position(c.turntablePosition.Load())

	if beam.Position() != position {
		if !c.policy.firesUnsafe() {
			return c.abort("beam mode and turntable position disagree")
		}

		c.log.Errorf("ACCIDENT: beam mode %v does not match turntable at %v", beam, position)

		return c.accident(FireOverdose, "%v beam fired with turntable at %v", beam, position)
	}

	c.state.Store(int32(StateFiring))
	time.Sleep(Units(c.timeUnit, firingUnits))
	c.state.Store(int32(StateReady))

	dose := c.dose.Load()

	c.log.Infof("Beam fired: %v mode, dose %d", beam, dose)
	c.publish(EventFired, FireSuccess, "%v beam delivered %d", beam, dose)

	return FireSuccess
}

func (c *ControlModule) abort(reason string) FireResult {
	c.log.Warnf("Safety abort: %s", reason)
	c.publish(EventSafetyAbort, FireSafetyAbort, "%s", reason)

	return FireSafetyAbort
}

func (c *ControlModule) accident(result FireResult, format string, args ...interface{}) FireResult {
	c.publish(EventAccident, result, format, args...)

	return result
}

// EmergencyStop puts the machine into the error state.
func (c *ControlModule) EmergencyStop() {
	c.state.Store(int32(StateError))

	c.log.Warnf("Emergency stop")
	c.publish(EventEmergencyStop, FireSuccess, "emergency stop")
}

func (c *ControlModule) Status() Status {
	return Status{
		Mode:              c.mode,
		State:             MachineState(c.state.Load()),
		BeamMode:          BeamMode(c.beamMode.Load()),
		Dose:              int(c.dose.Load()),
		PositionX:         int(c.positionX.Load()),
		PositionY:         int(c.positionY.Load()),
		SetupCounter:      c.setupCounter.Load(),
		TurntablePosition: machine.Position(c.turntablePosition.Load()),
		TurntableMoving:   c.turntableMoving.Load(),
	}
}

// Close cancels running turntable movements, waits for them and ends all
// event subscriptions. Mode changes racing Close either finish before it
// returns or fail with ErrClosed.
func (c *ControlModule) Close() {
	c.closeOnce.Do(func() {
		c.hardwareMtx.Lock()
		c.closed = true
		c.hardwareMtx.Unlock()

		c.cancel()
		c.hardware.Wait()
		c.events.close()
	})
}
