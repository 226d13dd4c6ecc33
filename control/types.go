package control

import (
	"strings"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/theracd/machine"
)

type MachineState int32

const (
	StateStartup MachineState = iota
	StateReady
	StateSetup
	StateBeamReady
	StateFiring
	StateError
)

func (s MachineState) String() string {
	switch s {
	case StateStartup:
		return "startup"
	case StateReady:
		return "ready"
	case StateSetup:
		return "setup"
	case StateBeamReady:
		return "beam_ready"
	case StateFiring:
		return "firing"
	case StateError:
		return "error"
	default:
		return "invalid"
	}
}

// BeamMode is the commanded beam configuration. It says nothing about
// where the turntable physically is.
type BeamMode int32

const (
	BeamXray BeamMode = iota
	BeamElectron
)

func (m BeamMode) String() string {
	switch m {
	case BeamXray:
		return "xray"
	case BeamElectron:
		return "electron"
	default:
		return "invalid"
	}
}

// Position is the turntable position the beam mode requires.
func (m BeamMode) Position() machine.Position {
	if m == BeamElectron {
		return machine.PositionElectron
	}

	return machine.PositionXray
}

func ParseBeamMode(s string) (BeamMode, error) {
	switch strings.ToLower(s) {
	case "xray", "x-ray", "x":
		return BeamXray, nil
	case "electron", "e":
		return BeamElectron, nil
	default:
		return 0, errors.Errorf("unknown beam mode %q", s)
	}
}

// Mode selects the concurrency discipline of a ControlModule. The zero
// value reproduces the historical behavior.
type Mode int

const (
	Unsynchronized Mode = iota
	Synchronized
)

func (m Mode) String() string {
	switch m {
	case Unsynchronized:
		return "unsynchronized"
	case Synchronized:
		return "synchronized"
	default:
		return "invalid"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "unsynchronized", "buggy":
		return Unsynchronized, nil
	case "synchronized", "fixed":
		return Synchronized, nil
	default:
		return 0, errors.Errorf("unknown mode %q", s)
	}
}

// Field names a treatment parameter that can be edited while the machine
// is operating.
type Field string

const (
	FieldDose      Field = "dose"
	FieldPositionX Field = "position_x"
	FieldPositionY Field = "position_y"
)

func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(s)); f {
	case FieldDose, FieldPositionX, FieldPositionY:
		return f, nil
	default:
		return "", ErrUnknownField
	}
}

type FireResult int

const (
	FireSuccess FireResult = iota
	FireSafetyAbort
	FireOverdose
	FireLethalOverdose
)

func (r FireResult) String() string {
	switch r {
	case FireSuccess:
		return "SUCCESS"
	case FireSafetyAbort:
		return "SAFETY_ABORT"
	case FireOverdose:
		return "OVERDOSE"
	case FireLethalOverdose:
		return "LETHAL_OVERDOSE"
	default:
		return "INVALID"
	}
}

// Hazardous reports whether the beam was delivered in an unsafe
// configuration.
func (r FireResult) Hazardous() bool {
	return r == FireOverdose || r == FireLethalOverdose
}

// Status is a point in time copy of every field of a ControlModule.
type Status struct {
	Mode              Mode
	State             MachineState
	BeamMode          BeamMode
	Dose              int
	PositionX         int
	PositionY         int
	SetupCounter      int32
	TurntablePosition machine.Position
	TurntableMoving   bool
}
