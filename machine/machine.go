package machine

import (
	"context"
)

// Position is the physical position of the turntable.
type Position int

const (
	PositionXray Position = iota
	PositionElectron
)

func (p Position) String() string {
	switch p {
	case PositionXray:
		return "xray"
	case PositionElectron:
		return "electron"
	default:
		return "invalid"
	}
}

// Turntable is the actuator that swings the beam-shaping hardware
// (flattening filter or scanning magnets) into place.
type Turntable interface {
	Start() error
	Stop() error
	// Rotate blocks until the turntable has reached the given position
	// or the context is done.
	Rotate(ctx context.Context, to Position) error
}
