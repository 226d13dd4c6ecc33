package control

import (
	"github.com/go-errors/errors"
)

const (
	// MinDose and MaxDose bound the prescribed dose in cGy.
	MinDose = 1
	MaxDose = 1000
)

var (
	ErrInvalidDose     = errors.New("dose out of range")
	ErrHardwareTimeout = errors.New("turntable did not confirm position in time")
	ErrUnknownField    = errors.New("unknown treatment field")
	ErrClosed          = errors.New("control module closed")
)
