package control

import (
	"time"

	"github.com/the-lightning-land/theracd/machine"
)

// Every delay of the machine is expressed in time units so the whole
// simulation can be sped up without changing its interleavings.
const (
	DefaultTimeUnit = time.Second

	keystrokeUnits       = 0.1
	firingUnits          = 0.5
	TurntableTravelUnits = 0.5
	hardwareTimeoutUnits = 5
)

type Config struct {
	Mode Mode
	// Turntable defaults to a simulated turntable that travels for half a
	// time unit.
	Turntable machine.Turntable
	// TimeUnit defaults to DefaultTimeUnit.
	TimeUnit time.Duration
	// HardwareTimeout bounds how long a synchronized mode change waits for
	// the turntable. Defaults to five time units.
	HardwareTimeout time.Duration
	Logger          Logger
}

// Units converts an amount of time units into a duration.
func Units(unit time.Duration, n float64) time.Duration {
	return time.Duration(n * float64(unit))
}
