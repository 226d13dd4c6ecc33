package machine

import (
	"context"
	"time"
)

// Compile time check for protocol compatibility
var _ Turntable = (*SimulatedTurntable)(nil)

type SimulatedTurntableConfig struct {
	Travel time.Duration
	Logger Logger
}

// SimulatedTurntable takes a fixed travel time for every rotation.
type SimulatedTurntable struct {
	travel time.Duration
	log    Logger
}

func NewSimulatedTurntable(config *SimulatedTurntableConfig) *SimulatedTurntable {
	t := &SimulatedTurntable{
		travel: config.Travel,
	}

	if config.Logger != nil {
		t.log = config.Logger
	} else {
		t.log = noopLogger{}
	}

	return t
}

func (t *SimulatedTurntable) Start() error {
	t.log.Debugf("Simulated turntable ready, travel time %v", t.travel)
	return nil
}

func (t *SimulatedTurntable) Stop() error {
	return nil
}

func (t *SimulatedTurntable) Rotate(ctx context.Context, to Position) error {
	timer := time.NewTimer(t.travel)
	defer timer.Stop()

	select {
	case <-timer.C:
		t.log.Debugf("Turntable arrived at %v", to)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
