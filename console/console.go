// Package console owns the control module an operator is working with.
// Resetting the console throws the module away and starts a fresh one,
// losing all prior state.
package console

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/the-lightning-land/theracd/control"
	"github.com/the-lightning-land/theracd/metrics"
)

type Config struct {
	NewControl func() *control.ControlModule
	// Metrics is optional.
	Metrics *metrics.Recorder
	Logger  Logger
}

type Session struct {
	ID      string
	Started time.Time
	Control *control.ControlModule
	drained chan struct{}
}

type Console struct {
	newControl func() *control.ControlModule
	metrics    *metrics.Recorder
	log        Logger
	mtx        sync.Mutex
	session    *Session
}

func New(config *Config) *Console {
	c := &Console{
		newControl: config.NewControl,
		metrics:    config.Metrics,
	}

	if config.Logger != nil {
		c.log = config.Logger
	} else {
		c.log = noopLogger{}
	}

	c.session = c.startSession()

	return c
}

func (c *Console) Current() *Session {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.session
}

// Reset replaces the current session with a fresh control module.
func (c *Console) Reset() *Session {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	previous := c.session
	c.session = c.startSession()

	c.endSession(previous)

	c.log.Infof("Reset session %v, new session %v", previous.ID, c.session.ID)

	return c.session
}

func (c *Console) EmergencyStop() {
	session := c.Current()

	c.log.Warnf("Emergency stop in session %v", session.ID)

	session.Control.EmergencyStop()
}

func (c *Console) Close() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.endSession(c.session)
}

func (c *Console) startSession() *Session {
	session := &Session{
		ID:      uuid.NewString(),
		Started: time.Now(),
		Control: c.newControl(),
		drained: make(chan struct{}),
	}

	if c.metrics == nil {
		close(session.drained)
		return session
	}

	c.metrics.SessionStarted()

	events := session.Control.SubscribeEvents()

	go func() {
		defer close(session.drained)

		for event := range events.Events {
			c.metrics.Observe(event)
		}
	}()

	return session
}

func (c *Console) endSession(session *Session) {
	session.Control.Close()
	<-session.drained
}
