package control

import (
	"fmt"
	"sync"
	"time"
)

type EventKind string

const (
	EventSetupAccepted   EventKind = "setup_accepted"
	EventSetupRejected   EventKind = "setup_rejected"
	EventSafetyBypassed  EventKind = "safety_bypassed"
	EventModeChanged     EventKind = "mode_changed"
	EventTurntableMoved  EventKind = "turntable_moved"
	EventHardwareFault   EventKind = "hardware_fault"
	EventHardwareTimeout EventKind = "hardware_timeout"
	EventFieldEdited     EventKind = "field_edited"
	EventFired           EventKind = "fired"
	EventAccident        EventKind = "accident"
	EventSafetyAbort     EventKind = "safety_abort"
	EventEmergencyStop   EventKind = "emergency_stop"
)

type Event struct {
	Kind    EventKind
	Time    time.Time
	Message string
	// Result is only meaningful for fired, accident and safety abort events.
	Result FireResult
	Status Status
}

// slow subscribers lose events instead of stalling the machine
const eventClientBuffer = 64

type EventClient struct {
	Events <-chan *Event
	Id     uint32
	events chan *Event
	hub    *eventHub
}

type eventHub struct {
	mtx     sync.Mutex
	clients map[uint32]*EventClient
	nextID  uint32
	closed  bool
}

func newEventHub() *eventHub {
	return &eventHub{
		clients: make(map[uint32]*EventClient),
	}
}

// SubscribeEvents returns a client receiving every event published after
// the call. The channel is closed when the client is cancelled or the
// module is closed.
func (c *ControlModule) SubscribeEvents() *EventClient {
	return c.events.subscribe()
}

func (h *eventHub) subscribe() *EventClient {
	events := make(chan *Event, eventClientBuffer)

	client := &EventClient{
		Events: events,
		events: events,
		hub:    h,
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()

	client.Id = h.nextID
	h.nextID++

	if h.closed {
		close(events)
		return client
	}

	h.clients[client.Id] = client

	return client
}

func (c *EventClient) Cancel() {
	c.hub.mtx.Lock()
	defer c.hub.mtx.Unlock()

	if _, ok := c.hub.clients[c.Id]; !ok {
		return
	}

	delete(c.hub.clients, c.Id)
	close(c.events)
}

func (h *eventHub) active() bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return len(h.clients) > 0
}

func (h *eventHub) broadcast(event *Event) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	for _, client := range h.clients {
		select {
		case client.events <- event:
		default:
		}
	}
}

func (h *eventHub) close() {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.events)
	}

	h.closed = true
}

func (c *ControlModule) publish(kind EventKind, result FireResult, format string, args ...interface{}) {
	if !c.events.active() {
		return
	}

	c.events.broadcast(&Event{
		Kind:    kind,
		Time:    time.Now(),
		Message: fmt.Sprintf(format, args...),
		Result:  result,
		Status:  c.Status(),
	})
}
