package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/the-lightning-land/theracd/control"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type eventMessage struct {
	Kind    string          `json:"kind"`
	Time    time.Time       `json:"time"`
	Message string          `json:"message"`
	Result  string          `json:"result,omitempty"`
	Status  *statusResponse `json:"status"`
}

func newEventMessage(session string, event *control.Event) *eventMessage {
	msg := &eventMessage{
		Kind:    string(event.Kind),
		Time:    event.Time,
		Message: event.Message,
		Status:  newStatusResponse(session, event.Status),
	}

	switch event.Kind {
	case control.EventFired, control.EventAccident, control.EventSafetyAbort:
		msg.Result = event.Result.String()
	}

	return msg
}

// handleGetEvents streams the events of the current session until the
// client goes away or the session is reset.
func (a *Api) handleGetEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		session := a.console.Current()
		client := session.Control.SubscribeEvents()

		defer client.Cancel()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Errorf("Could not upgrade to websocket: %v", err)
			return
		}

		defer c.Close()

		// read pump
		go func() {
			// ends the write pump once the peer is gone
			defer client.Cancel()

			c.SetReadLimit(512)
			_ = c.SetReadDeadline(time.Now().Add(pongWait))
			c.SetPongHandler(func(string) error {
				return c.SetReadDeadline(time.Now().Add(pongWait))
			})

			for {
				_, _, err := c.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						a.log.Errorf("unexpected websocket closure: %v", err)
					}
					return
				}
			}
		}()

		// write pump
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-client.Events:
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))

				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
					return
				}

				err := c.WriteJSON(newEventMessage(session.ID, event))
				if err != nil {
					return
				}
			case <-ticker.C:
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
