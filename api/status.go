package api

import (
	"net/http"
	"time"

	"github.com/the-lightning-land/theracd/control"
)

type statusResponse struct {
	Session           string    `json:"session"`
	Mode              string    `json:"mode"`
	State             string    `json:"state"`
	BeamMode          string    `json:"beam_mode"`
	Dose              int       `json:"dose"`
	PositionX         int       `json:"position_x"`
	PositionY         int       `json:"position_y"`
	SetupCounter      int32     `json:"setup_counter"`
	TurntablePosition string    `json:"turntable_position"`
	TurntableMoving   bool      `json:"turntable_moving"`
	Timestamp         time.Time `json:"timestamp"`
}

func newStatusResponse(session string, status control.Status) *statusResponse {
	return &statusResponse{
		Session:           session,
		Mode:              status.Mode.String(),
		State:             status.State.String(),
		BeamMode:          status.BeamMode.String(),
		Dose:              status.Dose,
		PositionX:         status.PositionX,
		PositionY:         status.PositionY,
		SetupCounter:      status.SetupCounter,
		TurntablePosition: status.TurntablePosition.String(),
		TurntableMoving:   status.TurntableMoving,
		Timestamp:         time.Now(),
	}
}

func (a *Api) handleGetStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := a.console.Current()

		a.jsonResponse(w, newStatusResponse(session.ID, session.Control.Status()), http.StatusOK)
	}
}
