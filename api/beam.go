package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/theracd/control"
)

const (
	hazardLethal          = "lethal"
	hazardOverdose        = "overdose"
	hazardUnvalidatedDose = "unvalidated_dose"
	hazardCritical        = "critical"

	// A beam fired without the matching turntable hardware in its path
	// delivers roughly a hundred times the prescribed dose.
	overdoseFactor = 100
)

type modeRequest struct {
	Mode string `json:"mode"`
}

type modeResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PreviousMode string `json:"previous_mode"`
	Mode         string `json:"mode"`
	Warning      string `json:"warning,omitempty"`
}

type fireResponse struct {
	Success       bool      `json:"success"`
	Result        string    `json:"result"`
	Message       string    `json:"message"`
	Hazard        bool      `json:"hazard"`
	HazardLevel   string    `json:"hazard_level,omitempty"`
	Dose          int       `json:"dose"`
	DeliveredDose int       `json:"delivered_dose"`
	BeamMode      string    `json:"beam_mode"`
	PositionX     int       `json:"position_x"`
	PositionY     int       `json:"position_y"`
	Timestamp     time.Time `json:"timestamp"`
}

func (a *Api) handlePostMode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := modeRequest{}
		if !a.decode(w, r, &req) {
			return
		}

		mode, err := control.ParseBeamMode(req.Mode)
		if err != nil {
			a.jsonError(w, `Invalid mode, use "xray" or "electron"`, http.StatusBadRequest)
			return
		}

		ctl := a.console.Current().Control
		previous := ctl.Status().BeamMode

		err = ctl.ChangeMode(mode)
		if errors.Is(err, control.ErrHardwareTimeout) {
			a.jsonHazard(w, "Turntable did not confirm the new position", hazardCritical, http.StatusGatewayTimeout)
			return
		} else if errors.Is(err, control.ErrClosed) {
			a.jsonError(w, "Session was reset during the mode change", http.StatusConflict)
			return
		} else if err != nil {
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		res := &modeResponse{
			Success:      true,
			Message:      fmt.Sprintf("Beam mode set to %v", mode),
			PreviousMode: previous.String(),
			Mode:         mode.String(),
		}

		if ctl.Status().TurntableMoving {
			res.Warning = "Turntable is still moving, hardware and beam mode may disagree"
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}

func (a *Api) handlePostFire() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl := a.console.Current().Control
		status := ctl.Status()

		if status.Dose == 0 {
			a.jsonHazard(w, "Refusing to fire without a prescribed dose", hazardCritical, http.StatusBadRequest)
			return
		}

		if status.State != control.StateReady {
			a.jsonError(w, fmt.Sprintf("Machine not ready, current state is %v", status.State), http.StatusConflict)
			return
		}

		result := ctl.FireBeam()
		status = ctl.Status()

		res := &fireResponse{
			Success:   result == control.FireSuccess,
			Result:    result.String(),
			Hazard:    result.Hazardous(),
			Dose:      status.Dose,
			BeamMode:  status.BeamMode.String(),
			PositionX: status.PositionX,
			PositionY: status.PositionY,
			Timestamp: time.Now(),
		}

		switch result {
		case control.FireLethalOverdose:
			res.HazardLevel = hazardLethal
			res.DeliveredDose = status.Dose * overdoseFactor
			res.Message = "Beam fired while the turntable was out of position"
		case control.FireOverdose:
			res.HazardLevel = hazardOverdose
			res.DeliveredDose = status.Dose * overdoseFactor
			res.Message = "Beam fired with mismatched turntable hardware"
		case control.FireSafetyAbort:
			res.Message = "Safety interlock aborted the beam"
		default:
			res.DeliveredDose = status.Dose
			res.Message = "Beam fired"

			if status.Dose < control.MinDose || status.Dose > control.MaxDose {
				res.Hazard = true
				res.HazardLevel = hazardUnvalidatedDose
				res.Message = "Beam fired with a dose that was never validated"
			}
		}

		if res.Hazard {
			a.log.Errorf("Hazardous beam: %v, %v", result, res.Message)
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}
