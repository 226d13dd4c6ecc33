package api

import (
	"fmt"
	"net/http"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/theracd/control"
)

type setupRequest struct {
	Dose      int `json:"dose"`
	PositionX int `json:"position_x"`
	PositionY int `json:"position_y"`
}

type setupResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Dose         int    `json:"dose"`
	PositionX    int    `json:"position_x"`
	PositionY    int    `json:"position_y"`
	SetupCounter int32  `json:"setup_counter"`
	State        string `json:"state"`
}

type editRequest struct {
	Field string `json:"field"`
	Value int    `json:"value"`
}

type editResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Field   string `json:"field"`
	Value   int    `json:"value"`
	Warning string `json:"warning,omitempty"`
}

func (a *Api) handlePostSetup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := setupRequest{}
		if !a.decode(w, r, &req) {
			return
		}

		ctl := a.console.Current().Control

		err := ctl.SetupTreatment(req.Dose, req.PositionX, req.PositionY)
		if errors.Is(err, control.ErrInvalidDose) {
			a.jsonError(w, fmt.Sprintf("Dose %d cGy is outside %d-%d cGy", req.Dose, control.MinDose, control.MaxDose),
				http.StatusUnprocessableEntity)
			return
		} else if err != nil {
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		status := ctl.Status()

		a.jsonResponse(w, &setupResponse{
			Success:      true,
			Message:      fmt.Sprintf("Treatment configured: %d cGy at (%d, %d)", req.Dose, req.PositionX, req.PositionY),
			Dose:         status.Dose,
			PositionX:    status.PositionX,
			PositionY:    status.PositionY,
			SetupCounter: status.SetupCounter,
			State:        status.State.String(),
		}, http.StatusOK)
	}
}

func (a *Api) handlePostEdit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := editRequest{}
		if !a.decode(w, r, &req) {
			return
		}

		field, err := control.ParseField(req.Field)
		if err != nil {
			a.jsonError(w, fmt.Sprintf("Unknown field %q", req.Field), http.StatusBadRequest)
			return
		}

		ctl := a.console.Current().Control

		if ctl.Status().State == control.StateFiring {
			a.jsonError(w, "Edit refused while the beam is firing", http.StatusConflict)
			return
		}

		err = ctl.EditField(field, req.Value)
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		a.jsonResponse(w, &editResponse{
			Success: true,
			Message: fmt.Sprintf("%v set to %d", field, req.Value),
			Field:   string(field),
			Value:   req.Value,
			Warning: "Edited value has not been validated",
		}, http.StatusOK)
	}
}
