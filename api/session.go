package api

import (
	"net/http"
)

type resetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Session string `json:"session"`
	Mode    string `json:"mode"`
}

type emergencyStopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	State   string `json:"state"`
}

func (a *Api) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := a.console.Reset()

		a.jsonResponse(w, &resetResponse{
			Success: true,
			Message: "Machine reset to its initial state",
			Session: session.ID,
			Mode:    session.Control.Mode().String(),
		}, http.StatusOK)
	}
}

func (a *Api) handlePostEmergencyStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.console.EmergencyStop()

		a.jsonResponse(w, &emergencyStopResponse{
			Success: true,
			Message: "Emergency stop activated",
			State:   a.console.Current().Control.Status().State.String(),
		}, http.StatusOK)
	}
}
