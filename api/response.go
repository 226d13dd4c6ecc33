package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	HazardLevel string `json:"hazard_level,omitempty"`
}

func (a *Api) jsonResponse(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.Errorf("Could not respond with JSON: %v", err)
	}
}

func (a *Api) jsonError(w http.ResponseWriter, message string, code int) {
	a.jsonResponse(w, &errorResponse{
		Error: message,
	}, code)
}

func (a *Api) jsonHazard(w http.ResponseWriter, message string, level string, code int) {
	a.jsonResponse(w, &errorResponse{
		Error:       message,
		HazardLevel: level,
	}, code)
}

func (a *Api) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		a.jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}

	return true
}
