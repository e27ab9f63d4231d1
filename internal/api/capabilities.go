package api

import (
	"net/http"
)

// Request bodies. Pointer fields tell a missing value from a zero one.
type (
	actuatorCommand struct {
		Intensity *float64 `json:"intensity"`
	}

	rotatoryActuatorCommand struct {
		Speed     *float64 `json:"speed"`
		Clockwise *bool    `json:"clockwise"`
	}

	linearActuatorCommand struct {
		Duration *int     `json:"duration"`
		Position *float64 `json:"position"`
	}
)

// --- sensors ---

func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	d, ok := pathIndex(w, r, "device")
	if !ok {
		return
	}
	sensors, err := s.gateway.ListSensors(d)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderSensors(d, sensors))
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	d, i, ok := pathIndices(w, r)
	if !ok {
		return
	}
	sensor, err := s.gateway.GetSensor(d, i)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderSensor(d, sensor))
}

// handleReadSensor issues a fresh sensor read to the control server.
func (s *Server) handleReadSensor(w http.ResponseWriter, r *http.Request) {
	d, i, ok := pathIndices(w, r)
	if !ok {
		return
	}
	value, err := s.gateway.ReadSensor(r.Context(), d, i)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SensorReadingResource{
		ID:     sensorReadURL(d, i),
		Sensor: sensorURL(d, i),
		Value:  value,
	})
}

// --- scalar actuators ---

func (s *Server) handleListActuators(w http.ResponseWriter, r *http.Request) {
	d, ok := pathIndex(w, r, "device")
	if !ok {
		return
	}
	actuators, err := s.gateway.ListActuators(d)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderActuators(d, actuators))
}

func (s *Server) handleGetActuator(w http.ResponseWriter, r *http.Request) {
	d, i, ok := pathIndices(w, r)
	if !ok {
		return
	}
	a, err := s.gateway.GetActuator(d, i)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderActuator(d, a))
}

// handleSetActuator commands a scalar actuator. Body: {"intensity": 0.5}.
func (s *Server) handleSetActuator(w http.ResponseWriter, r *http.Request) {
	d, i, ok := pathIndices(w, r)
	if !ok {
		return
	}
	var body actuatorCommand
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Intensity == nil {
		writeValidationError(w, "intensity is required")
		return
	}

	if err := s.gateway.SetActuator(r.Context(), d, i, *body.Intensity); err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{ID: actuatorURL(d, i), Status: "ok"})
}

// --- rotatory actuators ---

func (s *Server) handleListRotatoryActuators(w http.ResponseWriter, r *http.Request) {
	d, ok := pathIndex(w, r, "device")
	if !ok {
		return
	}
	actuators, err := s.gateway.ListRotatoryActuators(d)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderRotatoryActuators(d, actuators))
}

func (s *Server) handleGetRotatoryActuator(w http.ResponseWriter, r *http.Request) {
	d, i, ok := pathIndices(w, r)
	if !ok {
		return
	}
	a, err := s.gateway.GetRotatoryActuator(d, i)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderRotatoryActuator(d, a))
}

// handleSetRotatoryActuator commands a rotating actuator.
// Body: {"speed": 0.5, "clockwise": true}.
func (s *Server) handleSetRotatoryActuator(w http.ResponseWriter, r *http.Request) {
	d, i, ok := pathIndices(w, r)
	if !ok {
		return
	}
	var body rotatoryActuatorCommand
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Speed == nil || body.Clockwise == nil {
		writeValidationError(w, "speed and clockwise are required")
		return
	}

	if err := s.gateway.SetRotatoryActuator(r.Context(), d, i, *body.Speed, *body.Clockwise); err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{ID: rotatoryActuatorURL(d, i), Status: "ok"})
}

// --- linear actuators ---

func (s *Server) handleListLinearActuators(w http.ResponseWriter, r *http.Request) {
	d, ok := pathIndex(w, r, "device")
	if !ok {
		return
	}
	actuators, err := s.gateway.ListLinearActuators(d)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderLinearActuators(d, actuators))
}

func (s *Server) handleGetLinearActuator(w http.ResponseWriter, r *http.Request) {
	d, i, ok := pathIndices(w, r)
	if !ok {
		return
	}
	a, err := s.gateway.GetLinearActuator(d, i)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderLinearActuator(d, a))
}

// handleSetLinearActuator moves a linear actuator.
// Body: {"duration": 500, "position": 0.8}, duration in milliseconds.
func (s *Server) handleSetLinearActuator(w http.ResponseWriter, r *http.Request) {
	d, i, ok := pathIndices(w, r)
	if !ok {
		return
	}
	var body linearActuatorCommand
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Duration == nil || body.Position == nil {
		writeValidationError(w, "duration and position are required")
		return
	}

	if err := s.gateway.SetLinearActuator(r.Context(), d, i, *body.Duration, *body.Position); err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{ID: linearActuatorURL(d, i), Status: "ok"})
}
