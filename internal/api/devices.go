package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleListDevices returns a summary of every known device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.gateway.ListDevices()
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	out := make([]DeviceSummary, 0, len(devices))
	for i := range devices {
		out = append(out, renderDeviceSummary(&devices[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns a single device with all of its capabilities.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := pathIndex(w, r, "device")
	if !ok {
		return
	}

	dev, err := s.gateway.GetDevice(d)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderDevice(dev))
}

// handleStopDevice stops every output of one device.
func (s *Server) handleStopDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := pathIndex(w, r, "device")
	if !ok {
		return
	}

	if err := s.gateway.StopDevice(r.Context(), d); err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{ID: deviceURL(d), Status: "stopped"})
}

// handleStopAll stops every device.
func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.StopAll(r.Context()); err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{ID: "/devices", Status: "stopped"})
}

// pathIndex parses a non-negative 32-bit index from a URL parameter,
// writing a 400 response when it is malformed.
func pathIndex(w http.ResponseWriter, r *http.Request, param string) (uint32, bool) {
	raw := chi.URLParam(r, param)
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeValidationError(w, fmt.Sprintf("%s index %q is not a non-negative integer", param, raw))
		return 0, false
	}
	return uint32(v), true
}

// pathIndices parses the device index and the capability index.
func pathIndices(w http.ResponseWriter, r *http.Request) (uint32, uint32, bool) {
	d, ok := pathIndex(w, r, "device")
	if !ok {
		return 0, 0, false
	}
	i, ok := pathIndex(w, r, "index")
	if !ok {
		return 0, 0, false
	}
	return d, i, true
}

// decodeBody decodes a JSON request body into v, writing a 400 response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		writeValidationError(w, "request body is required")
	case errors.As(err, &maxErr):
		writeValidationError(w, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	default:
		writeValidationError(w, "invalid JSON body: "+err.Error())
	}
	return false
}
