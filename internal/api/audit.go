package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/buttrest/internal/audit"
)

// handleListDeviceCommands returns audited commands for one device index,
// newest first. History outlives the device, so the index is not checked
// against the registry.
//
// Query parameters:
//   - outcome: filter by outcome (ok, timeout, protocol_error, ...)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListDeviceCommands(w http.ResponseWriter, r *http.Request) {
	d, ok := pathIndex(w, r, "device")
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		DeviceIndex: &d,
		Outcome:     q.Get("outcome"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeValidationError(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeValidationError(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command audit", "device_index", d, "error", err)
		writeInternalError(w, "failed to list command audit")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
