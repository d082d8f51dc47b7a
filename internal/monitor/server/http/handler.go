package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/monitor/presence"
)

// DeviceResponse is the JSON view of a device.
type DeviceResponse struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"displayName,omitempty"`
	Status      model.Status `json:"status"`
	LastSeen    *time.Time   `json:"lastSeen,omitempty"`
	FirstSeen   time.Time    `json:"firstSeen"`
	Placeholder bool         `json:"placeholder,omitempty"`
}

// DeviceList is the body of GET /api/v1/devices.
type DeviceList struct {
	Items   []DeviceResponse `json:"items"`
	Online  int              `json:"online"`
	Offline int              `json:"offline"`
}

// RenameRequest is the body of PUT /api/v1/devices/{id}/name.
type RenameRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewDeviceResponse(d model.Device) DeviceResponse {
	resp := DeviceResponse{
		ID:          d.ID,
		Name:        d.Name(),
		DisplayName: d.DisplayName,
		Status:      d.Status,
		FirstSeen:   d.FirstSeen,
		Placeholder: d.Placeholder,
	}
	if !d.LastSeen.IsZero() {
		seen := d.LastSeen
		resp.LastSeen = &seen
	}
	return resp
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.svc.Ready() {
		http.Error(w, "mqtt not connected", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) listDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.svc.Devices()
	list := DeviceList{Items: make([]DeviceResponse, 0, len(devices))}
	for _, d := range devices {
		list.Items = append(list.Items, NewDeviceResponse(d))
		if d.Online() {
			list.Online++
		} else {
			list.Offline++
		}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Device(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewDeviceResponse(d))
}

func (s *Server) renameDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req RenameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}

	if err := s.svc.Rename(r.Context(), id, req.Name); err != nil {
		s.writeError(w, err)
		return
	}

	d, err := s.svc.Device(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewDeviceResponse(d))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, presence.ErrDeviceNotFound):
		code = http.StatusNotFound
	case errors.Is(err, presence.ErrEmptyDeviceID):
		code = http.StatusBadRequest
	default:
		s.logger.Error(err, "Request failed")
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
