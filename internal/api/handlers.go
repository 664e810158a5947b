package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spyglass-home/spyglass-core/internal/bridge"
	"github.com/spyglass-home/spyglass-core/internal/history"
	"github.com/spyglass-home/spyglass-core/internal/registry"
)

// Device is one entry in the device listing: a server or one of its
// cameras, with the matching state payload populated.
type Device struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`

	Server *bridge.ServerStatePayload `json:"server,omitempty"`
	Camera *bridge.CameraStatePayload `json:"camera,omitempty"`
}

// TriggerView is the read-only listing form of a trigger registration.
type TriggerView struct {
	ID        string `json:"id"`
	Server    string `json:"server,omitempty"`
	Camera    int    `json:"camera"`
	Mode      string `json:"mode"`
	Reason    string `json:"reason,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
	Negate    bool   `json:"negate,omitempty"`
	Throttle  int    `json:"throttle_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	msg := s.deps.Health()
	status := http.StatusOK
	if msg.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, msg)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := []Device{}
	for _, id := range s.deps.Registry.Servers() {
		if device, ok := s.device(registry.ServerID(id)); ok {
			devices = append(devices, device)
		}
		for _, num := range s.deps.Registry.Cameras(id) {
			if device, ok := s.device(registry.CameraID(id, num)); ok {
				devices = append(devices, device)
			}
		}
	}
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	entity, err := registry.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid device address")
		return
	}

	device, ok := s.device(entity)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown device")
		return
	}
	s.writeJSON(w, http.StatusOK, device)
}

func (s *Server) device(entity registry.EntityID) (Device, bool) {
	device := Device{Address: entity.Address()}

	if entity.IsServer() {
		snap, ok := s.deps.Registry.Server(entity.Server)
		if !ok {
			return Device{}, false
		}
		device.Kind = "server"
		device.Server = &bridge.ServerStatePayload{
			State:   string(snap.State),
			Name:    snap.Name,
			Version: snap.Version,
			Scripts: snap.Scripts,
			Sounds:  snap.Sounds,
		}
		return device, true
	}

	snap, ok := s.deps.Registry.Camera(entity.Server, entity.Camera)
	if !ok {
		return Device{}, false
	}
	device.Kind = "camera"
	device.Camera = &bridge.CameraStatePayload{
		State:       string(snap.Status),
		Name:        snap.Name,
		Type:        snap.DeviceType,
		Sensitivity: snap.Sensitivity,
		Width:       snap.Width,
		Height:      snap.Height,
		Recording:   snap.Recording,
		Motion:      snap.Motion,
		Actions:     snap.Actions,
		PTZ:         snap.HasPTZ,
		Audio:       snap.HasAudio,
	}
	return device, true
}

func (s *Server) handleTriggers(w http.ResponseWriter, r *http.Request) {
	regs := s.deps.Engine.Registrations()
	views := make([]TriggerView, 0, len(regs))
	for _, reg := range regs {
		views = append(views, TriggerView{
			ID:        reg.ID,
			Server:    reg.Server,
			Camera:    reg.Camera,
			Mode:      string(reg.Mode),
			Reason:    reg.Reason,
			Kind:      reg.Kind,
			Threshold: reg.Threshold,
			Negate:    reg.Negate,
			Throttle:  int(reg.Throttle / time.Second),
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

// === History ===

func (s *Server) handleStateHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.History.StateChanges(r.Context(), historyQuery(r))
	if err != nil {
		s.historyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTriggerHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.History.TriggerActivity(r.Context(),
		r.URL.Query().Get("trigger"), historyQuery(r))
	if err != nil {
		s.historyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.History.Commands(r.Context(), historyQuery(r))
	if err != nil {
		s.historyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func historyQuery(r *http.Request) history.Query {
	q := history.Query{Server: r.URL.Query().Get("server")}
	if cam := r.URL.Query().Get("camera"); cam != "" {
		if num, err := strconv.Atoi(cam); err == nil {
			q.Camera = num
			q.HasCamera = true
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			q.Limit = n
		}
	}
	return q
}

func (s *Server) historyError(w http.ResponseWriter, err error) {
	s.deps.Logger.Error("history query failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "history query failed")
}

// === Response helpers ===

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Error("response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
