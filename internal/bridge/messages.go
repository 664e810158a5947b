package bridge

import (
	"time"

	"github.com/spyglass-home/spyglass-core/internal/dispatch"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
)

// Ack statuses.
const (
	AckAccepted = "accepted"
	AckFailed   = "failed"
)

// Ack error codes, mirroring the error kinds of the server client and
// dispatcher.
const (
	ErrCodeValidation     = "validation"
	ErrCodeConnection     = "connection"
	ErrCodeAuthentication = "authentication"
	ErrCodeRejected       = "rejected"
	ErrCodeMalformed      = "malformed"
	ErrCodeUnsupported    = "unsupported"
	ErrCodeTimeout        = "timeout"
	ErrCodeInternal       = "internal"
)

// CommandMessage is the inbound payload on a device command topic.
type CommandMessage struct {
	// Correlation ties the eventual ack back to this command. Generated
	// when absent.
	Correlation string `json:"correlation,omitempty"`

	// Command is the command kind, e.g. "set-arm" or "ptz-motion".
	Command string `json:"command"`

	Params dispatch.Params `json:"params,omitempty"`
}

// AckMessage reports the outcome of one command dispatch.
type AckMessage struct {
	Correlation string `json:"correlation"`
	Address     string `json:"address"`
	Command     string `json:"command"`
	Status      string `json:"status"`
	ErrorCode   string `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// ServerStatePayload is the server device's published state surface.
type ServerStatePayload struct {
	State   string `json:"state"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`

	Scripts []string `json:"scripts,omitempty"`
	Sounds  []string `json:"sounds,omitempty"`
}

// CameraStatePayload is a camera device's published state surface.
type CameraStatePayload struct {
	State       string `json:"state"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Sensitivity int    `json:"sensitivity"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Recording   bool   `json:"recording"`
	Motion      bool   `json:"motion"`
	Actions     bool   `json:"actions"`
	PTZ         bool   `json:"ptz"`
	Audio       bool   `json:"audio"`
}

// StateMessage is the retained payload on a device state topic: the
// entity's full snapshot plus which fields moved in this update.
type StateMessage struct {
	Address string `json:"address"`

	Server *ServerStatePayload `json:"server,omitempty"`
	Camera *CameraStatePayload `json:"camera,omitempty"`

	Changed   []string `json:"changed,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// EventMessage relays one camera-server event from the push stream.
type EventMessage struct {
	Address  string `json:"address"`
	Type     string `json:"type"`
	Sequence int64  `json:"sequence"`

	Capture  string         `json:"capture,omitempty"`
	Trigger  string         `json:"trigger,omitempty"`
	Reasons  []string       `json:"reasons,omitempty"`
	Classify map[string]int `json:"classify,omitempty"`
	Message  string         `json:"message,omitempty"`

	Timestamp string `json:"timestamp"`
}

// TriggerMessage announces one trigger registration firing.
type TriggerMessage struct {
	Trigger string `json:"trigger"`
	Address string `json:"address"`

	Reasons    []string       `json:"reasons,omitempty"`
	Confidence map[string]int `json:"confidence,omitempty"`

	Timestamp string `json:"timestamp"`
}

// Config message actions.
const (
	ConfigAddServer     = "add-server"
	ConfigRemoveServer  = "remove-server"
	ConfigAddTrigger    = "add-trigger"
	ConfigRemoveTrigger = "remove-trigger"
)

// ConfigMessage reconfigures the bridge at runtime: servers and trigger
// registrations can be added or removed without a restart.
type ConfigMessage struct {
	Action string `json:"action"`

	Server  *config.SpyServerConfig  `json:"server,omitempty"`
	Trigger *config.SpyTriggerConfig `json:"trigger,omitempty"`

	// ID names the target for remove actions.
	ID string `json:"id,omitempty"`
}

// HealthMessage is the bridge's periodic health report.
type HealthMessage struct {
	Status  string            `json:"status"`
	Servers map[string]string `json:"servers,omitempty"`
	Uptime  int64             `json:"uptime_seconds"`

	MQTTConnected bool `json:"mqtt_connected"`

	Timestamp string `json:"timestamp"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
