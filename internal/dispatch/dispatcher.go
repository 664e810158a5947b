package dispatch

import (
	"context"
	"fmt"

	"github.com/spyglass-home/spyglass-core/internal/registry"
	"github.com/spyglass-home/spyglass-core/internal/spy"
)

// Kind names a dispatchable command.
type Kind string

// Command kinds. Each maps to exactly one server call via the static
// handler table below.
const (
	KindSetActive        Kind = "set-active"
	KindSetPassive       Kind = "set-passive"
	KindToggleActive     Kind = "toggle-active"
	KindSetArm           Kind = "set-arm"
	KindTriggerRecording Kind = "trigger-recording"
	KindSetSensitivity   Kind = "set-sensitivity"
	KindSetOverlay       Kind = "set-overlay"
	KindPTZMotion        Kind = "ptz-motion"
	KindPTZPreset        Kind = "ptz-preset"
	KindRunScript        Kind = "run-script"
	KindPlaySound        Kind = "play-sound"
	KindRestartServer    Kind = "restart-server"
)

// Arm actions for KindSetArm.
const (
	ActionArm    = "arm"
	ActionDisarm = "disarm"
	ActionToggle = "toggle"
)

// Capture type parameter values for KindSetArm.
const (
	CaptureMotion     = "motion"
	CaptureContinuous = "continuous"
	CaptureActions    = "actions"
)

var captureTypes = map[string]spy.CaptureType{
	CaptureMotion:     spy.CaptureMotion,
	CaptureContinuous: spy.CaptureContinuous,
	CaptureActions:    spy.CaptureActions,
}

// captureFields maps a capture type to the registry field it arms.
var captureFields = map[string]string{
	CaptureMotion:     "motion",
	CaptureContinuous: "recording",
	CaptureActions:    "actions",
}

// Params carries the command-specific parameters for a Request. Only
// the fields a given kind reads are consulted; the rest are ignored.
type Params struct {
	// Capture and Action apply to set-arm.
	Capture string `json:"capture,omitempty"`
	Action  string `json:"action,omitempty"`

	// Sensitivity applies to set-sensitivity, range 0-100.
	Sensitivity int `json:"sensitivity,omitempty"`

	// Text, FontSize, and Position apply to set-overlay.
	Text     string `json:"text,omitempty"`
	FontSize int    `json:"font_size,omitempty"`
	Position string `json:"position,omitempty"`

	// Direction applies to ptz-motion.
	Direction string `json:"direction,omitempty"`

	// Preset and Save apply to ptz-preset. Save stores the current view
	// into the preset slot instead of recalling it.
	Preset int  `json:"preset,omitempty"`
	Save   bool `json:"save,omitempty"`

	// Name applies to run-script and play-sound.
	Name string `json:"name,omitempty"`
}

// Request is one command invocation against one entity. Ephemeral.
type Request struct {
	Entity registry.EntityID
	Kind   Kind
	Params Params
}

// Result reports a successful dispatch, including any optimistic
// registry updates applied pending reconciliation.
type Result struct {
	Changes []registry.Change
}

// ServerClient is the slice of the camera-server client the dispatcher
// drives.
type ServerClient interface {
	SetCameraActive(ctx context.Context, camera int, active bool, majorVersion int) error
	SetCaptureArmed(ctx context.Context, camera int, capture spy.CaptureType, armed bool, majorVersion int) error
	TriggerMotion(ctx context.Context, camera int) error
	SetSensitivity(ctx context.Context, camera int, level int) error
	SetOverlay(ctx context.Context, camera int, text string, pointSize int, position string, majorVersion int) error
	PTZ(ctx context.Context, camera int, code spy.PTZCode) error
	RunScript(ctx context.Context, name string) error
	PlaySound(ctx context.Context, name string) error
	RestartWebServer(ctx context.Context) error
}

// ClientSource resolves a server identifier to its client.
type ClientSource interface {
	Lookup(server string) (ServerClient, bool)
}

// handler executes one command kind against a resolved, validated
// target. ctx carries the command timeout.
type handler func(d *Dispatcher, ctx context.Context, req Request, t target) (Result, error)

// target is the resolved dispatch context for one request.
type target struct {
	client ServerClient
	server registry.ServerSnapshot
	camera registry.CameraSnapshot
}

// handlers is the static command table. Kinds absent from the table do
// not exist.
var handlers = map[Kind]handler{
	KindSetActive:        (*Dispatcher).handleSetActive,
	KindSetPassive:       (*Dispatcher).handleSetPassive,
	KindToggleActive:     (*Dispatcher).handleToggleActive,
	KindSetArm:           (*Dispatcher).handleSetArm,
	KindTriggerRecording: (*Dispatcher).handleTriggerRecording,
	KindSetSensitivity:   (*Dispatcher).handleSetSensitivity,
	KindSetOverlay:       (*Dispatcher).handleSetOverlay,
	KindPTZMotion:        (*Dispatcher).handlePTZMotion,
	KindPTZPreset:        (*Dispatcher).handlePTZPreset,
	KindRunScript:        (*Dispatcher).handleRunScript,
	KindPlaySound:        (*Dispatcher).handlePlaySound,
	KindRestartServer:    (*Dispatcher).handleRestartServer,
}

// serverKinds are the kinds that target the server device rather than
// a camera.
var serverKinds = map[Kind]bool{
	KindRunScript:     true,
	KindPlaySound:     true,
	KindRestartServer: true,
}

// Dispatcher validates and executes command requests.
//
// Thread Safety: Dispatch is safe for concurrent use; registry writes
// are serialised by the registry itself.
type Dispatcher struct {
	registry *registry.Registry
	clients  ClientSource
}

// New creates a Dispatcher over the given registry and client source.
func New(reg *registry.Registry, clients ClientSource) *Dispatcher {
	return &Dispatcher{registry: reg, clients: clients}
}

// Dispatch validates a request against current registry state, issues
// the matching server call, and on success applies any optimistic
// registry update.
//
// Parameters:
//   - ctx: bounds the server call; expiry fails the command without retry
//   - req: the command to execute
//
// Returns:
//   - Result: optimistic updates applied, empty on fire-and-forget kinds
//   - error: *ValidationError before any network call, or the server
//     client's error afterwards; either way no state changed on failure
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	h, ok := handlers[req.Kind]
	if !ok {
		return Result{}, validationf("unknown command kind %q", req.Kind)
	}

	if serverKinds[req.Kind] != req.Entity.IsServer() {
		if req.Entity.IsServer() {
			return Result{}, validationf("%s targets a camera, not a server", req.Kind)
		}
		return Result{}, validationf("%s targets a server, not a camera", req.Kind)
	}

	server, ok := d.registry.Server(req.Entity.Server)
	if !ok {
		return Result{}, validationf("unknown server %q", req.Entity.Server)
	}
	if server.State != registry.ServerReady {
		return Result{}, validationf("server %q is %s, not ready", req.Entity.Server, server.State)
	}

	t := target{server: server}
	if !req.Entity.IsServer() {
		camera, ok := d.registry.Camera(req.Entity.Server, req.Entity.Camera)
		if !ok {
			return Result{}, validationf("unknown camera %s", req.Entity.Address())
		}
		t.camera = camera
	}

	client, ok := d.clients.Lookup(req.Entity.Server)
	if !ok {
		return Result{}, validationf("no client for server %q", req.Entity.Server)
	}
	t.client = client

	return h(d, ctx, req, t)
}

// === Camera activation ===

func (d *Dispatcher) handleSetActive(ctx context.Context, req Request, t target) (Result, error) {
	return d.setActive(ctx, req, t, true)
}

func (d *Dispatcher) handleSetPassive(ctx context.Context, req Request, t target) (Result, error) {
	return d.setActive(ctx, req, t, false)
}

// handleToggleActive resolves the toggle against the registry's current
// motion flag at dispatch time. The resolution is not re-checked
// server-side; a stale snapshot can invert the intent until the next
// reconciliation pass corrects it.
func (d *Dispatcher) handleToggleActive(ctx context.Context, req Request, t target) (Result, error) {
	return d.setActive(ctx, req, t, !t.camera.Motion)
}

func (d *Dispatcher) setActive(ctx context.Context, req Request, t target, active bool) (Result, error) {
	err := t.client.SetCameraActive(ctx, req.Entity.Camera, active, t.server.MajorVersion)
	if err != nil {
		return Result{}, err
	}
	return d.optimisticFlag(req.Entity, "motion", active), nil
}

// === Capture arming ===

func (d *Dispatcher) handleSetArm(ctx context.Context, req Request, t target) (Result, error) {
	capture, ok := captureTypes[req.Params.Capture]
	if !ok {
		return Result{}, validationf("unknown capture type %q", req.Params.Capture)
	}
	field := captureFields[req.Params.Capture]

	var armed bool
	switch req.Params.Action {
	case ActionArm:
		armed = true
	case ActionDisarm:
		armed = false
	case ActionToggle:
		armed = !cameraFlag(t.camera, field)
	default:
		return Result{}, validationf("unknown arm action %q", req.Params.Action)
	}

	err := t.client.SetCaptureArmed(ctx, req.Entity.Camera, capture, armed, t.server.MajorVersion)
	if err != nil {
		return Result{}, err
	}
	return d.optimisticFlag(req.Entity, field, armed), nil
}

func cameraFlag(cam registry.CameraSnapshot, field string) bool {
	switch field {
	case "motion":
		return cam.Motion
	case "recording":
		return cam.Recording
	default:
		return cam.Actions
	}
}

// === Recording, sensitivity, overlay ===

func (d *Dispatcher) handleTriggerRecording(ctx context.Context, req Request, t target) (Result, error) {
	return Result{}, t.client.TriggerMotion(ctx, req.Entity.Camera)
}

func (d *Dispatcher) handleSetSensitivity(ctx context.Context, req Request, t target) (Result, error) {
	level := req.Params.Sensitivity
	if level < 0 || level > 100 {
		return Result{}, validationf("sensitivity %d out of range 0-100", level)
	}

	if err := t.client.SetSensitivity(ctx, req.Entity.Camera, level); err != nil {
		return Result{}, err
	}

	var result Result
	if change, moved := d.registry.SetCameraSensitivity(req.Entity.Server, req.Entity.Camera, level); moved {
		result.Changes = append(result.Changes, change)
	}
	return result, nil
}

func (d *Dispatcher) handleSetOverlay(ctx context.Context, req Request, t target) (Result, error) {
	position, ok := spy.OverlayPositionCode(spy.OverlayPosition(req.Params.Position))
	if !ok {
		return Result{}, validationf("unknown overlay position %q", req.Params.Position)
	}
	fontSize := req.Params.FontSize
	if fontSize <= 0 {
		return Result{}, validationf("overlay font size %d must be positive", fontSize)
	}

	err := t.client.SetOverlay(ctx, req.Entity.Camera, req.Params.Text, fontSize, position, t.server.MajorVersion)
	return Result{}, err
}

// === PTZ ===

func (d *Dispatcher) handlePTZMotion(ctx context.Context, req Request, t target) (Result, error) {
	if !t.camera.HasPTZ {
		return Result{}, validationf("camera %s does not support PTZ", req.Entity.Address())
	}
	code, ok := spy.PTZMotionCode(req.Params.Direction)
	if !ok {
		return Result{}, validationf("unknown PTZ direction %q", req.Params.Direction)
	}
	return Result{}, t.client.PTZ(ctx, req.Entity.Camera, code)
}

func (d *Dispatcher) handlePTZPreset(ctx context.Context, req Request, t target) (Result, error) {
	if !t.camera.HasPTZ {
		return Result{}, validationf("camera %s does not support PTZ", req.Entity.Address())
	}
	code, err := spy.PresetCode(req.Params.Preset, req.Params.Save)
	if err != nil {
		return Result{}, validationf("%v", err)
	}
	return Result{}, t.client.PTZ(ctx, req.Entity.Camera, code)
}

// === Server-level commands ===

// Script and sound commands are fire-and-forget: success means the
// server accepted the request, not that playback completed.

func (d *Dispatcher) handleRunScript(ctx context.Context, req Request, t target) (Result, error) {
	if req.Params.Name == "" {
		return Result{}, validationf("run-script requires a script name")
	}
	return Result{}, t.client.RunScript(ctx, req.Params.Name)
}

func (d *Dispatcher) handlePlaySound(ctx context.Context, req Request, t target) (Result, error) {
	if req.Params.Name == "" {
		return Result{}, validationf("play-sound requires a sound name")
	}
	return Result{}, t.client.PlaySound(ctx, req.Params.Name)
}

func (d *Dispatcher) handleRestartServer(ctx context.Context, req Request, t target) (Result, error) {
	return Result{}, t.client.RestartWebServer(ctx)
}

// optimisticFlag applies a flag update pending reconciliation.
func (d *Dispatcher) optimisticFlag(entity registry.EntityID, field string, value bool) Result {
	var result Result
	if change, moved := d.registry.SetCameraFlag(entity.Server, entity.Camera, field, value); moved {
		result.Changes = append(result.Changes, change)
	}
	return result
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
