package spy

import "fmt"

// PTZCode is a numeric pan/tilt/zoom command understood by the server.
type PTZCode int

// PTZ motion codes.
const (
	PTZLeft      PTZCode = 1
	PTZRight     PTZCode = 2
	PTZUp        PTZCode = 3
	PTZDown      PTZCode = 4
	PTZUpLeft    PTZCode = 5
	PTZUpRight   PTZCode = 6
	PTZDownLeft  PTZCode = 7
	PTZDownRight PTZCode = 8
	PTZZoomIn    PTZCode = 9
	PTZZoomOut   PTZCode = 10
	PTZHome      PTZCode = 12
	PTZStop      PTZCode = 99
)

// ptzMotionCodes maps motion names to codes. "down-alt" is an alias kept
// for compatibility with controller configurations that used either of
// the two identical menu entries the old plugin offered.
var ptzMotionCodes = map[string]PTZCode{
	"left":       PTZLeft,
	"right":      PTZRight,
	"up":         PTZUp,
	"down":       PTZDown,
	"down-alt":   PTZDown,
	"up-left":    PTZUpLeft,
	"up-right":   PTZUpRight,
	"down-left":  PTZDownLeft,
	"down-right": PTZDownRight,
	"zoom-in":    PTZZoomIn,
	"zoom-out":   PTZZoomOut,
	"home":       PTZHome,
	"stop":       PTZStop,
}

// PTZMotionCode resolves a motion name to its command code.
func PTZMotionCode(name string) (PTZCode, bool) {
	code, ok := ptzMotionCodes[name]
	return code, ok
}

// Preset numbering constants.
const (
	// presetRecallBase is the command code for recalling preset 1.
	presetRecallBase = 13

	// presetSaveOffset converts a recall code into the matching save code.
	presetSaveOffset = 100

	// MinPreset and MaxPreset bound the preset numbers cameras store.
	MinPreset = 1
	MaxPreset = 8
)

// PresetCode returns the PTZ command code for recalling or saving a
// numbered preset position. Save codes are the recall code offset by 100.
func PresetCode(preset int, save bool) (PTZCode, error) {
	if preset < MinPreset || preset > MaxPreset {
		return 0, fmt.Errorf("preset %d out of range %d-%d", preset, MinPreset, MaxPreset)
	}
	code := PTZCode(presetRecallBase + preset - 1)
	if save {
		code += presetSaveOffset
	}
	return code, nil
}

// OverlayPosition is a screen corner for camera overlay text.
type OverlayPosition string

// Overlay positions.
const (
	OverlayTopLeft     OverlayPosition = "top-left"
	OverlayTopRight    OverlayPosition = "top-right"
	OverlayBottomLeft  OverlayPosition = "bottom-left"
	OverlayBottomRight OverlayPosition = "bottom-right"
)

// overlayPositionCodes maps positions to the server's menu values.
var overlayPositionCodes = map[OverlayPosition]string{
	OverlayTopLeft:     "0",
	OverlayTopRight:    "1",
	OverlayBottomLeft:  "2",
	OverlayBottomRight: "3",
}

// OverlayPositionCode resolves an overlay position to its form value.
func OverlayPositionCode(pos OverlayPosition) (string, bool) {
	code, ok := overlayPositionCodes[pos]
	return code, ok
}

// Server control paths. Camera-scoped requests add a cameraNum query
// parameter; see Client.
const (
	pathSystemInfo       = "/++systemInfo"
	pathEventStream      = "/++eventStream"
	pathMotionCapture    = "/++ssControlMotionCapture"
	pathContinuousCap    = "/++ssControlContinuousCapture"
	pathActions          = "/++ssControlActions"
	pathActiveMode       = "/++ssControlActiveMode"  // pre-v4 only
	pathPassiveMode      = "/++ssControlPassiveMode" // pre-v4 only
	pathTriggerMotion    = "/++triggermd"
	pathCameraSetup      = "/++camerasetup"
	pathCameraSettings   = "/camerasettings"    // v3+ overlay settings
	pathOverlaySettings  = "/++overlaysettings" // legacy overlay settings
	pathPTZ              = "/++ptz/command"
	pathRunScript        = "/++doScript"
	pathPlaySound        = "/++doSound"
	pathRestartWebServer = "/++ssControlRestartWebServer"
	pathScripts          = "/++scripts"
	pathSounds           = "/++sounds"
)

// capturePaths maps capture types to their v4+ arm control endpoints.
var capturePaths = map[CaptureType]string{
	CaptureMotion:     pathMotionCapture,
	CaptureContinuous: pathContinuousCap,
	CaptureActions:    pathActions,
}
