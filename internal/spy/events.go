package spy

import (
	"fmt"
	"strconv"
	"strings"
)

// CaptureType identifies one of the three per-camera capture modes.
type CaptureType string

// Capture modes a camera can be armed for.
const (
	CaptureMotion     CaptureType = "MotionCapture"
	CaptureContinuous CaptureType = "ContinuousCapture"
	CaptureActions    CaptureType = "Actions"
)

// captureReportCodes maps event stream arm/disarm report codes to capture types.
var captureReportCodes = map[string]CaptureType{
	"M": CaptureMotion,
	"C": CaptureContinuous,
	"A": CaptureActions,
}

// TriggerKind is the notification category of a trigger event.
type TriggerKind string

// Trigger notification kinds.
const (
	TriggerRecording TriggerKind = "recording"
	TriggerAction    TriggerKind = "action"
)

// triggerTypeCodes maps event stream trigger codes to kinds.
var triggerTypeCodes = map[string]TriggerKind{
	"M": TriggerRecording,
	"A": TriggerAction,
}

// reasonCodes maps detection reason bits to names.
var reasonCodes = []struct {
	bit  int
	name string
}{
	{1, "motion"},
	{2, "audio"},
	{4, "applescript"},
	{8, "camera"},
	{16, "web"},
	{32, "crosscamera"},
	{64, "manual"},
	{128, "human"},
	{256, "vehicle"},
}

// DecodeReasons translates a detection reason bitmask into reason names.
// A zero mask decodes to plain motion, matching how older servers report
// triggers that predate reason bits.
func DecodeReasons(mask int) []string {
	var reasons []string
	for _, rc := range reasonCodes {
		if mask&rc.bit != 0 {
			reasons = append(reasons, rc.name)
		}
	}
	if len(reasons) == 0 {
		return []string{"motion"}
	}
	return reasons
}

// ParseClassify decodes a CLASSIFY argument list ("HUMAN 85 VEHICLE 10")
// into a kind -> confidence map with lowercase keys.
func ParseClassify(args string) map[string]int {
	fields := strings.Fields(args)
	result := make(map[string]int, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		score, err := strconv.Atoi(fields[i+1])
		if err != nil {
			continue
		}
		result[strings.ToLower(fields[i])] = score
	}
	return result
}

// EventType identifies one kind of event stream record.
type EventType string

// Event stream record types.
const (
	EventMotion       EventType = "motion"   // pre-v5 motion report
	EventTrigger      EventType = "trigger"  // v5+ trigger with reason bits
	EventClassify     EventType = "classify" // v5+ object classification
	EventArm          EventType = "arm"
	EventDisarm       EventType = "disarm"
	EventOnline       EventType = "online"
	EventOffline      EventType = "offline"
	EventActive       EventType = "active"  // pre-v4 camera went active
	EventPassive      EventType = "passive" // pre-v4 camera went passive
	EventConfigChange EventType = "configchange"
	EventError        EventType = "error"
)

// Event is one parsed record from the server's event stream.
type Event struct {
	// Timestamp is the server's raw YYYYMMDDHHMMSS stamp.
	Timestamp string

	// Sequence is the server's monotonic event counter.
	Sequence int64

	// Camera is the camera number the event concerns, or -1 for
	// server-level events (CONFIGCHANGE).
	Camera int

	Type EventType

	// Capture is set for arm/disarm events.
	Capture CaptureType

	// Trigger and Reasons are set for trigger events.
	Trigger TriggerKind
	Reasons []string

	// Classify is set for classification events.
	Classify map[string]int

	// Message is set for error events.
	Message string
}

// ParseEvent parses one CR-terminated event stream line.
//
// Records look like:
//
//	20260830120000 1042 CAM3 MOTION
//	20260830120001 1043 CAM3 TRIGGER_M 129
//	20260830120001 1044 CAM3 CLASSIFY HUMAN 85 VEHICLE 10
//	20260830120002 1045 CAM3 ARM_C
//	20260830120009 1050 X CONFIGCHANGE
//
// Unknown record types return an error; callers log and skip them so a
// newer server does not wedge the tap.
func ParseEvent(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, " ", 4)
	if len(fields) < 3 {
		return Event{}, fmt.Errorf("%w: short event record %q", ErrMalformedResponse, line)
	}

	seq, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("%w: bad sequence in %q", ErrMalformedResponse, line)
	}

	ev := Event{
		Timestamp: fields[0],
		Sequence:  seq,
		Camera:    -1,
	}

	// Third field is the camera ("CAM3", bare "3", or "X" for none).
	camField := fields[2]
	keyword := ""
	if len(fields) > 3 {
		keyword = fields[3]
	}

	// CONFIGCHANGE may appear with or without a camera field.
	if camField == "CONFIGCHANGE" {
		ev.Type = EventConfigChange
		return ev, nil
	}

	if num, ok := parseCameraField(camField); ok {
		ev.Camera = num
	}

	verb, args, _ := strings.Cut(keyword, " ")
	switch {
	case verb == "MOTION":
		ev.Type = EventMotion
		ev.Reasons = []string{"motion"}
	case strings.HasPrefix(verb, "TRIGGER_"):
		code := strings.TrimPrefix(verb, "TRIGGER_")
		kind, ok := triggerTypeCodes[code]
		if !ok {
			return Event{}, fmt.Errorf("%w: unknown trigger code %q", ErrMalformedResponse, line)
		}
		mask, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			return Event{}, fmt.Errorf("%w: bad trigger reasons in %q", ErrMalformedResponse, line)
		}
		ev.Type = EventTrigger
		ev.Trigger = kind
		ev.Reasons = DecodeReasons(mask)
	case verb == "CLASSIFY":
		ev.Type = EventClassify
		ev.Classify = ParseClassify(args)
	case strings.HasPrefix(verb, "ARM_"):
		capture, ok := captureReportCodes[strings.TrimPrefix(verb, "ARM_")]
		if !ok {
			return Event{}, fmt.Errorf("%w: unknown arm code %q", ErrMalformedResponse, line)
		}
		ev.Type = EventArm
		ev.Capture = capture
	case strings.HasPrefix(verb, "DISARM_"):
		capture, ok := captureReportCodes[strings.TrimPrefix(verb, "DISARM_")]
		if !ok {
			return Event{}, fmt.Errorf("%w: unknown disarm code %q", ErrMalformedResponse, line)
		}
		ev.Type = EventDisarm
		ev.Capture = capture
	case verb == "ONLINE":
		ev.Type = EventOnline
	case verb == "OFFLINE":
		ev.Type = EventOffline
	case verb == "ACTIVE":
		ev.Type = EventActive
	case verb == "PASSIVE":
		ev.Type = EventPassive
	case verb == "CONFIGCHANGE":
		ev.Type = EventConfigChange
		ev.Camera = -1
	case verb == "ERROR":
		ev.Type = EventError
		ev.Message = args
	default:
		return Event{}, fmt.Errorf("%w: unknown event record %q", ErrMalformedResponse, line)
	}

	return ev, nil
}

// parseCameraField extracts a camera number from "CAM3" or "3".
func parseCameraField(field string) (int, bool) {
	field = strings.TrimPrefix(field, "CAM")
	num, err := strconv.Atoi(field)
	if err != nil {
		return 0, false
	}
	return num, true
}
