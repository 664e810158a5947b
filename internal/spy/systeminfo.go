package spy

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// SystemInfo is the parsed result of a server status fetch.
// It describes the server itself and every camera it knows about.
type SystemInfo struct {
	Server  ServerInfo
	Cameras []CameraInfo
}

// ServerInfo describes the server section of a status response.
type ServerInfo struct {
	// Name is the server's display name.
	Name string

	// Version is the full server version string (e.g., "5.3.4").
	Version string

	// EventCount is the server's event sequence counter at fetch time.
	// Event stream sequence numbers continue from this value.
	EventCount int64
}

// MajorVersion returns the leading component of the version string,
// or 0 if it cannot be parsed. Several control endpoints changed shape
// at major version boundaries (arm controls at v4, overlay at v3).
func (s ServerInfo) MajorVersion() int {
	head, _, _ := strings.Cut(s.Version, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return major
}

// CameraInfo describes one camera in a status response.
type CameraInfo struct {
	Number    int
	Name      string
	Connected bool
	Width     int
	Height    int

	// MotionArmed, ContinuousArmed, and ActionsArmed report the three
	// capture modes. Pre-v4 servers expose only a single mode which maps
	// onto MotionArmed; the other two read as false.
	MotionArmed     bool
	ContinuousArmed bool
	ActionsArmed    bool

	HasAudio   bool
	DeviceName string
	DeviceType string

	// PTZCapabilities is a bitmask; non-zero means the camera accepts
	// PTZ commands.
	PTZCapabilities int

	// Sensitivity is the motion detection sensitivity (0-100).
	Sensitivity int
}

// HasPTZ reports whether the camera accepts any PTZ command.
func (c CameraInfo) HasPTZ() bool {
	return c.PTZCapabilities != 0
}

// rawSystemInfo mirrors the server's XML document shape.
type rawSystemInfo struct {
	XMLName xml.Name  `xml:"system"`
	Server  rawServer `xml:"server"`
	Cameras struct {
		Camera []rawCamera `xml:"camera"`
	} `xml:"cameralist"`
}

type rawServer struct {
	Name       string `xml:"name"`
	Version    string `xml:"version"`
	EventCount int64  `xml:"eventstreamcount"`
}

type rawCamera struct {
	Number          int    `xml:"number"`
	Name            string `xml:"name"`
	Connected       string `xml:"connected"`
	Width           int    `xml:"width"`
	Height          int    `xml:"height"`
	ModeM           string `xml:"mode-m"`
	ModeC           string `xml:"mode-c"`
	ModeA           string `xml:"mode-a"`
	Mode            string `xml:"mode"` // pre-v4 single mode
	HasAudio        string `xml:"hasaudio"`
	DeviceName      string `xml:"devicename"`
	DeviceType      string `xml:"devicetype"`
	PTZCapabilities int    `xml:"ptzcapabilities"`
	Sensitivity     int    `xml:"mdsensitivity"`
}

// ParseSystemInfo decodes a server status document.
//
// The major version is taken from the document itself so arm-mode
// interpretation matches the server that produced it: v4+ servers report
// three per-mode elements, older servers a single "active"/"passive" mode.
//
// Returns ErrMalformedResponse (wrapped) if the document cannot be decoded.
func ParseSystemInfo(data []byte) (*SystemInfo, error) {
	var raw rawSystemInfo
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	info := &SystemInfo{
		Server: ServerInfo{
			Name:       raw.Server.Name,
			Version:    raw.Server.Version,
			EventCount: raw.Server.EventCount,
		},
	}

	modern := info.Server.MajorVersion() >= 4

	for _, rc := range raw.Cameras.Camera {
		cam := CameraInfo{
			Number:          rc.Number,
			Name:            rc.Name,
			Connected:       rc.Connected == "yes",
			Width:           rc.Width,
			Height:          rc.Height,
			HasAudio:        rc.HasAudio == "yes",
			DeviceName:      rc.DeviceName,
			DeviceType:      rc.DeviceType,
			PTZCapabilities: rc.PTZCapabilities,
			Sensitivity:     rc.Sensitivity,
		}
		if modern {
			cam.MotionArmed = rc.ModeM == "armed"
			cam.ContinuousArmed = rc.ModeC == "armed"
			cam.ActionsArmed = rc.ModeA == "armed"
		} else {
			// Pre-v4 the single mode reads "active"/"passive" and only
			// motion capture is controllable.
			cam.MotionArmed = rc.Mode == "active"
		}
		info.Cameras = append(info.Cameras, cam)
	}

	return info, nil
}
