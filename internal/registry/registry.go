package registry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ServerState is the lifecycle state of a camera server device.
type ServerState string

// Server lifecycle states.
const (
	ServerPreparing   ServerState = "preparing"
	ServerReady       ServerState = "ready"
	ServerUnavailable ServerState = "unavailable"
)

// CameraStatus is the lifecycle state of a camera device.
type CameraStatus string

// Camera lifecycle states.
const (
	CameraPreparing    CameraStatus = "preparing"
	CameraPassive      CameraStatus = "passive"
	CameraActive       CameraStatus = "active"
	CameraDisconnected CameraStatus = "disconnected"
	CameraUnavailable  CameraStatus = "unavailable"
)

// DeriveCameraStatus computes a camera's status from its connection and
// motion-arm flags. An unavailable owning server overrides this; see
// MarkServerUnavailable.
func DeriveCameraStatus(connected, motionArmed bool) CameraStatus {
	switch {
	case !connected:
		return CameraDisconnected
	case motionArmed:
		return CameraActive
	default:
		return CameraPassive
	}
}

// EntityID identifies a device the bridge exposes: a camera server, or
// one camera on a server.
type EntityID struct {
	// Server is the configured server identifier.
	Server string

	// Camera is the camera number, or -1 for the server device itself.
	Camera int
}

// ServerID returns the EntityID for a server device.
func ServerID(server string) EntityID {
	return EntityID{Server: server, Camera: -1}
}

// CameraID returns the EntityID for a camera device.
func CameraID(server string, camera int) EntityID {
	return EntityID{Server: server, Camera: camera}
}

// IsServer reports whether the ID names the server device itself.
func (id EntityID) IsServer() bool {
	return id.Camera < 0
}

// Address renders the ID in topic form: "office" or "office:3".
func (id EntityID) Address() string {
	if id.IsServer() {
		return id.Server
	}
	return fmt.Sprintf("%s:%d", id.Server, id.Camera)
}

// ParseAddress parses a topic address back into an EntityID.
func ParseAddress(address string) (EntityID, error) {
	server, camStr, found := strings.Cut(address, ":")
	if server == "" {
		return EntityID{}, fmt.Errorf("empty address")
	}
	if !found {
		return ServerID(server), nil
	}
	camera, err := strconv.Atoi(camStr)
	if err != nil || camera < 0 {
		return EntityID{}, fmt.Errorf("bad camera number in address %q", address)
	}
	return CameraID(server, camera), nil
}

// ServerSnapshot is the last-known state of a server device.
type ServerSnapshot struct {
	State        ServerState
	Name         string
	Version      string
	MajorVersion int

	// Scripts and Sounds are the server's runnable catalogs.
	Scripts []string
	Sounds  []string
}

// CameraSnapshot is the last-known state of a camera device.
type CameraSnapshot struct {
	Status      CameraStatus
	Name        string
	DeviceType  string
	Sensitivity int
	Width       int
	Height      int

	// Connected mirrors the server's reachability report for the camera.
	Connected bool

	// Motion, Recording, and Actions are the three capture-arm flags.
	Motion    bool
	Recording bool
	Actions   bool

	// HasPTZ gates PTZ command dispatch.
	HasPTZ bool

	HasAudio bool
}

// Change records one field transition on one entity. The reconciler
// emits one state-change notification per Change, so downstream
// consumers receive granular, attributable updates.
type Change struct {
	Entity EntityID
	Field  string
	Old    string
	New    string
}

// Registry is the in-memory map from entity identity to last-known
// snapshot. It has no persistence: on restart every entity is rebuilt
// from scratch in the preparing state.
//
// Thread Safety: a single RWMutex serialises all writes, which also
// satisfies the per-entity write ordering the reconciler and dispatcher
// rely on. Reads take the shared lock and return copies.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*serverEntry
}

type serverEntry struct {
	snapshot ServerSnapshot
	cameras  map[int]*CameraSnapshot
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		servers: make(map[string]*serverEntry),
	}
}

// AddServer registers a server device in the preparing state.
// Adding an existing server is a no-op.
func (r *Registry) AddServer(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[server]; exists {
		return
	}
	r.servers[server] = &serverEntry{
		snapshot: ServerSnapshot{State: ServerPreparing},
		cameras:  make(map[int]*CameraSnapshot),
	}
}

// RemoveServer drops a server and all its cameras.
func (r *Registry) RemoveServer(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.servers, server)
}

// Servers returns the registered server identifiers, sorted.
func (r *Registry) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Server returns a copy of a server's snapshot.
func (r *Registry) Server(server string) (ServerSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.servers[server]
	if !ok {
		return ServerSnapshot{}, false
	}
	return copyServerSnapshot(entry.snapshot), true
}

// Camera returns a copy of a camera's snapshot.
func (r *Registry) Camera(server string, camera int) (CameraSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.servers[server]
	if !ok {
		return CameraSnapshot{}, false
	}
	cam, ok := entry.cameras[camera]
	if !ok {
		return CameraSnapshot{}, false
	}
	return *cam, true
}

// Cameras returns the camera numbers known for a server, sorted.
func (r *Registry) Cameras(server string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.servers[server]
	if !ok {
		return nil
	}
	nums := make([]int, 0, len(entry.cameras))
	for num := range entry.cameras {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// ApplyServer merges a new server snapshot, returning one Change per
// field that actually differed. Catalog fields (scripts, sounds) update
// silently: they are informational, not device state.
func (r *Registry) ApplyServer(server string, next ServerSnapshot) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return nil
	}

	id := ServerID(server)
	prev := entry.snapshot
	var changes []Change

	if prev.State != next.State {
		changes = append(changes, Change{id, "state", string(prev.State), string(next.State)})
	}
	if prev.Version != next.Version {
		changes = append(changes, Change{id, "version", prev.Version, next.Version})
	}
	if prev.Name != next.Name {
		changes = append(changes, Change{id, "name", prev.Name, next.Name})
	}

	entry.snapshot = copyServerSnapshot(next)
	return changes
}

// ApplyCamera merges a new camera snapshot, creating the camera if
// needed, and returns one Change per field that differed. A brand new
// camera reports every populated field as a change from the zero value.
func (r *Registry) ApplyCamera(server string, camera int, next CameraSnapshot) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return nil
	}

	id := CameraID(server, camera)
	prev, existed := entry.cameras[camera]
	if !existed {
		prev = &CameraSnapshot{Status: CameraPreparing}
	}

	changes := diffCamera(id, *prev, next)
	snapshot := next
	entry.cameras[camera] = &snapshot
	return changes
}

// diffCamera computes field-level changes between two camera snapshots.
func diffCamera(id EntityID, prev, next CameraSnapshot) []Change {
	var changes []Change

	add := func(field, old, new string) {
		if old != new {
			changes = append(changes, Change{id, field, old, new})
		}
	}

	add("status", string(prev.Status), string(next.Status))
	add("name", prev.Name, next.Name)
	add("type", prev.DeviceType, next.DeviceType)
	add("sensitivity", strconv.Itoa(prev.Sensitivity), strconv.Itoa(next.Sensitivity))
	add("width", strconv.Itoa(prev.Width), strconv.Itoa(next.Width))
	add("height", strconv.Itoa(prev.Height), strconv.Itoa(next.Height))
	add("connected", strconv.FormatBool(prev.Connected), strconv.FormatBool(next.Connected))
	add("motion", strconv.FormatBool(prev.Motion), strconv.FormatBool(next.Motion))
	add("recording", strconv.FormatBool(prev.Recording), strconv.FormatBool(next.Recording))
	add("actions", strconv.FormatBool(prev.Actions), strconv.FormatBool(next.Actions))

	return changes
}

// RemoveCamera drops a camera that disappeared from the server's report.
func (r *Registry) RemoveCamera(server string, camera int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return false
	}
	if _, exists := entry.cameras[camera]; !exists {
		return false
	}
	delete(entry.cameras, camera)
	return true
}

// MarkServerUnavailable transitions a server to unavailable and cascades
// the transition to every camera it owns. A camera is never active or
// passive while its server is unavailable.
func (r *Registry) MarkServerUnavailable(server string) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return nil
	}

	var changes []Change
	if entry.snapshot.State != ServerUnavailable {
		changes = append(changes, Change{
			ServerID(server), "state",
			string(entry.snapshot.State), string(ServerUnavailable),
		})
		entry.snapshot.State = ServerUnavailable
	}

	nums := make([]int, 0, len(entry.cameras))
	for num := range entry.cameras {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	for _, num := range nums {
		cam := entry.cameras[num]
		if cam.Status == CameraUnavailable {
			continue
		}
		changes = append(changes, Change{
			CameraID(server, num), "status",
			string(cam.Status), string(CameraUnavailable),
		})
		cam.Status = CameraUnavailable
	}

	return changes
}

// SetCameraFlag optimistically updates one capture-arm flag after a
// successful command dispatch. The next reconciliation pass confirms or
// corrects it. Returns the resulting Change, if the flag actually moved.
func (r *Registry) SetCameraFlag(server string, camera int, field string, value bool) (Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return Change{}, false
	}
	cam, ok := entry.cameras[camera]
	if !ok {
		return Change{}, false
	}

	id := CameraID(server, camera)
	var prev *bool
	switch field {
	case "motion":
		prev = &cam.Motion
	case "recording":
		prev = &cam.Recording
	case "actions":
		prev = &cam.Actions
	default:
		return Change{}, false
	}

	if *prev == value {
		return Change{}, false
	}
	old := strconv.FormatBool(*prev)
	*prev = value

	// Motion arm changes move the derived status too, but the status
	// transition is left to reconciliation or the event tap so a single
	// authority owns it.
	return Change{id, field, old, strconv.FormatBool(value)}, true
}

// SetCameraSensitivity optimistically updates the sensitivity after a
// successful command dispatch.
func (r *Registry) SetCameraSensitivity(server string, camera int, value int) (Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.servers[server]
	if !ok {
		return Change{}, false
	}
	cam, ok := entry.cameras[camera]
	if !ok {
		return Change{}, false
	}
	if cam.Sensitivity == value {
		return Change{}, false
	}

	old := strconv.Itoa(cam.Sensitivity)
	cam.Sensitivity = value
	return Change{CameraID(server, camera), "sensitivity", old, strconv.Itoa(value)}, true
}

func copyServerSnapshot(s ServerSnapshot) ServerSnapshot {
	out := s
	out.Scripts = append([]string(nil), s.Scripts...)
	out.Sounds = append([]string(nil), s.Sounds...)
	return out
}
