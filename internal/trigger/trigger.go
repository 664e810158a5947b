package trigger

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
	"github.com/spyglass-home/spyglass-core/internal/spy"
)

// Mode selects what a registration listens for.
type Mode string

// Registration modes.
const (
	// ModeRecording fires on recording-trigger notifications, optionally
	// filtered by the reason accompanying the notification.
	ModeRecording Mode = "recording"

	// ModeAction fires on action-trigger notifications, same reason
	// filtering as ModeRecording.
	ModeAction Mode = "action"

	// ModeSpecified fires on raw classification scores for one detection
	// kind, compared against a numeric threshold.
	ModeSpecified Mode = "specified"
)

// ReasonAny is the reason filter value that matches every reason.
const ReasonAny = "any"

// DefaultThrottle applies when a registration does not set its own
// minimum inter-fire interval.
const DefaultThrottle = 10 * time.Second

// Registration is one configured camera-motion trigger. The engine
// holds a read-only view of it plus a per-registration last-fire
// timestamp.
type Registration struct {
	ID string

	// Server and Camera filter which camera can fire the registration.
	// An empty Server or a negative Camera matches any.
	Server string
	Camera int

	Mode Mode

	// Reason filters recording/action notifications. Empty or "any"
	// matches every reason.
	Reason string

	// Kind, Threshold, and Negate apply to ModeSpecified: the score for
	// Kind must meet Threshold, inverted when Negate is set.
	Kind      string
	Threshold int
	Negate    bool

	// Throttle is the minimum interval between firings.
	Throttle time.Duration
}

// FromConfig builds a Registration from its configuration form,
// validating the mode and applying the default throttle.
//
// Parameters:
//   - cfg: the raw trigger configuration entry
//
// Returns:
//   - Registration: the validated registration
//   - error: if the mode is unknown, or a specified-mode entry lacks a kind
func FromConfig(cfg config.SpyTriggerConfig) (Registration, error) {
	mode := Mode(cfg.Mode)
	switch mode {
	case ModeRecording, ModeAction, ModeSpecified:
	default:
		return Registration{}, fmt.Errorf("trigger %q: unknown mode %q", cfg.ID, cfg.Mode)
	}

	if mode == ModeSpecified && cfg.Kind == "" {
		return Registration{}, fmt.Errorf("trigger %q: specified mode requires a detection kind", cfg.ID)
	}

	throttle := time.Duration(cfg.Throttle) * time.Second
	if throttle <= 0 {
		throttle = DefaultThrottle
	}

	// An omitted camera matches any camera.
	camera := -1
	if cfg.Camera != nil {
		camera = *cfg.Camera
	}

	return Registration{
		ID:        cfg.ID,
		Server:    cfg.Server,
		Camera:    camera,
		Mode:      mode,
		Reason:    cfg.Reason,
		Kind:      cfg.Kind,
		Threshold: cfg.Threshold,
		Negate:    cfg.Negate,
		Throttle:  throttle,
	}, nil
}

// Notification is one motion-related observation from a camera server,
// normalised from either a trigger event (recording/action, with
// reasons) or a classification event (kind scores). Ephemeral.
type Notification struct {
	Server string
	Camera int

	// Trigger is set for recording/action notifications.
	Trigger spy.TriggerKind

	// Reasons accompanies recording/action notifications.
	Reasons []string

	// Confidence holds classification scores by detection kind,
	// set for classification notifications.
	Confidence map[string]int
}

// Outcome reports one registration's evaluation of one notification
// after its filters passed: either it fired, or the throttle suppressed
// it. Registrations whose filters did not match produce no Outcome.
type Outcome struct {
	Registration Registration
	Fired        bool
}

// Engine evaluates motion notifications against the registered
// triggers. Each registration is evaluated independently; one
// notification may fire zero, one, or many registrations.
//
// Thread Safety: all methods are safe for concurrent use. Throttle
// state is per-registration, guarded by the engine mutex.
type Engine struct {
	mu            sync.Mutex
	registrations map[string]*entry

	// now is replaceable for tests.
	now func() time.Time
}

type entry struct {
	reg      Registration
	lastFire time.Time
}

// NewEngine creates an empty trigger engine.
func NewEngine() *Engine {
	return &Engine{
		registrations: make(map[string]*entry),
		now:           time.Now,
	}
}

// Register adds or replaces a registration. Replacing resets the
// registration's throttle state.
func (e *Engine) Register(reg Registration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registrations[reg.ID] = &entry{reg: reg}
}

// Unregister removes a registration and its throttle state.
func (e *Engine) Unregister(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.registrations, id)
}

// Count returns the number of active registrations.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.registrations)
}

// Registrations returns copies of the active registrations.
func (e *Engine) Registrations() []Registration {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Registration, 0, len(e.registrations))
	for _, ent := range e.registrations {
		out = append(out, ent.reg)
	}
	return out
}

// Evaluate runs a notification through every registration and returns
// an Outcome per registration whose filters matched. Matching
// registrations fire unless throttled; throttled matches are reported
// with Fired false and are otherwise dropped without error.
func (e *Engine) Evaluate(n Notification) []Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var outcomes []Outcome

	for _, ent := range e.registrations {
		if !matches(ent.reg, n) {
			continue
		}

		// Filters passed; the throttle decides firing.
		if !ent.lastFire.IsZero() && now.Sub(ent.lastFire) < ent.reg.Throttle {
			outcomes = append(outcomes, Outcome{Registration: ent.reg, Fired: false})
			continue
		}

		ent.lastFire = now
		outcomes = append(outcomes, Outcome{Registration: ent.reg, Fired: true})
	}

	return outcomes
}

// matches applies the camera, mode, reason, and threshold filters.
func matches(reg Registration, n Notification) bool {
	if reg.Server != "" && reg.Server != n.Server {
		return false
	}
	if reg.Camera >= 0 && reg.Camera != n.Camera {
		return false
	}

	switch reg.Mode {
	case ModeRecording:
		return n.Trigger == spy.TriggerRecording && reasonMatches(reg.Reason, n.Reasons)
	case ModeAction:
		return n.Trigger == spy.TriggerAction && reasonMatches(reg.Reason, n.Reasons)
	case ModeSpecified:
		if n.Confidence == nil {
			return false
		}
		// An absent kind scores zero, so a positive threshold never
		// accepts it and a negated registration always does.
		accept := n.Confidence[reg.Kind] >= reg.Threshold
		return accept != reg.Negate
	default:
		return false
	}
}

func reasonMatches(filter string, reasons []string) bool {
	if filter == "" || filter == ReasonAny {
		return true
	}
	return slices.Contains(reasons, filter)
}
