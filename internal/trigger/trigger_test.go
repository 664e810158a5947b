package trigger

import (
	"testing"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
	"github.com/spyglass-home/spyglass-core/internal/spy"
)

// fakeClock drives the engine's notion of time in throttle tests.
type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestEngine() (*Engine, *fakeClock) {
	e := NewEngine()
	clock := &fakeClock{at: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)}
	e.now = clock.now
	return e, clock
}

// fired extracts which outcomes actually fired.
func fired(outcomes []Outcome) []string {
	var ids []string
	for _, o := range outcomes {
		if o.Fired {
			ids = append(ids, o.Registration.ID)
		}
	}
	return ids
}

// === Configuration ===

func TestFromConfig(t *testing.T) {
	camera := 3
	reg, err := FromConfig(config.SpyTriggerConfig{
		ID:       "front-door",
		Server:   "office",
		Camera:   &camera,
		Mode:     "recording",
		Reason:   "human",
		Throttle: 30,
	})
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if reg.Mode != ModeRecording {
		t.Errorf("mode = %v, want %v", reg.Mode, ModeRecording)
	}
	if reg.Camera != 3 {
		t.Errorf("camera = %d, want 3", reg.Camera)
	}
	if reg.Throttle != 30*time.Second {
		t.Errorf("throttle = %v, want 30s", reg.Throttle)
	}
}

func TestFromConfigDefaultThrottle(t *testing.T) {
	reg, err := FromConfig(config.SpyTriggerConfig{ID: "t", Mode: "action"})
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if reg.Throttle != DefaultThrottle {
		t.Errorf("throttle = %v, want default %v", reg.Throttle, DefaultThrottle)
	}
}

func TestFromConfigOmittedCameraMatchesAny(t *testing.T) {
	reg, err := FromConfig(config.SpyTriggerConfig{ID: "t", Mode: "recording"})
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if reg.Camera != -1 {
		t.Errorf("camera = %d, want -1 (any)", reg.Camera)
	}
}

func TestFromConfigRejectsUnknownMode(t *testing.T) {
	if _, err := FromConfig(config.SpyTriggerConfig{ID: "t", Mode: "psychic"}); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestFromConfigSpecifiedRequiresKind(t *testing.T) {
	if _, err := FromConfig(config.SpyTriggerConfig{ID: "t", Mode: "specified"}); err == nil {
		t.Error("specified mode without kind accepted")
	}
}

// === Camera Filtering ===

func TestCameraFilter(t *testing.T) {
	e, _ := newTestEngine()
	e.Register(Registration{
		ID: "exact", Server: "office", Camera: 3,
		Mode: ModeRecording, Throttle: time.Second,
	})
	e.Register(Registration{
		ID: "any-camera", Server: "office", Camera: -1,
		Mode: ModeRecording, Throttle: time.Second,
	})
	e.Register(Registration{
		ID: "any-server", Server: "", Camera: -1,
		Mode: ModeRecording, Throttle: time.Second,
	})

	outcomes := e.Evaluate(Notification{
		Server: "office", Camera: 3, Trigger: spy.TriggerRecording,
	})
	if got := fired(outcomes); len(got) != 3 {
		t.Errorf("matching camera fired %v, want all three", got)
	}

	outcomes = e.Evaluate(Notification{
		Server: "barn", Camera: 3, Trigger: spy.TriggerRecording,
	})
	if got := fired(outcomes); len(got) != 1 || got[0] != "any-server" {
		t.Errorf("other server fired %v, want only any-server", got)
	}
}

// === Mode and Reason Filtering ===

func TestRecordingModeIgnoresActionNotifications(t *testing.T) {
	e, _ := newTestEngine()
	e.Register(Registration{ID: "rec", Camera: -1, Mode: ModeRecording, Throttle: time.Second})

	outcomes := e.Evaluate(Notification{
		Server: "office", Camera: 1, Trigger: spy.TriggerAction, Reasons: []string{"motion"},
	})
	if len(outcomes) != 0 {
		t.Errorf("recording registration evaluated an action notification: %+v", outcomes)
	}
}

func TestReasonFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		reasons []string
		want    bool
	}{
		{"empty filter matches", "", []string{"audio"}, true},
		{"any matches", "any", []string{"audio"}, true},
		{"exact match", "human", []string{"motion", "human"}, true},
		{"no match", "vehicle", []string{"motion", "human"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine()
			e.Register(Registration{
				ID: "t", Camera: -1, Mode: ModeRecording,
				Reason: tt.filter, Throttle: time.Second,
			})

			outcomes := e.Evaluate(Notification{
				Server: "office", Camera: 1,
				Trigger: spy.TriggerRecording, Reasons: tt.reasons,
			})
			got := len(fired(outcomes)) == 1
			if got != tt.want {
				t.Errorf("filter %q with reasons %v fired=%v, want %v",
					tt.filter, tt.reasons, got, tt.want)
			}
		})
	}
}

// === Specified Mode ===

func TestSpecifiedThreshold(t *testing.T) {
	tests := []struct {
		name       string
		negate     bool
		confidence map[string]int
		want       bool
	}{
		{"wrong kind does not fire", false, map[string]int{"vehicle": 80}, false},
		{"matching kind above threshold fires", false, map[string]int{"human": 60}, true},
		{"matching kind below threshold does not fire", false, map[string]int{"human": 40}, false},
		{"negated suppresses the match", true, map[string]int{"human": 60}, false},
		{"negated fires on the non-match", true, map[string]int{"vehicle": 80}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine()
			e.Register(Registration{
				ID: "t", Camera: -1, Mode: ModeSpecified,
				Kind: "human", Threshold: 50, Negate: tt.negate,
				Throttle: time.Second,
			})

			outcomes := e.Evaluate(Notification{
				Server: "office", Camera: 1, Confidence: tt.confidence,
			})
			got := len(fired(outcomes)) == 1
			if got != tt.want {
				t.Errorf("confidence %v negate=%v fired=%v, want %v",
					tt.confidence, tt.negate, got, tt.want)
			}
		})
	}
}

func TestSpecifiedIgnoresTriggerNotifications(t *testing.T) {
	e, _ := newTestEngine()
	e.Register(Registration{
		ID: "t", Camera: -1, Mode: ModeSpecified,
		Kind: "human", Threshold: 50, Throttle: time.Second,
	})

	// Trigger notifications carry no confidence map.
	outcomes := e.Evaluate(Notification{
		Server: "office", Camera: 1,
		Trigger: spy.TriggerRecording, Reasons: []string{"human"},
	})
	if len(outcomes) != 0 {
		t.Errorf("specified registration evaluated a trigger notification: %+v", outcomes)
	}
}

// === Throttling ===

func TestThrottleWindow(t *testing.T) {
	e, clock := newTestEngine()
	const interval = 20 * time.Second
	e.Register(Registration{ID: "t", Camera: -1, Mode: ModeRecording, Throttle: interval})

	n := Notification{Server: "office", Camera: 1, Trigger: spy.TriggerRecording}

	// t0: fires.
	if got := fired(e.Evaluate(n)); len(got) != 1 {
		t.Fatalf("first notification fired %v, want one firing", got)
	}

	// t0 + 0.5T: suppressed, reported but not fired.
	clock.advance(interval / 2)
	outcomes := e.Evaluate(n)
	if len(outcomes) != 1 || outcomes[0].Fired {
		t.Fatalf("half-interval notification = %+v, want suppressed outcome", outcomes)
	}

	// t0 + 1.5T: fires again.
	clock.advance(interval)
	if got := fired(e.Evaluate(n)); len(got) != 1 {
		t.Fatalf("post-interval notification fired %v, want one firing", got)
	}
}

func TestThrottleExactBoundaryFires(t *testing.T) {
	e, clock := newTestEngine()
	e.Register(Registration{ID: "t", Camera: -1, Mode: ModeRecording, Throttle: 10 * time.Second})

	n := Notification{Server: "office", Camera: 1, Trigger: spy.TriggerRecording}
	e.Evaluate(n)
	clock.advance(10 * time.Second)

	if got := fired(e.Evaluate(n)); len(got) != 1 {
		t.Errorf("elapsed == interval fired %v, want one firing", got)
	}
}

func TestThrottleIsPerRegistration(t *testing.T) {
	e, _ := newTestEngine()
	e.Register(Registration{ID: "a", Camera: -1, Mode: ModeRecording, Throttle: time.Minute})
	e.Register(Registration{ID: "b", Camera: -1, Mode: ModeRecording, Throttle: time.Minute})

	n := Notification{Server: "office", Camera: 1, Trigger: spy.TriggerRecording}
	if got := fired(e.Evaluate(n)); len(got) != 2 {
		t.Fatalf("first notification fired %v, want both", got)
	}

	// Both now throttled independently.
	if got := fired(e.Evaluate(n)); len(got) != 0 {
		t.Errorf("second notification fired %v, want none", got)
	}
}

func TestSuppressedNotificationDoesNotResetThrottle(t *testing.T) {
	e, clock := newTestEngine()
	const interval = 10 * time.Second
	e.Register(Registration{ID: "t", Camera: -1, Mode: ModeRecording, Throttle: interval})

	n := Notification{Server: "office", Camera: 1, Trigger: spy.TriggerRecording}
	e.Evaluate(n)

	// Repeated suppressed notifications must not push the window back.
	for i := 0; i < 3; i++ {
		clock.advance(3 * time.Second)
		e.Evaluate(n)
	}

	clock.advance(2 * time.Second) // 11s since the firing
	if got := fired(e.Evaluate(n)); len(got) != 1 {
		t.Errorf("fired %v after full interval, want one firing", got)
	}
}

// === Registration Management ===

func TestUnregisterStopsEvaluation(t *testing.T) {
	e, _ := newTestEngine()
	e.Register(Registration{ID: "t", Camera: -1, Mode: ModeRecording, Throttle: time.Second})
	e.Unregister("t")

	outcomes := e.Evaluate(Notification{
		Server: "office", Camera: 1, Trigger: spy.TriggerRecording,
	})
	if len(outcomes) != 0 {
		t.Errorf("unregistered trigger evaluated: %+v", outcomes)
	}
	if e.Count() != 0 {
		t.Errorf("Count() = %d, want 0", e.Count())
	}
}

func TestReplaceResetsThrottle(t *testing.T) {
	e, _ := newTestEngine()
	reg := Registration{ID: "t", Camera: -1, Mode: ModeRecording, Throttle: time.Minute}
	e.Register(reg)

	n := Notification{Server: "office", Camera: 1, Trigger: spy.TriggerRecording}
	e.Evaluate(n)

	// Re-registering clears last-fire state.
	e.Register(reg)
	if got := fired(e.Evaluate(n)); len(got) != 1 {
		t.Errorf("fired %v after re-register, want one firing", got)
	}
}
