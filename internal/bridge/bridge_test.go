package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/dispatch"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/logging"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/mqtt"
	"github.com/spyglass-home/spyglass-core/internal/spy"
)

const statusDocument = `<?xml version="1.0"?>
<system>
  <server>
    <name>Office Spy</name>
    <version>5.3.4</version>
    <eventstreamcount>1000</eventstreamcount>
  </server>
  <cameralist>
    <camera>
      <number>1</number>
      <name>Driveway</name>
      <connected>yes</connected>
      <width>1920</width>
      <height>1080</height>
      <mode-m>armed</mode-m>
      <mode-c>disarmed</mode-c>
      <mode-a>disarmed</mode-a>
      <devicetype>Network</devicetype>
      <ptzcapabilities>1</ptzcapabilities>
      <mdsensitivity>50</mdsensitivity>
    </camera>
  </cameralist>
</system>`

// cameraNumber builds the optional camera filter of a trigger entry.
func cameraNumber(n int) *int {
	return &n
}

// publication is one record of a mock MQTT publish.
type publication struct {
	topic    string
	payload  []byte
	retained bool
}

// mockMQTT records publishes and lets tests deliver inbound messages.
type mockMQTT struct {
	mu        sync.Mutex
	published []publication
	subs      map[string]mqtt.MessageHandler
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{subs: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publication{topic, payload, retained})
	return nil
}

func (m *mockMQTT) PublishRetained(topic string, payload []byte) error {
	return m.Publish(topic, payload, 1, true)
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool { return true }

// deliver routes a message to the handler of the matching subscription
// pattern (exact match, or a trailing "+" wildcard level).
func (m *mockMQTT) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range m.subs {
		if pattern == topic || matchWildcard(pattern, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()

	if handler == nil {
		t.Fatalf("no subscription matches %q", topic)
	}
	if err := handler(topic, payload); err != nil {
		t.Fatalf("handler for %q failed: %v", topic, err)
	}
}

func matchWildcard(pattern, topic string) bool {
	if len(pattern) < 2 || pattern[len(pattern)-1] != '+' {
		return false
	}
	prefix := pattern[:len(pattern)-1]
	return len(topic) > len(prefix) && topic[:len(prefix)] == prefix
}

// find returns the most recent publication on a topic.
func (m *mockMQTT) find(topic string) (publication, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].topic == topic {
			return m.published[i], true
		}
	}
	return publication{}, false
}

// waitFor polls until a publication appears on the topic.
func (m *mockMQTT) waitFor(t *testing.T, topic string) publication {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if pub, ok := m.find(topic); ok {
			return pub
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no publication on %q", topic)
	return publication{}
}

// fakeSpyServer backs the bridge with a canned SecuritySpy endpoint.
type fakeSpyServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
}

func newFakeSpyServer(t *testing.T) *fakeSpyServer {
	t.Helper()
	f := &fakeSpyServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.Path)
		f.mu.Unlock()

		if r.URL.Path == "/++systemInfo" {
			w.Header().Set("Content-Type", "text/xml")
			fmt.Fprint(w, statusDocument)
			return
		}
		// Command endpoints and catalog lists all answer 200.
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeSpyServer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSpyServer) sawPath(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.requests {
		if p == path {
			return true
		}
	}
	return false
}

func (f *fakeSpyServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	u, err := url.Parse(f.URL)
	if err != nil {
		t.Fatalf("parsing fake server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing fake server port: %v", err)
	}
	return u.Hostname(), port
}

func startTestBridge(t *testing.T, eventStream bool) (*Bridge, *mockMQTT, *fakeSpyServer) {
	t.Helper()

	fake := newFakeSpyServer(t)
	host, port := fake.hostPort(t)

	mock := newMockMQTT()
	b := New(config.SpyConfig{
		PollInterval:     3600,
		FailureThreshold: 3,
		CommandTimeout:   5,
		EventStream:      eventStream,
		Servers: []config.SpyServerConfig{
			{ID: "office", Host: host, Port: port},
		},
	}, Deps{
		MQTT:   mock,
		Logger: logging.New(config.LoggingConfig{Level: "error", Format: "json"}, "test"),
	})

	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(func() {
		cancel()
		b.Wait()
	})
	if err := b.Start(ctx); err != nil {
		t.Fatalf("starting bridge: %v", err)
	}

	// The initial reconciliation pass publishes retained state.
	mock.waitFor(t, "spyglass/state/spy/office")
	mock.waitFor(t, "spyglass/state/spy/office:1")
	return b, mock, fake
}

// === Startup and State Publication ===

func TestBridgePublishesSeededState(t *testing.T) {
	b, mock, _ := startTestBridge(t, false)

	pub, _ := mock.find("spyglass/state/spy/office")
	if !pub.retained {
		t.Error("server state not retained")
	}
	var serverMsg StateMessage
	if err := json.Unmarshal(pub.payload, &serverMsg); err != nil {
		t.Fatalf("decoding server state: %v", err)
	}
	if serverMsg.Server == nil || serverMsg.Server.State != "ready" || serverMsg.Server.Version != "5.3.4" {
		t.Errorf("server state = %+v", serverMsg.Server)
	}

	pub, _ = mock.find("spyglass/state/spy/office:1")
	var camMsg StateMessage
	if err := json.Unmarshal(pub.payload, &camMsg); err != nil {
		t.Fatalf("decoding camera state: %v", err)
	}
	if camMsg.Camera == nil || camMsg.Camera.State != "active" || !camMsg.Camera.PTZ {
		t.Errorf("camera state = %+v", camMsg.Camera)
	}
	if camMsg.Camera.Sensitivity != 50 || camMsg.Camera.Width != 1920 {
		t.Errorf("camera fields = %+v", camMsg.Camera)
	}

	snap, ok := b.Registry().Camera("office", 1)
	if !ok || !snap.Motion {
		t.Errorf("registry camera = %+v, found %v", snap, ok)
	}
}

// === Command Handling ===

func TestCommandDispatchAndAck(t *testing.T) {
	_, mock, fake := startTestBridge(t, false)

	cmd, _ := json.Marshal(CommandMessage{
		Correlation: "corr-1",
		Command:     "trigger-recording",
	})
	mock.deliver(t, "spyglass/command/spy/office:1", cmd)

	pub := mock.waitFor(t, "spyglass/ack/spy/office:1")
	var ack AckMessage
	if err := json.Unmarshal(pub.payload, &ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if ack.Status != AckAccepted || ack.Correlation != "corr-1" || ack.Command != "trigger-recording" {
		t.Errorf("ack = %+v", ack)
	}
	if !fake.sawPath("/++triggermd") {
		t.Error("trigger-recording never reached the server")
	}
}

func TestCommandValidationFailureAck(t *testing.T) {
	_, mock, fake := startTestBridge(t, false)

	before := fake.requestCount()
	cmd, _ := json.Marshal(CommandMessage{
		Correlation: "corr-2",
		Command:     "set-sensitivity",
		Params:      dispatch.Params{Sensitivity: 900},
	})
	mock.deliver(t, "spyglass/command/spy/office:1", cmd)

	pub := mock.waitFor(t, "spyglass/ack/spy/office:1")
	var ack AckMessage
	json.Unmarshal(pub.payload, &ack)
	if ack.Status != AckFailed || ack.ErrorCode != ErrCodeValidation {
		t.Errorf("ack = %+v", ack)
	}
	if fake.requestCount() != before {
		t.Error("validation failure reached the server")
	}
}

func TestCommandGeneratesCorrelation(t *testing.T) {
	_, mock, _ := startTestBridge(t, false)

	cmd, _ := json.Marshal(CommandMessage{Command: "trigger-recording"})
	mock.deliver(t, "spyglass/command/spy/office:1", cmd)

	pub := mock.waitFor(t, "spyglass/ack/spy/office:1")
	var ack AckMessage
	json.Unmarshal(pub.payload, &ack)
	if ack.Correlation == "" {
		t.Error("ack missing generated correlation")
	}
}

func TestCommandPublishesOptimisticState(t *testing.T) {
	b, mock, _ := startTestBridge(t, false)

	cmd, _ := json.Marshal(CommandMessage{
		Command: "set-sensitivity",
		Params:  dispatch.Params{Sensitivity: 80},
	})
	mock.deliver(t, "spyglass/command/spy/office:1", cmd)
	mock.waitFor(t, "spyglass/ack/spy/office:1")

	pub, _ := mock.find("spyglass/state/spy/office:1")
	var msg StateMessage
	json.Unmarshal(pub.payload, &msg)
	if msg.Camera == nil || msg.Camera.Sensitivity != 80 {
		t.Errorf("republished state = %+v", msg.Camera)
	}
	if snap, _ := b.Registry().Camera("office", 1); snap.Sensitivity != 80 {
		t.Errorf("registry sensitivity = %d", snap.Sensitivity)
	}
}

func TestMalformedCommandIgnored(t *testing.T) {
	_, mock, _ := startTestBridge(t, false)
	mock.deliver(t, "spyglass/command/spy/office:1", []byte("{not json"))
	if _, ok := mock.find("spyglass/ack/spy/office:1"); ok {
		t.Error("malformed payload produced an ack")
	}
}

// === Runtime Configuration ===

func TestConfigTriggerLifecycle(t *testing.T) {
	b, mock, _ := startTestBridge(t, false)

	add, _ := json.Marshal(ConfigMessage{
		Action: ConfigAddTrigger,
		Trigger: &config.SpyTriggerConfig{
			ID: "front-door", Server: "office", Camera: cameraNumber(1),
			Mode: "recording", Throttle: 5,
		},
	})
	mock.deliver(t, "spyglass/config/spy", add)
	if b.Engine().Count() != 1 {
		t.Fatalf("trigger count = %d after add, want 1", b.Engine().Count())
	}

	remove, _ := json.Marshal(ConfigMessage{Action: ConfigRemoveTrigger, ID: "front-door"})
	mock.deliver(t, "spyglass/config/spy", remove)
	if b.Engine().Count() != 0 {
		t.Errorf("trigger count = %d after remove, want 0", b.Engine().Count())
	}
}

func TestConfigRemoveServer(t *testing.T) {
	b, mock, _ := startTestBridge(t, false)

	remove, _ := json.Marshal(ConfigMessage{Action: ConfigRemoveServer, ID: "office"})
	mock.deliver(t, "spyglass/config/spy", remove)

	if _, ok := b.Registry().Server("office"); ok {
		t.Error("server still registered after remove")
	}
	if _, ok := b.Lookup("office"); ok {
		t.Error("client still resolvable after remove")
	}
}

// === Error Codes ===

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &dispatch.ValidationError{Reason: "x"}, ErrCodeValidation},
		{"connection", spy.ErrConnection, ErrCodeConnection},
		{"authentication", spy.ErrAuthentication, ErrCodeAuthentication},
		{"rejected", spy.ErrCommandRejected, ErrCodeRejected},
		{"status wraps auth", &spy.StatusError{Code: 401}, ErrCodeAuthentication},
		{"status wraps rejected", &spy.StatusError{Code: 500}, ErrCodeRejected},
		{"malformed", spy.ErrMalformedResponse, ErrCodeMalformed},
		{"unsupported", spy.ErrUnsupportedVersion, ErrCodeUnsupported},
		{"timeout", context.DeadlineExceeded, ErrCodeTimeout},
		{"unknown", errors.New("boom"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorCode(tt.err); got != tt.want {
				t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

// === Health ===

func TestHealthSummary(t *testing.T) {
	b, _, _ := startTestBridge(t, false)

	msg := b.Health()
	if msg.Status != "ok" || !msg.MQTTConnected {
		t.Errorf("health = %+v", msg)
	}
	if msg.Servers["office"] != "ready" {
		t.Errorf("server health = %q, want ready", msg.Servers["office"])
	}
}

func TestHealthReporterPublishes(t *testing.T) {
	mock := newMockMQTT()
	reporter := NewHealthReporter(mock, time.Hour, func() HealthMessage {
		return HealthMessage{Status: "ok", Timestamp: timestamp()}
	}, nil)

	reporter.Start()
	defer reporter.Stop()

	pub := mock.waitFor(t, "spyglass/health/spy")
	if !pub.retained {
		t.Error("health report not retained")
	}
	var msg HealthMessage
	if err := json.Unmarshal(pub.payload, &msg); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if msg.Status != "ok" {
		t.Errorf("health status = %q", msg.Status)
	}
}

func TestHealthReporterStopIdempotent(t *testing.T) {
	mock := newMockMQTT()
	reporter := NewHealthReporter(mock, time.Hour, func() HealthMessage {
		return HealthMessage{Status: "ok"}
	}, nil)
	reporter.Start()
	reporter.Stop()
	reporter.Stop()
}
