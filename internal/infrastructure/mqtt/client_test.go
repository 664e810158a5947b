package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// Client State Tests
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := &Client{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := client.HealthCheck(ctx)
	if err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish Validation Tests
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Publish("test/topic", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := &Client{}

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("test/topic", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := &Client{}

	err := client.Publish("test/topic", []byte("test"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Validation Tests
// =============================================================================

func TestSubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 3, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscriptionCount_Empty(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestHasSubscription_NotSubscribed(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.HasSubscription("nonexistent/topic") {
		t.Error("HasSubscription() should be false for unsubscribed topic")
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "DeviceState",
			builder: func() string {
				return Topics{}.DeviceState("office:3")
			},
			expected: "spyglass/state/spy/office:3",
		},
		{
			name: "DeviceStateServer",
			builder: func() string {
				return Topics{}.DeviceState("office")
			},
			expected: "spyglass/state/spy/office",
		},
		{
			name: "DeviceCommand",
			builder: func() string {
				return Topics{}.DeviceCommand("office:3")
			},
			expected: "spyglass/command/spy/office:3",
		},
		{
			name: "DeviceAck",
			builder: func() string {
				return Topics{}.DeviceAck("office:3")
			},
			expected: "spyglass/ack/spy/office:3",
		},
		{
			name: "DeviceEvent",
			builder: func() string {
				return Topics{}.DeviceEvent("office:3")
			},
			expected: "spyglass/event/spy/office:3",
		},
		{
			name: "TriggerFired",
			builder: func() string {
				return Topics{}.TriggerFired("front-door-motion")
			},
			expected: "spyglass/trigger/spy/front-door-motion",
		},
		{
			name: "Health",
			builder: func() string {
				return Topics{}.Health()
			},
			expected: "spyglass/health/spy",
		},
		{
			name: "Config",
			builder: func() string {
				return Topics{}.Config()
			},
			expected: "spyglass/config/spy",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "spyglass/system/status",
		},
		{
			name: "AllDeviceCommands",
			builder: func() string {
				return Topics{}.AllDeviceCommands()
			},
			expected: "spyglass/command/spy/+",
		},
		{
			name: "AllDeviceStates",
			builder: func() string {
				return Topics{}.AllDeviceStates()
			},
			expected: "spyglass/state/spy/+",
		},
		{
			name: "AllDeviceEvents",
			builder: func() string {
				return Topics{}.AllDeviceEvents()
			},
			expected: "spyglass/event/spy/+",
		},
		{
			name: "AllTriggers",
			builder: func() string {
				return Topics{}.AllTriggers()
			},
			expected: "spyglass/trigger/spy/+",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "spyglass/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

// =============================================================================
// Status Payload Tests
// =============================================================================

func TestOnlinePayload(t *testing.T) {
	payload := buildOnlinePayload("spyglass-core")

	var decoded struct {
		Online    bool   `json:"online"`
		ClientID  string `json:"client_id"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("online payload is not valid JSON: %v", err)
	}

	if !decoded.Online {
		t.Error("online payload: online = false, want true")
	}
	if decoded.ClientID != "spyglass-core" {
		t.Errorf("online payload: client_id = %q, want %q", decoded.ClientID, "spyglass-core")
	}
	if decoded.Timestamp == "" {
		t.Error("online payload: timestamp missing")
	}
}

func TestOfflinePayload(t *testing.T) {
	payload := buildOfflinePayload("spyglass-core")

	var decoded struct {
		Online bool   `json:"online"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("offline payload is not valid JSON: %v", err)
	}

	if decoded.Online {
		t.Error("offline payload: online = true, want false")
	}
	if decoded.Reason != "shutdown" {
		t.Errorf("offline payload: reason = %q, want %q", decoded.Reason, "shutdown")
	}
}

func TestLWTPayload(t *testing.T) {
	payload := buildLWTPayload("spyglass-core")

	var decoded struct {
		Online bool   `json:"online"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("LWT payload is not valid JSON: %v", err)
	}

	if decoded.Online {
		t.Error("LWT payload: online = true, want false")
	}
	if decoded.Reason != "connection_lost" {
		t.Errorf("LWT payload: reason = %q, want %q", decoded.Reason, "connection_lost")
	}

	// The broker publishes the LWT at an unknown future time, so it must
	// not carry a timestamp captured at connect time.
	if strings.Contains(string(payload), "timestamp") {
		t.Error("LWT payload should not contain a timestamp")
	}
}
