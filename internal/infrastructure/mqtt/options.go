package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
)

// Connection timeouts and intervals.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultSubscribeTimeout  = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds

	defaultKeepAlive            = 30 * time.Second
	defaultPingTimeout          = 10 * time.Second
	defaultMaxReconnectInterval = 2 * time.Minute
	defaultConnectRetryInterval = 1 * time.Second
)

// buildClientOptions constructs paho client options from Spyglass config.
//
// It configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID, username, password
//   - Keep-alive and ping timeouts
//   - Auto-reconnect with exponential backoff
//   - Clean session false (persistent session for QoS 1+ messages)
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	// Broker URL with protocol prefix
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	opts.AddBroker(brokerURL)

	// Identity
	opts.SetClientID(cfg.Broker.ClientID)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// TLS configuration
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	// Connection behaviour
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetPingTimeout(defaultPingTimeout)
	opts.SetConnectTimeout(defaultConnectTimeout)

	// Reconnection with exponential backoff
	opts.SetAutoReconnect(true)
	maxReconnect := defaultMaxReconnectInterval
	if cfg.Reconnect.MaxDelay > 0 {
		maxReconnect = time.Duration(cfg.Reconnect.MaxDelay) * time.Second
	}
	retryInterval := defaultConnectRetryInterval
	if cfg.Reconnect.InitialDelay > 0 {
		retryInterval = time.Duration(cfg.Reconnect.InitialDelay) * time.Second
	}
	opts.SetMaxReconnectInterval(maxReconnect)
	opts.SetConnectRetryInterval(retryInterval)
	opts.SetConnectRetry(true)

	// Persistent session: broker queues QoS 1+ messages while we're offline
	opts.SetCleanSession(false)

	// Order matters for state updates
	opts.SetOrderMatters(true)

	return opts
}

// configureLWT sets up the Last Will and Testament message.
//
// The LWT is published by the broker if Core disconnects ungracefully
// (crash, network failure). Subscribers can distinguish:
//   - Graceful shutdown: {"online": false, "reason": "shutdown"}
//   - Crash/network loss: {"online": false, "reason": "connection_lost"} (LWT)
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	topic := Topics{}.SystemStatus()
	payload := buildLWTPayload(clientID)

	// QoS 1, retained: new subscribers immediately learn Core is offline
	opts.SetWill(topic, string(payload), 1, true)
}

// buildOnlinePayload creates the online status message.
func buildOnlinePayload(clientID string) []byte {
	return []byte(fmt.Sprintf(
		`{"online":true,"client_id":%q,"timestamp":%q}`,
		clientID, time.Now().UTC().Format(time.RFC3339),
	))
}

// buildOfflinePayload creates the graceful shutdown status message.
func buildOfflinePayload(clientID string) []byte {
	return []byte(fmt.Sprintf(
		`{"online":false,"client_id":%q,"reason":"shutdown","timestamp":%q}`,
		clientID, time.Now().UTC().Format(time.RFC3339),
	))
}

// buildLWTPayload creates the Last Will message (ungraceful disconnect).
// Note: no timestamp because the broker publishes this at an unknown future time.
func buildLWTPayload(clientID string) []byte {
	return []byte(fmt.Sprintf(
		`{"online":false,"client_id":%q,"reason":"connection_lost"}`,
		clientID,
	))
}
