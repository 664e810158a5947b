// Package bridge wires the camera servers to MQTT.
//
// Outbound, it publishes retained device state snapshots on every
// reconciled change, relays server push events, announces trigger
// firings, and reports bridge health. Inbound, it executes device
// commands and applies runtime configuration (servers and trigger
// registrations can be added or removed over MQTT without a restart).
//
// Each configured server gets its own reconciliation loop and, when
// enabled, its own event stream consumer; a failing server never stalls
// the others. Command dispatch publishes an acknowledgement per command
// carrying the caller's correlation ID.
package bridge
