package mqtt

import "fmt"

// Topic prefixes for the Spyglass MQTT namespace.
//
// All device topics use the flat scheme: spyglass/{category}/{protocol}/{address}
// where protocol is "spy" for SecuritySpy-backed devices and address identifies
// a server ("office") or a camera on a server ("office:3").
const (
	// TopicPrefixDevice is the base for all device topics.
	// Flat scheme: spyglass/{category}/spy/{address_or_id}
	TopicPrefixDevice = "spyglass"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "spyglass/system"
)

// Protocol is the protocol segment used in all device topics.
const Protocol = "spy"

// Topics provides builders for Spyglass MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("office:3")
//	// Returns: "spyglass/state/spy/office:3"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the topic for device state updates.
//
// Example: spyglass/state/spy/office:3
func (Topics) DeviceState(address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixDevice, Protocol, address)
}

// DeviceCommand returns the topic for commands to a device.
//
// Example: spyglass/command/spy/office:3
func (Topics) DeviceCommand(address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixDevice, Protocol, address)
}

// DeviceAck returns the topic for command acknowledgements.
//
// Example: spyglass/ack/spy/office:3
func (Topics) DeviceAck(address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixDevice, Protocol, address)
}

// DeviceEvent returns the topic for trigger and stream events from a device.
//
// Example: spyglass/event/spy/office:3
func (Topics) DeviceEvent(address string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefixDevice, Protocol, address)
}

// TriggerFired returns the topic for motion trigger notifications.
//
// Example: spyglass/trigger/spy/front-door-motion
func (Topics) TriggerFired(triggerID string) string {
	return fmt.Sprintf("%s/trigger/%s/%s", TopicPrefixDevice, Protocol, triggerID)
}

// Health returns the topic for bridge health status.
//
// Example: spyglass/health/spy
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixDevice, Protocol)
}

// Config returns the topic for configuration updates to the bridge.
//
// Example: spyglass/config/spy
func (Topics) Config() string {
	return fmt.Sprintf("%s/config/%s", TopicPrefixDevice, Protocol)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: spyglass/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceCommands returns a pattern matching all commands to devices.
//
// Pattern: spyglass/command/spy/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefixDevice, Protocol)
}

// AllDeviceStates returns a pattern matching all device state updates.
//
// Pattern: spyglass/state/spy/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefixDevice, Protocol)
}

// AllDeviceEvents returns a pattern matching all device events.
//
// Pattern: spyglass/event/spy/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/event/%s/+", TopicPrefixDevice, Protocol)
}

// AllTriggers returns a pattern matching all trigger notifications.
//
// Pattern: spyglass/trigger/spy/+
func (Topics) AllTriggers() string {
	return fmt.Sprintf("%s/trigger/%s/+", TopicPrefixDevice, Protocol)
}

// AllTopics returns a pattern matching all Spyglass topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: spyglass/#
func (Topics) AllTopics() string {
	return "spyglass/#"
}
