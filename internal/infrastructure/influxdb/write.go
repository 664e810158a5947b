package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCameraState records a camera status transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - serverID: Camera server identifier (e.g., "office")
//   - cameraNum: Camera number on that server
//   - status: New status ("active", "passive", "disconnected", "unavailable")
//
// Example:
//
//	client.WriteCameraState("office", 3, "active")
func (c *Client) WriteCameraState(serverID string, cameraNum int, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"camera_state",
		map[string]string{
			"server": serverID,
			"camera": strconv.Itoa(cameraNum),
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMotionEvent records a motion notification from the event stream.
//
// Parameters:
//   - serverID: Camera server identifier
//   - cameraNum: Camera number the motion was detected on
//   - reasons: Decoded detection reasons (e.g., ["motion", "human"])
func (c *Client) WriteMotionEvent(serverID string, cameraNum int, reasons []string) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	for _, reason := range reasons {
		fields["reason_"+reason] = 1
	}

	point := write.NewPoint(
		"motion_events",
		map[string]string{
			"server": serverID,
			"camera": strconv.Itoa(cameraNum),
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTriggerActivity records a trigger evaluation outcome.
//
// Both firings and throttle/filter suppressions are recorded so
// dashboards can show suppression rates per trigger.
//
// Parameters:
//   - triggerID: Trigger registration identifier
//   - fired: Whether the trigger fired (false = suppressed)
func (c *Client) WriteTriggerActivity(triggerID string, fired bool) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"fired":      boolToInt(fired),
		"suppressed": boolToInt(!fired),
	}

	point := write.NewPoint(
		"trigger_activity",
		map[string]string{
			"trigger": triggerID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteServerHealth records camera-server availability and reconcile latency.
//
// Parameters:
//   - serverID: Camera server identifier
//   - available: Whether the last status fetch succeeded
//   - latency: Duration of the last status fetch
func (c *Client) WriteServerHealth(serverID string, available bool, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"server_health",
		map[string]string{
			"server": serverID,
		},
		map[string]interface{}{
			"available":  boolToInt(available),
			"latency_ms": float64(latency.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
