// Package influxdb provides time-series metric recording for Spyglass Core.
//
// This package manages:
//   - Connection to an InfluxDB v2 server with token authentication
//   - Non-blocking, batched metric writes
//   - Camera state, motion event, trigger, and server health measurements
//
// Metrics are optional: when disabled in configuration, Connect returns
// ErrDisabled and callers run without a metrics client. Write helpers on
// a disconnected client are silent no-ops, so callers never need to guard
// metric calls.
//
// # Usage
//
//	metrics, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    metrics = nil // run without metrics
//	} else if err != nil {
//	    log.Fatal(err)
//	}
//
//	metrics.WriteCameraState("office", 3, "active")
//	metrics.WriteMotionEvent("office", 3, []string{"motion", "human"})
package influxdb
