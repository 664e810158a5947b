// Package registry holds the in-memory map of bridged devices and their
// last-known state.
//
// Two device kinds exist: the camera server itself, and the cameras it
// reports. Both are addressed by EntityID, which renders to the flat
// topic address the MQTT layer uses ("office" for a server, "office:3"
// for camera 3 on it).
//
// The registry is the single source of truth for device state between
// reconciliation passes. Writers merge whole snapshots and receive the
// field-level diff back, so the caller can emit exactly one
// notification per changed field. Nothing is persisted: a restart
// rebuilds every entity from the first reconciliation pass.
package registry
