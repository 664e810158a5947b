// Package reconcile keeps the registry in sync with each camera
// server's reported status.
//
// One reconciler runs per server, on its own interval, so a failing
// server never stalls the others. Each pass fetches the server's status
// document, diffs every reported camera against the registry snapshot
// field by field, and emits one change notification per changed field.
// Repeated identical snapshots are no-ops.
//
// Consecutive fetch failures past a threshold degrade the server to
// unavailable, cascading to its cameras in the same pass; the first
// successful fetch afterwards restores it and re-seeds every camera.
package reconcile
