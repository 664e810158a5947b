// Package spy is the HTTP client for SecuritySpy camera servers.
//
// This package manages:
//   - Status fetches (server info plus the full camera list)
//   - Control commands (arm modes, PTZ, overlay, sensitivity, scripts, sounds)
//   - The push event stream (motion triggers, arm changes, classification)
//
// The client is deliberately stateless: it translates between Go types
// and the server's web interface, nothing more. State tracking lives in
// the registry package and reconciliation in the reconcile package.
//
// Version dialects: the control surface changed shape at major version
// boundaries (per-mode arm endpoints at v4, the overlay form at v3).
// Version-gated methods take the major version as a parameter so the
// component that fetched the status decides the dialect.
package spy
