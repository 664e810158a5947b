// Package dispatch translates discrete device commands into camera
// server calls.
//
// Every command kind maps to exactly one server call through a static
// handler table. Before any network traffic, a request is validated
// against the registry: the owning server must be ready, camera
// commands need a known camera, PTZ commands need the camera's PTZ
// capability, and parameters are range-checked. Validation failures
// return *ValidationError and change nothing.
//
// On a successful server call, commands that change an observable flag
// (activation, capture arming, sensitivity) update the registry
// optimistically; the next reconciliation pass confirms or corrects the
// value from server-reported state. Failed calls leave the registry
// untouched.
package dispatch
