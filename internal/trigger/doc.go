// Package trigger evaluates camera motion notifications against
// registered trigger configurations.
//
// A registration listens in one of three modes: recording (the server
// started a recording), action (the server ran an action), or specified
// (raw classification scores compared against a threshold). Recording
// and action registrations can additionally filter on the reason that
// accompanied the event; specified registrations can invert their
// threshold comparison.
//
// Every registration carries its own rate throttle; a notification that
// passes the filters fires only if the registration's minimum
// inter-fire interval has elapsed, otherwise it is suppressed silently.
package trigger
