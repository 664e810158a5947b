package dispatch

// ValidationError rejects a command before any network call: the target
// entity is in an incompatible state, lacks a capability, or the
// parameters are out of range. No entity state changes.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "command validation failed: " + e.Reason
}
