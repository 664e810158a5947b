// Package history persists the bridge's audit trail: device state
// transitions, trigger firings and suppressions, and command dispatch
// outcomes.
//
// The tables are append-only from the bridge's point of view, pruned
// by retention age. Nothing operational reads them back; they exist
// for the history API and post-incident inspection.
package history
