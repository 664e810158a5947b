// Package api serves the read-only HTTP surface over the running
// bridge: current device snapshots, trigger registrations, the
// persisted history tables, a health endpoint, and a websocket feed
// mirroring the MQTT state/event/trigger traffic.
//
// The API never mutates anything. Commands go through MQTT so that
// every actor, human or automation, shares one command path with one
// ack and audit story.
package api
