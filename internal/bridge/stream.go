package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/history"
	"github.com/spyglass-home/spyglass-core/internal/registry"
	"github.com/spyglass-home/spyglass-core/internal/spy"
	"github.com/spyglass-home/spyglass-core/internal/trigger"
)

// Stream reconnect backoff bounds.
const (
	streamBackoffInitial = time.Second
	streamBackoffMax     = time.Minute
)

var captureFlagFields = map[spy.CaptureType]string{
	spy.CaptureMotion:     "motion",
	spy.CaptureContinuous: "recording",
	spy.CaptureActions:    "actions",
}

// streamLoop consumes the server's push event feed, reconnecting with
// exponential backoff. Polling still runs underneath it; the stream
// only tightens latency.
func (b *Bridge) streamLoop(ctx context.Context, rt *serverRuntime) {
	defer b.wg.Done()

	backoff := streamBackoffInitial
	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := rt.client.OpenEventStream(ctx)
		if err != nil {
			b.deps.Logger.Warn("event stream connect failed",
				"server", rt.cfg.ID, "retry_in", backoff, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, streamBackoffMax)
			continue
		}

		b.deps.Logger.Info("event stream connected", "server", rt.cfg.ID)
		backoff = streamBackoffInitial
		b.consumeStream(ctx, rt, stream)
		stream.Close()
	}
}

func (b *Bridge) consumeStream(ctx context.Context, rt *serverRuntime, stream *spy.EventStream) {
	for {
		ev, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				b.deps.Logger.Warn("event stream closed by server", "server", rt.cfg.ID)
				return
			}
			// Malformed lines are logged and skipped; anything else
			// forces a reconnect.
			if errors.Is(err, spy.ErrMalformedResponse) {
				b.deps.Logger.Warn("unparseable event line", "server", rt.cfg.ID, "error", err)
				continue
			}
			b.deps.Logger.Warn("event stream read failed", "server", rt.cfg.ID, "error", err)
			return
		}

		b.handleEvent(ctx, rt, ev)
	}
}

func (b *Bridge) handleEvent(ctx context.Context, rt *serverRuntime, ev spy.Event) {
	entity := registry.ServerID(rt.cfg.ID)
	if ev.Camera >= 0 {
		entity = registry.CameraID(rt.cfg.ID, ev.Camera)
		if _, known := b.registry.Camera(entity.Server, entity.Camera); !known {
			// The last report did not include this camera; resync now
			// rather than waiting out the poll interval.
			rt.reconciler.Kick()
		}
	}

	b.publishEvent(entity, ev)

	switch ev.Type {
	case spy.EventConfigChange:
		// Camera layout or settings changed server-side; reconcile now
		// rather than waiting out the poll interval.
		rt.reconciler.RefreshCatalogs(ctx)
		rt.reconciler.Kick()

	case spy.EventOnline, spy.EventOffline, spy.EventActive, spy.EventPassive:
		rt.reconciler.Kick()

	case spy.EventArm, spy.EventDisarm:
		b.applyArmEvent(entity, ev)

	case spy.EventMotion:
		// Older servers report plain MOTION with no reason bits or
		// classification scores. Fan it out as a recording trigger and
		// an empty classification so both registration shapes see it.
		b.deps.Metrics.WriteMotionEvent(entity.Server, entity.Camera, ev.Reasons)
		b.evaluateTriggers(entity, trigger.Notification{
			Server:  entity.Server,
			Camera:  entity.Camera,
			Trigger: spy.TriggerRecording,
			Reasons: ev.Reasons,
		})
		b.evaluateTriggers(entity, trigger.Notification{
			Server:     entity.Server,
			Camera:     entity.Camera,
			Confidence: map[string]int{},
		})

	case spy.EventTrigger:
		b.deps.Metrics.WriteMotionEvent(entity.Server, entity.Camera, ev.Reasons)
		b.evaluateTriggers(entity, trigger.Notification{
			Server:  entity.Server,
			Camera:  entity.Camera,
			Trigger: ev.Trigger,
			Reasons: ev.Reasons,
		})

	case spy.EventClassify:
		b.evaluateTriggers(entity, trigger.Notification{
			Server:     entity.Server,
			Camera:     entity.Camera,
			Confidence: ev.Classify,
		})

	case spy.EventError:
		b.deps.Logger.Warn("server reported error", "server", rt.cfg.ID, "message", ev.Message)
	}
}

// applyArmEvent folds a push-reported arm change straight into the
// registry instead of waiting for the next poll.
func (b *Bridge) applyArmEvent(entity registry.EntityID, ev spy.Event) {
	if entity.IsServer() {
		return
	}
	field, ok := captureFlagFields[ev.Capture]
	if !ok {
		return
	}

	armed := ev.Type == spy.EventArm
	if change, moved := b.registry.SetCameraFlag(entity.Server, entity.Camera, field, armed); moved {
		b.publishChanges([]registry.Change{change})
	}
}

func (b *Bridge) publishEvent(entity registry.EntityID, ev spy.Event) {
	msg := EventMessage{
		Address:   entity.Address(),
		Type:      string(ev.Type),
		Sequence:  ev.Sequence,
		Capture:   string(ev.Capture),
		Trigger:   string(ev.Trigger),
		Reasons:   ev.Reasons,
		Classify:  ev.Classify,
		Message:   ev.Message,
		Timestamp: timestamp(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := b.deps.MQTT.Publish(b.topics.DeviceEvent(msg.Address), payload, 0, false); err != nil {
		b.deps.Logger.Warn("event publish failed", "address", msg.Address, "error", err)
	}
	if b.deps.Sink != nil {
		b.deps.Sink.EventReceived(msg)
	}
}

// evaluateTriggers runs a notification through the engine and publishes
// a firing message per fired registration. Suppressed matches are
// recorded but not published.
func (b *Bridge) evaluateTriggers(entity registry.EntityID, n trigger.Notification) {
	for _, outcome := range b.engine.Evaluate(n) {
		if outcome.Fired {
			msg := TriggerMessage{
				Trigger:    outcome.Registration.ID,
				Address:    entity.Address(),
				Reasons:    n.Reasons,
				Confidence: n.Confidence,
				Timestamp:  timestamp(),
			}
			if payload, err := json.Marshal(msg); err == nil {
				topic := b.topics.TriggerFired(outcome.Registration.ID)
				if err := b.deps.MQTT.Publish(topic, payload, 1, false); err != nil {
					b.deps.Logger.Warn("trigger publish failed", "trigger", msg.Trigger, "error", err)
				}
			}
			if b.deps.Sink != nil {
				b.deps.Sink.TriggerFired(msg)
			}
		}

		b.deps.Metrics.WriteTriggerActivity(outcome.Registration.ID, outcome.Fired)
		b.recordTrigger(entity, n, outcome)
	}
}

func (b *Bridge) recordTrigger(entity registry.EntityID, n trigger.Notification, outcome trigger.Outcome) {
	if b.deps.History == nil {
		return
	}

	suppressed := ""
	if !outcome.Fired {
		suppressed = "throttled"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.deps.History.RecordTrigger(ctx, history.TriggerRecord{
		TriggerID:  outcome.Registration.ID,
		Entity:     entity,
		Reasons:    n.Reasons,
		Confidence: n.Confidence,
		Fired:      outcome.Fired,
		Suppressed: suppressed,
	})
	if err != nil {
		b.deps.Logger.Warn("trigger history write failed", "error", err)
	}
}
