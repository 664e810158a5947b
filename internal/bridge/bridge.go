package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spyglass-home/spyglass-core/internal/dispatch"
	"github.com/spyglass-home/spyglass-core/internal/history"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/config"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/influxdb"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/logging"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/mqtt"
	"github.com/spyglass-home/spyglass-core/internal/reconcile"
	"github.com/spyglass-home/spyglass-core/internal/registry"
	"github.com/spyglass-home/spyglass-core/internal/spy"
	"github.com/spyglass-home/spyglass-core/internal/trigger"
)

// MQTTClient is the slice of the MQTT client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// EventSink receives a copy of everything the bridge publishes, for
// in-process consumers such as the websocket feed.
type EventSink interface {
	StateChanged(msg StateMessage)
	EventReceived(msg EventMessage)
	TriggerFired(msg TriggerMessage)
}

// Deps carries the bridge's collaborators. History, Metrics, and Sink
// are optional; nil disables them.
type Deps struct {
	MQTT    MQTTClient
	History *history.Repository
	Metrics *influxdb.Client
	Sink    EventSink
	Logger  *logging.Logger
}

// serverRuntime is the per-server machinery: the HTTP client, the
// reconciliation loop, and the optional event stream consumer.
type serverRuntime struct {
	cfg        config.SpyServerConfig
	client     *spy.Client
	reconciler *reconcile.Reconciler
	cancel     context.CancelFunc
}

// Bridge ties the camera servers to MQTT: it publishes device state and
// events, executes inbound commands, and fires registered motion
// triggers.
type Bridge struct {
	cfg    config.SpyConfig
	deps   Deps
	topics mqtt.Topics

	registry   *registry.Registry
	engine     *trigger.Engine
	dispatcher *dispatch.Dispatcher

	commandTimeout time.Duration
	started        time.Time

	mu      sync.Mutex
	servers map[string]*serverRuntime
	ctx     context.Context
	wg      sync.WaitGroup
}

// New assembles a bridge from configuration. Start must be called
// before it does anything.
func New(cfg config.SpyConfig, deps Deps) *Bridge {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	commandTimeout := time.Duration(cfg.CommandTimeout) * time.Second
	if commandTimeout <= 0 {
		commandTimeout = 10 * time.Second
	}

	b := &Bridge{
		cfg:            cfg,
		deps:           deps,
		registry:       registry.New(),
		engine:         trigger.NewEngine(),
		commandTimeout: commandTimeout,
		servers:        make(map[string]*serverRuntime),
	}
	b.dispatcher = dispatch.New(b.registry, b)
	return b
}

// Registry exposes the live device registry for read-only consumers
// such as the HTTP API.
func (b *Bridge) Registry() *registry.Registry {
	return b.registry
}

// Engine exposes the trigger engine for read-only consumers.
func (b *Bridge) Engine() *trigger.Engine {
	return b.engine
}

// Lookup implements dispatch.ClientSource.
func (b *Bridge) Lookup(server string) (dispatch.ServerClient, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rt, ok := b.servers[server]
	if !ok {
		return nil, false
	}
	return rt.client, true
}

// Start subscribes to the command and config topics, registers the
// configured triggers, and launches one reconciliation loop (plus event
// stream consumer, when enabled) per configured server. It returns once
// everything is launched; ctx cancellation stops all loops.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx
	b.started = time.Now()

	if err := b.deps.MQTT.Subscribe(b.topics.AllDeviceCommands(), 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	if err := b.deps.MQTT.Subscribe(b.topics.Config(), 1, b.handleConfig); err != nil {
		return fmt.Errorf("subscribing to config: %w", err)
	}

	for _, tcfg := range b.cfg.Triggers {
		reg, err := trigger.FromConfig(tcfg)
		if err != nil {
			return err
		}
		b.engine.Register(reg)
	}

	for _, scfg := range b.cfg.Servers {
		if err := b.addServer(scfg); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every per-server loop has exited.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Health summarises the bridge for the periodic health report.
func (b *Bridge) Health() HealthMessage {
	servers := make(map[string]string)
	status := "ok"
	for _, id := range b.registry.Servers() {
		snap, ok := b.registry.Server(id)
		if !ok {
			continue
		}
		servers[id] = string(snap.State)
		if snap.State != registry.ServerReady {
			status = "degraded"
		}
	}
	if !b.deps.MQTT.IsConnected() {
		status = "degraded"
	}

	return HealthMessage{
		Status:        status,
		Servers:       servers,
		Uptime:        int64(time.Since(b.started).Seconds()),
		MQTTConnected: b.deps.MQTT.IsConnected(),
		Timestamp:     timestamp(),
	}
}

// === Server lifecycle ===

func (b *Bridge) addServer(scfg config.SpyServerConfig) error {
	if scfg.ID == "" || scfg.Host == "" {
		return fmt.Errorf("server config requires id and host")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.servers[scfg.ID]; exists {
		return fmt.Errorf("server %q already configured", scfg.ID)
	}

	client := spy.NewClient(scfg, b.commandTimeout)
	b.registry.AddServer(scfg.ID)

	rec := reconcile.New(reconcile.Config{
		Server:           scfg.ID,
		Interval:         time.Duration(b.cfg.PollInterval) * time.Second,
		FailureThreshold: b.cfg.FailureThreshold,
	}, client, b.registry, b.deps.Logger, func(changes []registry.Change) {
		b.publishChanges(changes)
	})

	ctx, cancel := context.WithCancel(b.ctx)
	rt := &serverRuntime{cfg: scfg, client: client, reconciler: rec, cancel: cancel}
	b.servers[scfg.ID] = rt

	rec.Start(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		rec.Wait()
	}()

	if b.cfg.EventStream {
		b.wg.Add(1)
		go b.streamLoop(ctx, rt)
	}

	b.deps.Logger.Info("server added", "server", scfg.ID, "host", scfg.Host)
	return nil
}

func (b *Bridge) removeServer(id string) error {
	b.mu.Lock()
	rt, ok := b.servers[id]
	if ok {
		delete(b.servers, id)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("server %q not configured", id)
	}

	rt.cancel()
	b.registry.RemoveServer(id)
	b.deps.Logger.Info("server removed", "server", id)
	return nil
}

// === State publication ===

// publishChanges pushes retained state snapshots for every entity that
// changed, records the transitions, and feeds the metrics sink.
func (b *Bridge) publishChanges(changes []registry.Change) {
	if len(changes) == 0 {
		return
	}

	// Group changed fields by entity, preserving detection order.
	var order []registry.EntityID
	fields := make(map[registry.EntityID][]string)
	for _, c := range changes {
		if _, seen := fields[c.Entity]; !seen {
			order = append(order, c.Entity)
		}
		fields[c.Entity] = append(fields[c.Entity], c.Field)
	}

	for _, entity := range order {
		b.publishState(entity, fields[entity])
	}

	if b.deps.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.deps.History.RecordStateChanges(ctx, changes); err != nil {
			b.deps.Logger.Warn("state history write failed", "error", err)
		}
		cancel()
	}

	for _, c := range changes {
		if c.Field == "status" && !c.Entity.IsServer() {
			b.deps.Metrics.WriteCameraState(c.Entity.Server, c.Entity.Camera, c.New)
		}
	}
}

// publishState publishes the entity's full current snapshot, retained,
// so late subscribers see last-known state immediately.
func (b *Bridge) publishState(entity registry.EntityID, changed []string) {
	msg := StateMessage{
		Address:   entity.Address(),
		Changed:   changed,
		Timestamp: timestamp(),
	}

	if entity.IsServer() {
		snap, ok := b.registry.Server(entity.Server)
		if !ok {
			return
		}
		msg.Server = &ServerStatePayload{
			State:   string(snap.State),
			Name:    snap.Name,
			Version: snap.Version,
			Scripts: snap.Scripts,
			Sounds:  snap.Sounds,
		}
	} else {
		snap, ok := b.registry.Camera(entity.Server, entity.Camera)
		if !ok {
			return
		}
		msg.Camera = &CameraStatePayload{
			State:       string(snap.Status),
			Name:        snap.Name,
			Type:        snap.DeviceType,
			Sensitivity: snap.Sensitivity,
			Width:       snap.Width,
			Height:      snap.Height,
			Recording:   snap.Recording,
			Motion:      snap.Motion,
			Actions:     snap.Actions,
			PTZ:         snap.HasPTZ,
			Audio:       snap.HasAudio,
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.deps.Logger.Error("state message encoding failed", "address", msg.Address, "error", err)
		return
	}
	if err := b.deps.MQTT.PublishRetained(b.topics.DeviceState(msg.Address), payload); err != nil {
		b.deps.Logger.Warn("state publish failed", "address", msg.Address, "error", err)
	}
	if b.deps.Sink != nil {
		b.deps.Sink.StateChanged(msg)
	}
}

// === Command handling ===

func (b *Bridge) handleCommand(topic string, payload []byte) error {
	address := topic[strings.LastIndex(topic, "/")+1:]
	entity, err := registry.ParseAddress(address)
	if err != nil {
		b.deps.Logger.Warn("command on unparseable address", "topic", topic, "error", err)
		return nil
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.deps.Logger.Warn("malformed command payload", "address", address, "error", err)
		return nil
	}
	if msg.Correlation == "" {
		msg.Correlation = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
	defer cancel()

	result, dispatchErr := b.dispatcher.Dispatch(ctx, dispatch.Request{
		Entity: entity,
		Kind:   dispatch.Kind(msg.Command),
		Params: msg.Params,
	})

	ack := AckMessage{
		Correlation: msg.Correlation,
		Address:     address,
		Command:     msg.Command,
		Status:      AckAccepted,
		Timestamp:   timestamp(),
	}
	if dispatchErr != nil {
		ack.Status = AckFailed
		ack.ErrorCode = errorCode(dispatchErr)
		ack.Error = dispatchErr.Error()
		b.deps.Logger.Warn("command failed",
			"address", address, "command", msg.Command,
			"correlation", msg.Correlation, "code", ack.ErrorCode,
			"error", dispatchErr)
	} else {
		b.publishChanges(result.Changes)
	}

	if raw, err := json.Marshal(ack); err == nil {
		if err := b.deps.MQTT.Publish(b.topics.DeviceAck(address), raw, 1, false); err != nil {
			b.deps.Logger.Warn("ack publish failed", "address", address, "error", err)
		}
	}

	b.recordCommand(entity, msg, ack)
	return nil
}

func (b *Bridge) recordCommand(entity registry.EntityID, msg CommandMessage, ack AckMessage) {
	if b.deps.History == nil {
		return
	}

	params := ""
	if raw, err := json.Marshal(msg.Params); err == nil && string(raw) != "{}" {
		params = string(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.deps.History.RecordCommand(ctx, history.CommandRecord{
		Correlation: msg.Correlation,
		Entity:      entity,
		Command:     msg.Command,
		Params:      params,
		Status:      ack.Status,
		ErrorCode:   ack.ErrorCode,
	})
	if err != nil {
		b.deps.Logger.Warn("command history write failed", "error", err)
	}
}

// errorCode maps a dispatch error to its wire code.
func errorCode(err error) string {
	var verr *dispatch.ValidationError
	switch {
	case errors.As(err, &verr):
		return ErrCodeValidation
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, spy.ErrAuthentication):
		return ErrCodeAuthentication
	case errors.Is(err, spy.ErrCommandRejected):
		return ErrCodeRejected
	case errors.Is(err, spy.ErrConnection):
		return ErrCodeConnection
	case errors.Is(err, spy.ErrMalformedResponse):
		return ErrCodeMalformed
	case errors.Is(err, spy.ErrUnsupportedVersion):
		return ErrCodeUnsupported
	default:
		return ErrCodeInternal
	}
}

// === Runtime configuration ===

func (b *Bridge) handleConfig(_ string, payload []byte) error {
	var msg ConfigMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.deps.Logger.Warn("malformed config payload", "error", err)
		return nil
	}

	var err error
	switch msg.Action {
	case ConfigAddServer:
		if msg.Server == nil {
			err = fmt.Errorf("add-server requires a server block")
		} else {
			err = b.addServer(*msg.Server)
		}
	case ConfigRemoveServer:
		err = b.removeServer(msg.ID)
	case ConfigAddTrigger:
		if msg.Trigger == nil {
			err = fmt.Errorf("add-trigger requires a trigger block")
		} else {
			var reg trigger.Registration
			if reg, err = trigger.FromConfig(*msg.Trigger); err == nil {
				b.engine.Register(reg)
				b.deps.Logger.Info("trigger registered", "trigger", reg.ID)
			}
		}
	case ConfigRemoveTrigger:
		b.engine.Unregister(msg.ID)
		b.deps.Logger.Info("trigger removed", "trigger", msg.ID)
	default:
		err = fmt.Errorf("unknown config action %q", msg.Action)
	}

	if err != nil {
		b.deps.Logger.Warn("config message rejected", "action", msg.Action, "error", err)
	}
	return nil
}
