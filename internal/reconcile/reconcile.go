package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/infrastructure/logging"
	"github.com/spyglass-home/spyglass-core/internal/registry"
	"github.com/spyglass-home/spyglass-core/internal/spy"
)

// StatusClient is the slice of the camera-server client the reconciler
// reads from.
type StatusClient interface {
	FetchSystemInfo(ctx context.Context) (*spy.SystemInfo, error)
	FetchScripts(ctx context.Context) ([]string, error)
	FetchSounds(ctx context.Context) ([]string, error)
}

// Config tunes one server's reconciliation loop.
type Config struct {
	// Server is the registry identifier of the server being reconciled.
	Server string

	// Interval is the poll period.
	Interval time.Duration

	// FailureThreshold is the number of consecutive failed fetches
	// before the server and its cameras are marked unavailable.
	FailureThreshold int

	// FetchTimeout bounds a single status fetch.
	FetchTimeout time.Duration
}

// Defaults applied when Config fields are zero.
const (
	DefaultInterval         = 10 * time.Second
	DefaultFailureThreshold = 3
	DefaultFetchTimeout     = 15 * time.Second
)

// Reconciler keeps one server's registry entries in sync with the
// server's reported status. Each reconciler runs its own loop; servers
// never block each other.
//
// A pass never overlaps the next: the loop runs passes from a single
// goroutine, so a tick arriving mid-pass is dropped by the ticker, not
// queued.
type Reconciler struct {
	cfg      Config
	client   StatusClient
	registry *registry.Registry
	logger   *logging.Logger

	// onChanges receives the field-level changes of each pass, in
	// detection order.
	onChanges func([]registry.Change)

	failures int

	kick chan struct{}
	wg   sync.WaitGroup
}

// New creates a reconciler for one server. onChanges may be nil.
func New(cfg Config, client StatusClient, reg *registry.Registry, logger *logging.Logger, onChanges func([]registry.Change)) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if onChanges == nil {
		onChanges = func([]registry.Change) {}
	}

	return &Reconciler{
		cfg:       cfg,
		client:    client,
		registry:  reg,
		logger:    logger,
		onChanges: onChanges,
		kick:      make(chan struct{}, 1),
	}
}

// Start launches the reconciliation loop, beginning with an immediate
// pass. The loop exits when ctx is cancelled; Wait blocks until then.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Wait blocks until the loop has exited.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Kick requests an immediate out-of-band pass, used when the server
// reports a configuration change. Non-blocking; a pending kick absorbs
// further kicks.
func (r *Reconciler) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		case <-r.kick:
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if changes := r.RunOnce(ctx); len(changes) > 0 {
		r.onChanges(changes)
	}
}

// RunOnce performs a single fetch-and-diff pass and returns the
// field-level changes it produced, in detection order.
//
// On fetch failure the consecutive-failure counter advances; crossing
// the threshold marks the server unavailable and cascades to its
// cameras. On success the counter resets, the server becomes ready, and
// camera snapshots are diffed field by field. Identical consecutive
// snapshots produce no changes.
func (r *Reconciler) RunOnce(ctx context.Context) []registry.Change {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	info, err := r.client.FetchSystemInfo(fetchCtx)
	if err != nil {
		return r.handleFailure(err)
	}

	r.failures = 0
	return r.apply(ctx, info)
}

func (r *Reconciler) handleFailure(err error) []registry.Change {
	r.failures++
	r.logger.Warn("status fetch failed",
		"server", r.cfg.Server,
		"consecutive_failures", r.failures,
		"threshold", r.cfg.FailureThreshold,
		"error", err)

	// Rejected credentials will not heal with retries; degrade the
	// server immediately instead of burning through the threshold.
	if errors.Is(err, spy.ErrAuthentication) {
		r.failures = r.cfg.FailureThreshold
	}

	if r.failures < r.cfg.FailureThreshold {
		return nil
	}
	return r.registry.MarkServerUnavailable(r.cfg.Server)
}

func (r *Reconciler) apply(ctx context.Context, info *spy.SystemInfo) []registry.Change {
	prev, known := r.registry.Server(r.cfg.Server)
	if !known {
		return nil
	}

	next := registry.ServerSnapshot{
		State:        registry.ServerReady,
		Name:         info.Server.Name,
		Version:      info.Server.Version,
		MajorVersion: info.Server.MajorVersion(),
		Scripts:      prev.Scripts,
		Sounds:       prev.Sounds,
	}

	// Catalogs only change on server-side edits; refresh them on the
	// transition into ready, not every pass. RefreshCatalogs covers the
	// config-change case.
	if prev.State != registry.ServerReady {
		r.refreshCatalogs(ctx, &next)
	}

	changes := r.registry.ApplyServer(r.cfg.Server, next)

	seen := make(map[int]bool, len(info.Cameras))
	for _, cam := range info.Cameras {
		seen[cam.Number] = true
		snapshot := cameraSnapshot(cam)
		changes = append(changes, r.registry.ApplyCamera(r.cfg.Server, cam.Number, snapshot)...)
	}

	// Cameras the server no longer reports were removed from its
	// configuration; drop them rather than carrying stale entries.
	for _, num := range r.registry.Cameras(r.cfg.Server) {
		if seen[num] {
			continue
		}
		if r.registry.RemoveCamera(r.cfg.Server, num) {
			r.logger.Info("camera removed from server report",
				"server", r.cfg.Server, "camera", num)
		}
	}

	return changes
}

// RefreshCatalogs re-fetches the script and sound lists on demand.
func (r *Reconciler) RefreshCatalogs(ctx context.Context) {
	snap, ok := r.registry.Server(r.cfg.Server)
	if !ok {
		return
	}
	r.refreshCatalogs(ctx, &snap)
	r.registry.ApplyServer(r.cfg.Server, snap)
}

func (r *Reconciler) refreshCatalogs(ctx context.Context, snap *registry.ServerSnapshot) {
	listCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	// Catalog fetches are best-effort: a failure leaves the previous
	// lists in place and never fails the pass.
	if scripts, err := r.client.FetchScripts(listCtx); err == nil {
		snap.Scripts = scripts
	} else {
		r.logger.Warn("script list fetch failed", "server", r.cfg.Server, "error", err)
	}
	if sounds, err := r.client.FetchSounds(listCtx); err == nil {
		snap.Sounds = sounds
	} else {
		r.logger.Warn("sound list fetch failed", "server", r.cfg.Server, "error", err)
	}
}

func cameraSnapshot(cam spy.CameraInfo) registry.CameraSnapshot {
	return registry.CameraSnapshot{
		Status:      registry.DeriveCameraStatus(cam.Connected, cam.MotionArmed),
		Name:        cam.Name,
		DeviceType:  cam.DeviceType,
		Sensitivity: cam.Sensitivity,
		Width:       cam.Width,
		Height:      cam.Height,
		Connected:   cam.Connected,
		Motion:      cam.MotionArmed,
		Recording:   cam.ContinuousArmed,
		Actions:     cam.ActionsArmed,
		HasPTZ:      cam.HasPTZ(),
		HasAudio:    cam.HasAudio,
	}
}
