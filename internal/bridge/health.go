package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/spyglass-home/spyglass-core/internal/infrastructure/logging"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/mqtt"
)

// DefaultHealthInterval is the period between health reports.
const DefaultHealthInterval = 30 * time.Second

// HealthReporter periodically publishes a health summary, retained, so
// monitoring sees the last report even across its own restarts.
type HealthReporter struct {
	publisher MQTTClient
	topics    mqtt.Topics
	interval  time.Duration
	source    func() HealthMessage
	logger    *logging.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter over the given summary source.
func NewHealthReporter(publisher MQTTClient, interval time.Duration, source func() HealthMessage, logger *logging.Logger) *HealthReporter {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthReporter{
		publisher: publisher,
		interval:  interval,
		source:    source,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting, publishing immediately and then on
// each interval until Stop.
func (h *HealthReporter) Start() {
	h.wg.Add(1)
	go h.loop()
}

// Stop halts reporting and waits for the loop to exit. Safe to call
// more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
	h.wg.Wait()
}

func (h *HealthReporter) loop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.publish()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.publish()
		}
	}
}

func (h *HealthReporter) publish() {
	msg := h.source()
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("health message encoding failed", "error", err)
		return
	}
	if err := h.publisher.PublishRetained(h.topics.Health(), payload); err != nil {
		h.logger.Warn("health publish failed", "error", err)
	}
}
