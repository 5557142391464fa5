// workers/levelup_dispatcher.go
package workers

import (
	"context"
	"log/slog"
	"time"

	"reward-engine/metrics"
	"reward-engine/models"
)

// Sink delivers a level-up event to wherever users see it.
type Sink interface {
	Deliver(ctx context.Context, ev models.LevelUpEvent) error
}

// LevelUpDispatcher decouples the XP engine from notification delivery: Emit
// never blocks, and a single goroutine drains the bounded queue into the sink.
type LevelUpDispatcher struct {
	queue          chan models.LevelUpEvent
	sink           Sink
	deliverTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.EngineMetrics
}

func NewLevelUpDispatcher(sink Sink, size int, logger *slog.Logger, m *metrics.EngineMetrics) *LevelUpDispatcher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LevelUpDispatcher{
		queue:          make(chan models.LevelUpEvent, size),
		sink:           sink,
		deliverTimeout: 10 * time.Second,
		logger:         logger,
		metrics:        m,
	}
}

// Emit enqueues ev. When the queue is full the event is dropped and false is returned.
func (d *LevelUpDispatcher) Emit(ev models.LevelUpEvent) bool {
	select {
	case d.queue <- ev:
		d.metrics.ObserveLevelUpEvent("queued")
		return true
	default:
		d.metrics.ObserveLevelUpEvent("dropped")
		d.logger.Warn("[LEVELUP] queue full, dropping event",
			"user_id", ev.UserID, "scope_id", ev.ScopeID, "new_level", ev.NewLevel)
		return false
	}
}

func (d *LevelUpDispatcher) Start(ctx context.Context) {
	d.logger.Info("[LEVELUP] starting level-up dispatcher", "capacity", cap(d.queue))
	go d.run(ctx)
}

func (d *LevelUpDispatcher) run(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.logger.Info("[LEVELUP] dispatcher stopped", "pending", len(d.queue))
			return
		}
	}
}

func (d *LevelUpDispatcher) deliver(ctx context.Context, ev models.LevelUpEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.deliverTimeout)
	defer cancel()

	if err := d.sink.Deliver(ctx, ev); err != nil {
		d.metrics.ObserveLevelUpEvent("failed")
		d.logger.Error("[LEVELUP] delivery failed",
			"user_id", ev.UserID, "scope_id", ev.ScopeID, "new_level", ev.NewLevel, "error", err)
		return
	}
	d.metrics.ObserveLevelUpEvent("delivered")
}
