package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics counts outcomes of the XP, work-shift, vault and config paths.
type EngineMetrics struct {
	xpAwards     *prometheus.CounterVec
	xpGranted    prometheus.Counter
	levelUps     prometheus.Counter
	workClaims   *prometheus.CounterVec
	workPaid     prometheus.Counter
	vaultOps     *prometheus.CounterVec
	configLookup *prometheus.CounterVec
	levelUpQueue *prometheus.CounterVec
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the process-wide metrics, registering them on first use.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			xpAwards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "reward_xp_awards_total",
				Help: "Activity events processed by outcome (awarded or the skip reason).",
			}, []string{"outcome"}),
			xpGranted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "reward_xp_granted_total",
				Help: "Experience points granted.",
			}),
			levelUps: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "reward_level_ups_total",
				Help: "Levels gained across all accounts.",
			}),
			workClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "reward_work_claims_total",
				Help: "Work shift claims by outcome.",
			}, []string{"outcome"}),
			workPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "reward_work_paid_total",
				Help: "Currency paid out by successful work shifts.",
			}),
			vaultOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "reward_vault_operations_total",
				Help: "Vault operations by kind and outcome.",
			}, []string{"op", "outcome"}),
			configLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "reward_config_cache_lookups_total",
				Help: "Scope config lookups by result (hit, miss, stale, default).",
			}, []string{"result"}),
			levelUpQueue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "reward_levelup_events_total",
				Help: "Level-up events by delivery outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			engineRegistry.xpAwards,
			engineRegistry.xpGranted,
			engineRegistry.levelUps,
			engineRegistry.workClaims,
			engineRegistry.workPaid,
			engineRegistry.vaultOps,
			engineRegistry.configLookup,
			engineRegistry.levelUpQueue,
		)
	})
	return engineRegistry
}

func (m *EngineMetrics) ObserveXPAward(outcome string, granted int64, levels int) {
	if m == nil {
		return
	}
	m.xpAwards.WithLabelValues(label(outcome)).Inc()
	if granted > 0 {
		m.xpGranted.Add(float64(granted))
	}
	if levels > 0 {
		m.levelUps.Add(float64(levels))
	}
}

func (m *EngineMetrics) ObserveWorkClaim(outcome string, paid int64) {
	if m == nil {
		return
	}
	m.workClaims.WithLabelValues(label(outcome)).Inc()
	if paid > 0 {
		m.workPaid.Add(float64(paid))
	}
}

func (m *EngineMetrics) ObserveVault(op, outcome string) {
	if m == nil {
		return
	}
	m.vaultOps.WithLabelValues(label(op), label(outcome)).Inc()
}

func (m *EngineMetrics) ObserveConfigLookup(result string) {
	if m == nil {
		return
	}
	m.configLookup.WithLabelValues(label(result)).Inc()
}

func (m *EngineMetrics) ObserveLevelUpEvent(outcome string) {
	if m == nil {
		return
	}
	m.levelUpQueue.WithLabelValues(label(outcome)).Inc()
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
