package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "arsession"

// performanceStates are the label values SetPerformanceState toggles between.
var performanceStates = []string{"optimal", "degraded", "critical"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	transitions      *prom.CounterVec
	retries          prom.Counter
	retriesExhausted prom.Counter
	fallbackActive   prom.Gauge
	timeToConfirm    prom.Histogram
	trackingQuality  prom.Gauge
	coachingVisible  prom.Gauge
	performanceState *prom.GaugeVec
	directiveChanges *prom.CounterVec
	frameRate        prom.Gauge
	memoryMB         prom.Gauge
	cpuPercent       prom.Gauge
	analyticsDropped prom.Counter
}

// NewPrometheusRecorder constructs and registers the collectors on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Session state transitions by edge",
		}, []string{"from", "to"}),
		retries: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "session_retries_total",
			Help:      "Automatic session restarts scheduled after a failure",
		}),
		retriesExhausted: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "session_retry_exhausted_total",
			Help:      "Times the restart budget was exhausted and fallback entered",
		}),
		fallbackActive: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "session_fallback_active",
			Help:      "1 while the session is in fallback mode",
		}),
		timeToConfirm: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "session_time_to_confirm_seconds",
			Help:      "Time from run to the first confirming tracking update",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		trackingQuality: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "tracking_quality_score",
			Help:      "Current tracking quality score (0-1)",
		}),
		coachingVisible: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "coaching_visible",
			Help:      "1 while coaching is shown",
		}),
		performanceState: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "performance_state",
			Help:      "1 for the current overall performance state",
		}, []string{"state"}),
		directiveChanges: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "optimization_directive_changes_total",
			Help:      "Directive activations and removals",
		}, []string{"directive", "action"}),
		frameRate: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_rate_fps",
			Help:      "Last sampled frame rate",
		}),
		memoryMB: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_megabytes",
			Help:      "Last sampled memory use",
		}),
		cpuPercent: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_percent",
			Help:      "Last sampled CPU use",
		}),
		analyticsDropped: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_dropped_total",
			Help:      "Analytics events dropped because the buffer was full",
		}),
	}
	reg.MustRegister(pr.transitions, pr.retries, pr.retriesExhausted, pr.fallbackActive, pr.timeToConfirm,
		pr.trackingQuality, pr.coachingVisible, pr.performanceState, pr.directiveChanges,
		pr.frameRate, pr.memoryMB, pr.cpuPercent, pr.analyticsDropped)
	return pr
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (p *PrometheusRecorder) IncStateTransition(from, to string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(from, to).Inc()
}

func (p *PrometheusRecorder) IncRetry() {
	if p == nil {
		return
	}
	p.retries.Inc()
}

func (p *PrometheusRecorder) IncRetryExhausted() {
	if p == nil {
		return
	}
	p.retriesExhausted.Inc()
}

func (p *PrometheusRecorder) SetFallbackActive(active bool) {
	if p == nil {
		return
	}
	p.fallbackActive.Set(boolGauge(active))
}

func (p *PrometheusRecorder) ObserveTimeToConfirm(d time.Duration) {
	if p == nil {
		return
	}
	p.timeToConfirm.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetTrackingQuality(score float64) {
	if p == nil {
		return
	}
	p.trackingQuality.Set(score)
}

func (p *PrometheusRecorder) SetCoachingVisible(visible bool) {
	if p == nil {
		return
	}
	p.coachingVisible.Set(boolGauge(visible))
}

func (p *PrometheusRecorder) SetPerformanceState(state string) {
	if p == nil {
		return
	}
	for _, s := range performanceStates {
		p.performanceState.WithLabelValues(s).Set(boolGauge(s == state))
	}
}

func (p *PrometheusRecorder) IncDirectiveChange(directive string, added bool) {
	if p == nil {
		return
	}
	action := "removed"
	if added {
		action = "added"
	}
	p.directiveChanges.WithLabelValues(directive, action).Inc()
}

func (p *PrometheusRecorder) ObservePerformanceSample(frameRate, memoryMB, cpuPercent float64) {
	if p == nil {
		return
	}
	p.frameRate.Set(frameRate)
	p.memoryMB.Set(memoryMB)
	p.cpuPercent.Set(cpuPercent)
}

func (p *PrometheusRecorder) IncAnalyticsDropped() {
	if p == nil {
		return
	}
	p.analyticsDropped.Inc()
}
