package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the runtime's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so components can be built without a registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	WakeDetections   *prometheus.CounterVec
	WakeSuppressed   prometheus.Counter
	WakeDropped      prometheus.Counter
	SpeechUtterances *prometheus.CounterVec
	SpeechQueueDepth prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	CommandsRouted   *prometheus.CounterVec
	SkillDuration    *prometheus.HistogramVec
	ExecutorBusy     prometheus.Gauge
	ExecutorBacklog  prometheus.Gauge
	ExecutorRejected prometheus.Counter
	WatchdogAlerts   *prometheus.CounterVec
	HeartbeatAge     *prometheus.GaugeVec
	ServiceRequests  *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		WakeDetections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_wake_detections_total",
			Help: "Wake word detections emitted as activation events",
		}, []string{"tier"}),
		WakeSuppressed: f.NewCounter(prometheus.CounterOpts{
			Name: "jarvis_wake_suppressed_total",
			Help: "Wake word detections suppressed by the cooldown window",
		}),
		WakeDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "jarvis_wake_dropped_total",
			Help: "Activation events dropped because the channel stayed full",
		}),
		SpeechUtterances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_speech_utterances_total",
			Help: "Speech requests processed, by synthesis path",
		}, []string{"path"}),
		SpeechQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "jarvis_speech_queue_depth",
			Help: "Speech requests waiting for playback",
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_state_transitions_total",
			Help: "Conversation state transitions",
		}, []string{"from", "to"}),
		CommandsRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_commands_total",
			Help: "Commands dispatched to skills, by outcome",
		}, []string{"skill", "outcome"}),
		SkillDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jarvis_skill_duration_seconds",
			Help:    "Skill invocation duration",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"skill"}),
		ExecutorBusy: f.NewGauge(prometheus.GaugeOpts{
			Name: "jarvis_executor_busy_workers",
			Help: "Executor workers currently running a skill",
		}),
		ExecutorBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "jarvis_executor_backlog",
			Help: "Skill invocations waiting for a worker",
		}),
		ExecutorRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "jarvis_executor_rejected_total",
			Help: "Skill invocations rejected because the backlog was full",
		}),
		WatchdogAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_watchdog_alerts_total",
			Help: "Stall alerts raised by the watchdog",
		}, []string{"component"}),
		HeartbeatAge: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jarvis_heartbeat_age_seconds",
			Help: "Seconds since each monitored loop last touched its heartbeat",
		}, []string{"component"}),
		ServiceRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_service_requests_total",
			Help: "Requests to HTTP micro-service collaborators",
		}, []string{"feature", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) WakeDetected(tier string) {
	if m == nil {
		return
	}
	m.WakeDetections.WithLabelValues(tier).Inc()
}

func (m *Metrics) WakeSuppressedInc() {
	if m == nil {
		return
	}
	m.WakeSuppressed.Inc()
}

func (m *Metrics) WakeDroppedInc() {
	if m == nil {
		return
	}
	m.WakeDropped.Inc()
}

func (m *Metrics) Utterance(path string) {
	if m == nil {
		return
	}
	m.SpeechUtterances.WithLabelValues(path).Inc()
}

func (m *Metrics) SpeechQueue(depth int) {
	if m == nil {
		return
	}
	m.SpeechQueueDepth.Set(float64(depth))
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Command(skill, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandsRouted.WithLabelValues(skill, outcome).Inc()
	m.SkillDuration.WithLabelValues(skill).Observe(d.Seconds())
}

func (m *Metrics) Executor(busy, backlog int) {
	if m == nil {
		return
	}
	m.ExecutorBusy.Set(float64(busy))
	m.ExecutorBacklog.Set(float64(backlog))
}

func (m *Metrics) ExecutorRejectedInc() {
	if m == nil {
		return
	}
	m.ExecutorRejected.Inc()
}

func (m *Metrics) WatchdogAlert(component string) {
	if m == nil {
		return
	}
	m.WatchdogAlerts.WithLabelValues(component).Inc()
}

func (m *Metrics) Heartbeat(component string, age time.Duration) {
	if m == nil {
		return
	}
	m.HeartbeatAge.WithLabelValues(component).Set(age.Seconds())
}

func (m *Metrics) ServiceRequest(feature, status string) {
	if m == nil {
		return
	}
	m.ServiceRequests.WithLabelValues(feature, status).Inc()
}
