package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	orderTransitionCount  *prometheus.CounterVec
	gatewayCallCounter    *prometheus.CounterVec
	kycDecisionCounter    *prometheus.CounterVec
	statusPollCounter     *prometheus.CounterVec
	signingTimeoutCounter prometheus.Counter
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
	activeSessionsGauge   prometheus.Gauge
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		orderTransitionCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order state machine transitions",
		}, []string{"flow", "from", "to"})

		gatewayCallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Calls made to the ramp backend",
		}, []string{"operation", "result"})

		kycDecisionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_gate_decisions_total",
			Help: "KYC gate outcomes",
		}, []string{"outcome"})

		statusPollCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_polls_total",
			Help: "Transfer status poll results",
		}, []string{"result"})

		signingTimeoutCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signing_timeouts_total",
			Help: "Payments failed because the wallet never signed",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		activeSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of live order sessions",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			orderTransitionCount,
			gatewayCallCounter,
			kycDecisionCounter,
			statusPollCounter,
			signingTimeoutCounter,
			idempotencyCounter,
			workerRunCounter,
			activeSessionsGauge,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementOrderTransition(flow, from, to string) {
	if orderTransitionCount == nil {
		return
	}
	orderTransitionCount.WithLabelValues(flow, from, to).Inc()
}

// IncrementGatewayCall records one backend call. result is "ok" or "error".
func IncrementGatewayCall(operation, result string) {
	if gatewayCallCounter == nil {
		return
	}
	gatewayCallCounter.WithLabelValues(operation, result).Inc()
}

func IncrementKYCDecision(outcome string) {
	if kycDecisionCounter == nil {
		return
	}
	kycDecisionCounter.WithLabelValues(outcome).Inc()
}

func IncrementStatusPoll(result string) {
	if statusPollCounter == nil {
		return
	}
	statusPollCounter.WithLabelValues(result).Inc()
}

func IncrementSigningTimeout() {
	if signingTimeoutCounter == nil {
		return
	}
	signingTimeoutCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func SetActiveSessions(n int) {
	if activeSessionsGauge == nil {
		return
	}
	activeSessionsGauge.Set(float64(n))
}
