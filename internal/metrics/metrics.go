package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dwizi/region-relay/internal/dispatch"
)

const namespace = "region_relay"

var (
	// Labels: outcome (saved, remembered, ignored, bad_region, bad_tag, store_error)
	groupOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "group",
		Name:      "outcomes_total",
		Help:      "Group chat messages by buffer outcome",
	}, []string{"outcome"})

	savedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "group",
		Name:      "saved_messages_total",
		Help:      "Messages persisted by finalize lines",
	})

	// Labels: result (delivered, no_messages, bad_request, store_error)
	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "private",
		Name:      "retrievals_total",
		Help:      "Private retrieval requests by result",
	}, []string{"result"})

	forwardedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "private",
		Name:      "forwarded_messages_total",
		Help:      "Archived messages forwarded to users",
	})

	// Labels: method (sendMessage, forwardMessage, setMyCommands, getUpdates), status (ok, retry, error)
	telegramCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telegram",
		Name:      "calls_total",
		Help:      "Bot API calls by method and status",
	}, []string{"method", "status"})

	// Labels: status (queued, completed, failed, rejected)
	dispatchJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "jobs_total",
		Help:      "Chat jobs by lifecycle status",
	}, []string{"status"})

	dispatchLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "job_seconds",
		Help:      "Time spent running one chat job",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	purgedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retention",
		Name:      "purged_messages_total",
		Help:      "Messages removed by the retention job",
	})
)

func RecordGroupOutcome(outcome string, saved int) {
	groupOutcomesTotal.WithLabelValues(outcome).Inc()
	if saved > 0 {
		savedMessagesTotal.Add(float64(saved))
	}
}

func RecordRetrieval(result string, forwarded int) {
	retrievalsTotal.WithLabelValues(result).Inc()
	if forwarded > 0 {
		forwardedMessagesTotal.Add(float64(forwarded))
	}
}

func RecordTelegramCall(method, status string) {
	telegramCallsTotal.WithLabelValues(method, status).Inc()
}

func RecordDispatchRejected() {
	dispatchJobsTotal.WithLabelValues("rejected").Inc()
}

func RecordPurge(count int64) {
	if count > 0 {
		purgedMessagesTotal.Add(float64(count))
	}
}

// DispatchObserver feeds dispatcher lifecycle events into the job counters.
type DispatchObserver struct{}

func (DispatchObserver) OnJobQueued(dispatch.Job, int) {
	dispatchJobsTotal.WithLabelValues("queued").Inc()
}

func (DispatchObserver) OnJobCompleted(_ dispatch.Job, _ int, elapsed time.Duration) {
	dispatchJobsTotal.WithLabelValues("completed").Inc()
	dispatchLatencySeconds.Observe(elapsed.Seconds())
}

func (DispatchObserver) OnJobFailed(dispatch.Job, int, error) {
	dispatchJobsTotal.WithLabelValues("failed").Inc()
}
