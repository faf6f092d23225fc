package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dwizi/region-relay/internal/dispatch"
)

func TestDispatchObserverCountsLifecycle(t *testing.T) {
	queued := testutil.ToFloat64(dispatchJobsTotal.WithLabelValues("queued"))
	completed := testutil.ToFloat64(dispatchJobsTotal.WithLabelValues("completed"))
	failed := testutil.ToFloat64(dispatchJobsTotal.WithLabelValues("failed"))

	var observer dispatch.Observer = DispatchObserver{}
	job := dispatch.Job{ID: "job-1", ChatID: -100}
	observer.OnJobQueued(job, 0)
	observer.OnJobCompleted(job, 0, 20*time.Millisecond)
	observer.OnJobFailed(job, 0, errors.New("boom"))

	if got := testutil.ToFloat64(dispatchJobsTotal.WithLabelValues("queued")) - queued; got != 1 {
		t.Fatalf("expected one queued job, got %v", got)
	}
	if got := testutil.ToFloat64(dispatchJobsTotal.WithLabelValues("completed")) - completed; got != 1 {
		t.Fatalf("expected one completed job, got %v", got)
	}
	if got := testutil.ToFloat64(dispatchJobsTotal.WithLabelValues("failed")) - failed; got != 1 {
		t.Fatalf("expected one failed job, got %v", got)
	}
}

func TestRecordersIgnoreEmptyCounts(t *testing.T) {
	saved := testutil.ToFloat64(savedMessagesTotal)
	purged := testutil.ToFloat64(purgedMessagesTotal)

	RecordGroupOutcome("remembered", 0)
	RecordPurge(0)
	RecordPurge(3)

	if got := testutil.ToFloat64(savedMessagesTotal) - saved; got != 0 {
		t.Fatalf("expected no saved messages, got %v", got)
	}
	if got := testutil.ToFloat64(purgedMessagesTotal) - purged; got != 3 {
		t.Fatalf("expected three purged messages, got %v", got)
	}
}
