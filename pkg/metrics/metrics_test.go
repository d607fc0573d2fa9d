package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStoreOp(t *testing.T) {
	before := testutil.ToFloat64(StoreOperationsTotal.WithLabelValues("memory", "get", "failure"))
	RecordStoreOp("memory", "get", errors.New("boom"))
	RecordStoreOp("memory", "get", nil)

	after := testutil.ToFloat64(StoreOperationsTotal.WithLabelValues("memory", "get", "failure"))
	if after-before != 1 {
		t.Fatalf("failure counter delta = %v, want 1", after-before)
	}
}

func TestObserveStage(t *testing.T) {
	done := ObserveStage("unit")
	done()
	if n := testutil.CollectAndCount(StageDuration, "hybridrec_stage_duration_seconds"); n == 0 {
		t.Fatal("expected stage histogram to be collected")
	}
}
