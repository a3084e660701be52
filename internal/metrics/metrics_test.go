package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFile(t *testing.T) {
	okBefore := testutil.ToFloat64(FilesConverted.WithLabelValues("cells", "ok"))
	errBefore := testutil.ToFloat64(FilesConverted.WithLabelValues("cells", "error"))
	entriesBefore := testutil.ToFloat64(EntriesConverted.WithLabelValues("cells"))

	RecordFile("cells", 26, nil, 3*time.Millisecond)
	RecordFile("cells", 0, errors.New("bad yaml"), time.Millisecond)

	if got := testutil.ToFloat64(FilesConverted.WithLabelValues("cells", "ok")) - okBefore; got != 1 {
		t.Errorf("Expected 1 ok file, got %v", got)
	}
	if got := testutil.ToFloat64(FilesConverted.WithLabelValues("cells", "error")) - errBefore; got != 1 {
		t.Errorf("Expected 1 failed file, got %v", got)
	}
	if got := testutil.ToFloat64(EntriesConverted.WithLabelValues("cells")) - entriesBefore; got != 26 {
		t.Errorf("Expected 26 entries, got %v", got)
	}
}

func TestChordMetrics(t *testing.T) {
	m := NewChordMetrics("metrics-test")

	m.RecordSessionStart()
	active := testutil.ToFloat64(SessionsActive)
	m.RecordEvent("down", true)
	m.RecordEvent("up", true)
	m.RecordEvent("down", false)
	m.RecordEmit()
	m.RecordSessionEnd()

	if got := testutil.ToFloat64(KeyEvents.WithLabelValues("metrics-test", "down", "true")); got != 1 {
		t.Errorf("Expected 1 tracked down event, got %v", got)
	}
	if got := testutil.ToFloat64(KeyEvents.WithLabelValues("metrics-test", "down", "false")); got != 1 {
		t.Errorf("Expected 1 untracked down event, got %v", got)
	}
	if got := testutil.ToFloat64(ChordsEmitted.WithLabelValues("metrics-test")); got != 1 {
		t.Errorf("Expected 1 emitted chord, got %v", got)
	}
	if got := testutil.ToFloat64(SessionsActive); got != active-1 {
		t.Errorf("Expected active sessions to drop to %v, got %v", active-1, got)
	}
}
