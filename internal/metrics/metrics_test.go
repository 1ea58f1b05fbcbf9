package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushCount int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	t.Cleanup(func() { SetBackend(orig) })
	fb := &fakeBackend{}
	SetBackend(fb)
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("jobA", "visits", "fetch", nil, 2*time.Second)
	RecordStep("jobA", "", "merge", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("expected 2 counter and 2 histogram calls, got %d/%d", len(fb.counters), len(fb.histograms))
	}

	c0 := fb.counters[0]
	if c0.name != StageTotal || c0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s, delta=1", c0, StageTotal)
	}
	want := Labels{"job": "jobA", "report": "visits", "stage": "fetch", "status": "success"}
	for k, v := range want {
		if c0.labels[k] != v {
			t.Fatalf("counter[0].labels[%s]=%q; want %q", k, c0.labels[k], v)
		}
	}

	h0 := fb.histograms[0]
	if h0.name != StageDuration || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0] = %#v; want %s ~2.0", h0, StageDuration)
	}

	if got := fb.counters[1].labels["status"]; got != "failure" {
		t.Fatalf("counter[1].labels[status]=%q; want failure", got)
	}
	if got := fb.counters[1].labels["stage"]; got != "merge" {
		t.Fatalf("counter[1].labels[stage]=%q; want merge", got)
	}
}

func TestRecordRows(t *testing.T) {
	fb := install(t)

	RecordRows("jobX", "visits", "transform", 3)
	RecordRows("jobX", "visits", "transform", 0)
	RecordRows("jobX", "", "merge", 5)

	if len(fb.counters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.counters))
	}
	c0 := fb.counters[0]
	if c0.name != RowsTotal || c0.delta != 3 || c0.labels["report"] != "visits" {
		t.Fatalf("counter[0] = %#v", c0)
	}
	c1 := fb.counters[1]
	if c1.delta != 5 || c1.labels["stage"] != "merge" {
		t.Fatalf("counter[1] = %#v", c1)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)

	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	SetBackend(nil)
	if current() != Backend(fb) {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
