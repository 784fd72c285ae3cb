package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskfleet/taskfleet/internal/domain/alert"
	"github.com/taskfleet/taskfleet/internal/logger"
	"github.com/taskfleet/taskfleet/internal/port/broker"
	"github.com/taskfleet/taskfleet/internal/resilience"
)

// fakeBroker is an in-memory Broker for worker tests.
type fakeBroker struct {
	mu        sync.Mutex
	queue     []broker.Message
	acked     map[string]bool
	extended  map[string]int
	published map[string][][]byte
	pullErr   error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		acked:     make(map[string]bool),
		extended:  make(map[string]int),
		published: make(map[string][][]byte),
	}
}

func (f *fakeBroker) enqueue(msgs ...broker.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, msgs...)
}

func (f *fakeBroker) Pull(_ context.Context, _ string, max int) ([]broker.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	n := min(max, len(f.queue))
	out := f.queue[:n]
	f.queue = f.queue[n:]
	return out, nil
}

func (f *fakeBroker) Acknowledge(_ context.Context, _ string, ackIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ackIDs {
		f.acked[id] = true
	}
	return nil
}

func (f *fakeBroker) ModifyAckDeadline(_ context.Context, _ string, ackIDs []string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ackIDs {
		f.extended[id]++
	}
	return nil
}

func (f *fakeBroker) Publish(_ context.Context, topic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], data)
	return nil
}

func (f *fakeBroker) wasAcked(ackID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acked[ackID]
}

func (f *fakeBroker) extensions(ackID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extended[ackID]
}

type captureSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureSink) Publish(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func jobMessage(t *testing.T, ackID string, job broker.JobPayload) broker.Message {
	t.Helper()
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return broker.Message{MessageID: "m-" + ackID, AckID: ackID, Data: data}
}

func testConfig(name string) Config {
	return Config{
		Name:                name,
		Subscription:        "jobs." + name,
		MaxConcurrency:      4,
		PollInterval:        5 * time.Millisecond,
		LeaseExtendInterval: time.Hour,
		LeaseSeconds:        60,
		DrainTimeout:        time.Second,
	}
}

func testBreaker() *resilience.Breaker {
	return resilience.NewBreaker(resilience.Config{
		MaxFailures: 100,
		Window:      time.Minute,
		Cooldown:    time.Minute,
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWorkerProcessesAndAcks(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(jobMessage(t, "a1", broker.JobPayload{JobID: "j1", Role: "dev"}))

	var processed sync.WaitGroup
	processed.Add(1)
	w := New(testConfig("dev"), fb, testBreaker(), func(_ context.Context, job broker.JobPayload, _ broker.Message) error {
		defer processed.Done()
		if job.JobID != "j1" {
			t.Errorf("job id = %q, want j1", job.JobID)
		}
		return nil
	})

	w.Start(context.Background())
	processed.Wait()
	waitFor(t, func() bool { return fb.wasAcked("a1") }, "message never acked")
	w.Stop(context.Background())

	snap := w.Metrics()
	if snap.Processed != 1 || snap.Succeeded != 1 || snap.Failed != 0 {
		t.Errorf("metrics = %+v, want 1 processed 1 succeeded", snap)
	}
}

func TestWorkerHandlerContextCarriesCorrelationID(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(jobMessage(t, "a1", broker.JobPayload{JobID: "j1", CorrelationID: "corr-42"}))

	var got atomic.Value
	w := New(testConfig("dev"), fb, testBreaker(), func(ctx context.Context, _ broker.JobPayload, _ broker.Message) error {
		got.Store(logger.CorrelationID(ctx))
		return nil
	})

	w.Start(context.Background())
	waitFor(t, func() bool { return w.Metrics().Processed == 1 }, "job never processed")
	w.Stop(context.Background())

	if id, _ := got.Load().(string); id != "corr-42" {
		t.Errorf("correlation id in handler context = %q, want corr-42", id)
	}
}

func TestWorkerConcurrencyCap(t *testing.T) {
	fb := newFakeBroker()
	for i := range 5 {
		fb.enqueue(jobMessage(t, string(rune('a'+i)), broker.JobPayload{JobID: "j"}))
	}

	release := make(chan struct{})
	var started atomic.Int64
	var running sync.WaitGroup
	running.Add(2)
	cfg := testConfig("dev")
	cfg.MaxConcurrency = 2
	w := New(cfg, fb, testBreaker(), func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		// Only the first two invocations hold a slot; later jobs run
		// after release and must not touch the wait group.
		if started.Add(1) <= 2 {
			running.Done()
			<-release
		}
		return nil
	})

	w.Start(context.Background())
	running.Wait()

	// With both slots occupied, subsequent polls must pull nothing.
	time.Sleep(25 * time.Millisecond)
	if got := w.Status().InFlight; got != 2 {
		t.Fatalf("in-flight = %d, want 2", got)
	}

	close(release)
	waitFor(t, func() bool { return w.Metrics().Processed == 5 }, "not all jobs processed")
	w.Stop(context.Background())
}

func TestWorkerRetryableFailureNotAcked(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(jobMessage(t, "r1", broker.JobPayload{JobID: "j1"}))

	w := New(testConfig("dev"), fb, testBreaker(), func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		return errors.New("upstream timeout")
	})

	w.Start(context.Background())
	waitFor(t, func() bool { return w.Metrics().Failed == 1 }, "failure never recorded")
	w.Stop(context.Background())

	if fb.wasAcked("r1") {
		t.Error("retryable failure was acked; message lost to redelivery")
	}
	if w.Metrics().RetriedTotal != 1 {
		t.Errorf("retried = %d, want 1", w.Metrics().RetriedTotal)
	}
}

func TestWorkerNonRetryableFailureAckedAndAlerted(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(jobMessage(t, "n1", broker.JobPayload{JobID: "j1"}))

	sink := &captureSink{}
	w := New(testConfig("dev"), fb, testBreaker(), func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		return NonRetryable(errors.New("validation failed"))
	})
	w.SetAlertSink(sink)

	w.Start(context.Background())
	waitFor(t, func() bool { return fb.wasAcked("n1") }, "non-retryable failure never acked")
	waitFor(t, func() bool { return sink.count() == 1 }, "no alert published")
	w.Stop(context.Background())

	if w.Metrics().RetriedTotal != 0 {
		t.Errorf("retried = %d, want 0", w.Metrics().RetriedTotal)
	}
}

func TestWorkerCriticalPriorityFailureAlerts(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(jobMessage(t, "c1", broker.JobPayload{JobID: "j1", Priority: broker.PriorityCritical}))

	sink := &captureSink{}
	w := New(testConfig("dev"), fb, testBreaker(), func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		return errors.New("transient")
	})
	w.SetAlertSink(sink)

	w.Start(context.Background())
	waitFor(t, func() bool { return sink.count() == 1 }, "no alert for critical job failure")
	w.Stop(context.Background())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.alerts[0].Severity != alert.SeverityCritical {
		t.Errorf("severity = %q, want critical", sink.alerts[0].Severity)
	}
	if fb.wasAcked("c1") {
		t.Error("retryable critical failure should not be acked")
	}
}

func TestWorkerMalformedPayloadAcked(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(broker.Message{MessageID: "m1", AckID: "bad", Data: []byte("{not json")})

	called := false
	w := New(testConfig("dev"), fb, testBreaker(), func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		called = true
		return nil
	})

	w.Start(context.Background())
	waitFor(t, func() bool { return fb.wasAcked("bad") }, "malformed message never acked")
	w.Stop(context.Background())

	if called {
		t.Error("process func called for undecodable payload")
	}
	if w.Metrics().Failed != 1 {
		t.Errorf("failed = %d, want 1", w.Metrics().Failed)
	}
}

func TestWorkerOpenCircuitBlocksStart(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(jobMessage(t, "o1", broker.JobPayload{JobID: "j1"}))

	br := resilience.NewBreaker(resilience.Config{
		MaxFailures: 1,
		Window:      time.Minute,
		Cooldown:    time.Minute,
	})
	cfg := testConfig("dev")
	cfg.CircuitID = "worker:dev"
	br.ReportError(cfg.CircuitID, errors.New("boom"))

	w := New(cfg, fb, br, func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		t.Error("process func called with open circuit")
		return nil
	})

	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	st := w.Status()
	if st.State != StateStopped {
		t.Errorf("state = %q, want stopped", st.State)
	}
	if st.Circuit.State != resilience.StateOpen {
		t.Errorf("circuit state = %q, want open", st.Circuit.State)
	}
}

func TestWorkerPullErrorReportedToBreaker(t *testing.T) {
	fb := newFakeBroker()
	fb.pullErr = errors.New("broker unavailable")

	br := resilience.NewBreaker(resilience.Config{
		MaxFailures: 2,
		Window:      time.Minute,
		Cooldown:    time.Minute,
	})
	w := New(testConfig("dev"), fb, br, func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		return nil
	})

	w.Start(context.Background())
	waitFor(t, func() bool {
		return w.Status().Circuit.State == resilience.StateOpen
	}, "repeated pull failures never opened the circuit")
	w.Stop(context.Background())
}

func TestWorkerLeaseExtension(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(jobMessage(t, "l1", broker.JobPayload{JobID: "j1"}))

	cfg := testConfig("dev")
	cfg.LeaseExtendInterval = 5 * time.Millisecond
	hold := make(chan struct{})
	w := New(cfg, fb, testBreaker(), func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		<-hold
		return nil
	})

	w.Start(context.Background())
	waitFor(t, func() bool { return fb.extensions("l1") >= 2 }, "lease never extended while job ran")
	close(hold)
	w.Stop(context.Background())
}

func TestWorkerStopDrainsInFlight(t *testing.T) {
	fb := newFakeBroker()
	fb.enqueue(jobMessage(t, "d1", broker.JobPayload{JobID: "j1"}))

	started := make(chan struct{})
	w := New(testConfig("dev"), fb, testBreaker(), func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	w.Start(context.Background())
	<-started
	w.Stop(context.Background())

	if !fb.wasAcked("d1") {
		t.Error("in-flight job not finished before stop returned")
	}
	if st := w.Status(); st.State != StateStopped || st.InFlight != 0 {
		t.Errorf("status after stop = %+v", st)
	}
}

func TestWorkerStartIsIdempotent(t *testing.T) {
	fb := newFakeBroker()
	w := New(testConfig("dev"), fb, testBreaker(), func(_ context.Context, _ broker.JobPayload, _ broker.Message) error {
		return nil
	})

	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx)
	if st := w.Status(); st.State != StateRunning {
		t.Errorf("state = %q, want running", st.State)
	}
	w.Stop(ctx)
}
