package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func newTestBreaker(maxFailures int, window, cooldown time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(Config{MaxFailures: maxFailures, Window: window, Cooldown: cooldown})
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute, time.Minute)

	for range 2 {
		b.ReportError("svc", errBoom)
	}
	if !b.Allow("svc") {
		t.Fatal("circuit open below threshold")
	}

	b.ReportError("svc", errBoom)
	if b.Allow("svc") {
		t.Fatal("circuit still closed at threshold")
	}
	if got := b.Status("svc").State; got != StateOpen {
		t.Errorf("state = %q, want open", got)
	}
}

func TestBreakerIsolatesCircuits(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute, time.Minute)

	b.ReportError("svc-a", errBoom)

	if b.Allow("svc-a") {
		t.Error("svc-a should be open")
	}
	if !b.Allow("svc-b") {
		t.Error("svc-b was affected by svc-a failures")
	}
}

func TestBreakerSlidingWindow(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute, time.Minute)

	b.ReportError("svc", errBoom)
	b.ReportError("svc", errBoom)

	// Window passes: the counter restarts instead of accumulating.
	*now = now.Add(2 * time.Minute)
	b.ReportError("svc", errBoom)

	if !b.Allow("svc") {
		t.Error("stale failures counted toward the threshold")
	}
	if got := b.Status("svc").Failures; got != 1 {
		t.Errorf("failures = %d, want 1 after window reset", got)
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute, 30*time.Second)

	b.ReportError("svc", errBoom)
	if b.Allow("svc") {
		t.Fatal("circuit should be open")
	}

	*now = now.Add(31 * time.Second)
	if !b.Allow("svc") {
		t.Fatal("circuit should allow a half-open trial after cooldown")
	}
	if got := b.Status("svc").State; got != StateHalfOpen {
		t.Errorf("state = %q, want half-open", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(5, time.Minute, 30*time.Second)

	for range 5 {
		b.ReportError("svc", errBoom)
	}
	*now = now.Add(31 * time.Second)
	if !b.Allow("svc") {
		t.Fatal("expected half-open trial")
	}

	// A single failure in half-open reopens regardless of the threshold.
	b.ReportError("svc", errBoom)
	if b.Allow("svc") {
		t.Error("circuit closed after half-open failure")
	}
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute, 30*time.Second)

	b.ReportError("svc", errBoom)
	*now = now.Add(31 * time.Second)
	b.Allow("svc")
	b.ReportSuccess("svc")

	st := b.Status("svc")
	if st.State != StateClosed {
		t.Errorf("state = %q, want closed", st.State)
	}
	if st.Failures != 0 {
		t.Errorf("failures = %d, want 0", st.Failures)
	}
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute, time.Hour)

	b.ReportError("svc", errBoom)
	b.Reset("svc")
	if !b.Allow("svc") {
		t.Error("circuit open after explicit reset")
	}
}

func TestBreakerExecute(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute, time.Hour)

	if err := b.Execute("svc", func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Errorf("Execute err = %v, want boom", err)
	}

	called := false
	err := b.Execute("svc", func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while circuit open")
	}
}

func TestBreakerUnknownIDReportsClosed(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute, time.Minute)
	if got := b.Status("never-seen").State; got != StateClosed {
		t.Errorf("state = %q, want closed", got)
	}
	if !b.Allow("never-seen") {
		t.Error("unknown circuit should allow")
	}
}
