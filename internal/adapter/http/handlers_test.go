package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskfleet/taskfleet/internal/domain/agent"
	"github.com/taskfleet/taskfleet/internal/port/broker"
	"github.com/taskfleet/taskfleet/internal/resilience"
	"github.com/taskfleet/taskfleet/internal/route"
	"github.com/taskfleet/taskfleet/internal/service"
	"github.com/taskfleet/taskfleet/internal/worker"
)

type stubBroker struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newStubBroker() *stubBroker {
	return &stubBroker{published: make(map[string][][]byte)}
}

func (s *stubBroker) Pull(context.Context, string, int) ([]broker.Message, error) { return nil, nil }
func (s *stubBroker) Acknowledge(context.Context, string, []string) error         { return nil }
func (s *stubBroker) ModifyAckDeadline(context.Context, string, []string, int) error {
	return nil
}

func (s *stubBroker) Publish(_ context.Context, topic string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published[topic] = append(s.published[topic], data)
	return nil
}

type stubTools struct {
	mu    sync.Mutex
	flags map[string]bool
}

func (s *stubTools) Enabled(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, ok := s.flags[key]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

func (s *stubTools) SetEnabled(_ context.Context, key string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags == nil {
		s.flags = make(map[string]bool)
	}
	s.flags[key] = enabled
	return nil
}

func (s *stubTools) Keys(context.Context) ([]string, error) { return nil, nil }

func newTestServer(t *testing.T) (*httptest.Server, *service.Fleet) {
	t.Helper()

	q := newStubBroker()
	registry := agent.NewRegistry()
	breaker := resilience.NewBreaker(resilience.Config{
		MaxFailures: 5,
		Window:      time.Minute,
		Cooldown:    time.Minute,
	})
	tools := &stubTools{}
	dispatcher := service.NewDispatchService(route.NewRouter(registry), registry, q, 25)
	dispatcher.SetToolStore(tools)

	w := worker.New(worker.Config{
		Name:         "dev",
		Subscription: "jobs.dev",
		PollInterval: 5 * time.Millisecond,
		DrainTimeout: time.Second,
	}, q, breaker, func(context.Context, broker.JobPayload, broker.Message) error {
		return nil
	})
	fleet := service.NewFleet(w)

	h := &Handlers{
		Dispatcher: dispatcher,
		Fleet:      fleet,
		Breaker:    breaker,
		Registry:   registry,
		Tools:      tools,
		Version:    "test",
	}
	r := chi.NewRouter()
	MountRoutes(r, h)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, fleet
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	getJSON(t, srv.URL+"/health", http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestReadyReflectsFleet(t *testing.T) {
	srv, fleet := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET ready: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready before start = %d, want 503", resp.StatusCode)
	}

	ctx := context.Background()
	fleet.StartAll(ctx)
	defer func() { _ = fleet.StopAll(ctx) }()

	getJSON(t, srv.URL+"/health/ready", http.StatusOK, nil)
}

func TestDispatchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/tasks",
		`{"session_id":"s1","content":"implement a new login feature"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var result service.DispatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.JobID == "" {
		t.Error("missing job id")
	}
	if result.Decision.SelectedAgent != agent.RoleDev {
		t.Errorf("selected = %q, want dev", result.Decision.SelectedAgent)
	}
}

func TestDispatchEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/tasks", `{"content":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing session status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/v1/tasks", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", resp.StatusCode)
	}
}

func TestDispatchEndpointBudgetExceeded(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/tasks",
		`{"session_id":"s1","content":"implement a new login feature","estimated_cost_usd":1.9}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first dispatch = %d, want 202", resp.StatusCode)
	}
	// Session holds 25 USD; 14 dev jobs at 1.9 exhaust it.
	status := 0
	for range 14 {
		r := postJSON(t, srv.URL+"/api/v1/tasks",
			`{"session_id":"s1","content":"implement a new login feature","estimated_cost_usd":1.9}`)
		status = r.StatusCode
		if status != http.StatusAccepted {
			break
		}
	}
	if status != http.StatusPaymentRequired {
		t.Errorf("exhausted budget status = %d, want 402", status)
	}
}

func TestRouteEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/tasks/route", `{"content":"hello there"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var d struct {
		SelectedAgent string  `json:"selected_agent"`
		Confidence    float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.SelectedAgent != "concierge" || d.Confidence != 0.60 {
		t.Errorf("decision = %+v", d)
	}
}

func TestListAgentsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var profiles []agent.Profile
	getJSON(t, srv.URL+"/api/v1/agents", http.StatusOK, &profiles)
	if len(profiles) == 0 {
		t.Fatal("no agents returned")
	}
}

func TestSessionBudgetEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/unknown/budget")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}

	postJSON(t, srv.URL+"/api/v1/tasks",
		`{"session_id":"s1","content":"implement a new login feature","estimated_cost_usd":0.4}`)

	var ledger struct {
		InitialUSD  float64 `json:"initial_usd"`
		ReservedUSD float64 `json:"reserved_usd"`
	}
	getJSON(t, srv.URL+"/api/v1/sessions/s1/budget", http.StatusOK, &ledger)
	if ledger.InitialUSD != 25 || ledger.ReservedUSD != 0.4 {
		t.Errorf("ledger = %+v", ledger)
	}
}

func TestToolFlagEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	var flag struct {
		Key     string `json:"key"`
		Enabled bool   `json:"enabled"`
	}
	getJSON(t, srv.URL+"/api/v1/tools/role:dev", http.StatusOK, &flag)
	if !flag.Enabled {
		t.Error("missing flag should default to enabled")
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/tools/role:dev",
		strings.NewReader(`{"enabled":false}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}

	getJSON(t, srv.URL+"/api/v1/tools/role:dev", http.StatusOK, &flag)
	if flag.Enabled {
		t.Error("flag still enabled after PUT")
	}

	// Dispatch to the disabled role is now rejected.
	dresp := postJSON(t, srv.URL+"/api/v1/tasks",
		`{"session_id":"s1","content":"implement a new login feature"}`)
	if dresp.StatusCode != http.StatusBadRequest {
		t.Errorf("disabled role dispatch = %d, want 400", dresp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Workers  map[string]worker.MetricsSnapshot `json:"workers"`
		Circuits []resilience.Circuit              `json:"circuits"`
	}
	getJSON(t, srv.URL+"/metrics", http.StatusOK, &body)
	if _, ok := body.Workers["dev"]; !ok {
		t.Error("metrics missing dev worker")
	}
}
