package route

import (
	"fmt"
	"testing"

	"github.com/taskfleet/taskfleet/internal/domain/agent"
	"github.com/taskfleet/taskfleet/internal/domain/dispatch"
)

func newTestRouter() *Router {
	return NewRouter(agent.NewRegistry())
}

func TestRouteDevelopmentIntent(t *testing.T) {
	r := newTestRouter()

	d := r.Route(dispatch.TaskPayload{Content: "implement a new login feature"})
	if d.SelectedAgent != agent.RoleDev {
		t.Fatalf("selected = %q, want dev", d.SelectedAgent)
	}
	if d.Confidence < 0.85 {
		t.Errorf("confidence = %.2f, want >= 0.85", d.Confidence)
	}
	if d.Confidence > 0.99 {
		t.Errorf("confidence = %.2f, exceeds cap", d.Confidence)
	}
}

func TestRouteFallbackToConcierge(t *testing.T) {
	r := newTestRouter()

	d := r.Route(dispatch.TaskPayload{Content: "hello there"})
	if d.SelectedAgent != agent.RoleConcierge {
		t.Fatalf("selected = %q, want concierge", d.SelectedAgent)
	}
	if d.Confidence != 0.60 {
		t.Errorf("confidence = %.2f, want exactly 0.60", d.Confidence)
	}
	want := []agent.Role{agent.RoleResearch, agent.RoleCoding, agent.RoleDocumentation}
	if len(d.Alternatives) != len(want) {
		t.Fatalf("alternatives = %v, want %v", d.Alternatives, want)
	}
	for i, role := range want {
		if d.Alternatives[i] != role {
			t.Errorf("alternatives[%d] = %q, want %q", i, d.Alternatives[i], role)
		}
	}
}

func TestRouteImageAttachmentShortCircuits(t *testing.T) {
	r := newTestRouter()

	// Text that would otherwise route to dev.
	d := r.Route(dispatch.TaskPayload{
		Content: "implement a new login feature",
		Attachments: []dispatch.Attachment{
			{Name: "mock.png", MimeType: "image/png"},
		},
	})
	if d.SelectedAgent != agent.RoleVision {
		t.Fatalf("selected = %q, want vision", d.SelectedAgent)
	}
	if d.Confidence != 0.95 {
		t.Errorf("confidence = %.2f, want 0.95", d.Confidence)
	}
}

func TestRouteNonImageAttachmentIgnored(t *testing.T) {
	r := newTestRouter()

	d := r.Route(dispatch.TaskPayload{
		Content: "implement a new login feature",
		Attachments: []dispatch.Attachment{
			{Name: "spec.pdf", MimeType: "application/pdf"},
		},
	})
	if d.SelectedAgent != agent.RoleDev {
		t.Errorf("selected = %q, want dev", d.SelectedAgent)
	}
}

func TestRouteExecutivePrefix(t *testing.T) {
	tests := []struct {
		content string
		want    agent.Role
	}{
		{"cto: evaluate our database choices", agent.RoleCTO},
		{"cmo: draft the launch campaign", agent.RoleCMO},
		{"cfo: project next quarter spend", agent.RoleCFO},
		{"coo: streamline the onboarding process", agent.RoleCOO},
		{"cpo: prioritize the roadmap", agent.RoleCPO},
	}
	r := newTestRouter()
	for _, tt := range tests {
		d := r.Route(dispatch.TaskPayload{Content: tt.content})
		if d.SelectedAgent != tt.want {
			t.Errorf("Route(%q) = %q, want %q", tt.content, d.SelectedAgent, tt.want)
		}
		if d.Confidence != 1.0 {
			t.Errorf("Route(%q) confidence = %.2f, want 1.0", tt.content, d.Confidence)
		}
		if !d.RequiresProofGate {
			t.Errorf("Route(%q) should require proof gate", tt.content)
		}
	}
}

func TestRouteQualificationRule(t *testing.T) {
	r := newTestRouter()

	// A single keyword hit with no regex match must not qualify.
	d := r.Route(dispatch.TaskPayload{Content: "the docker whale logo is cute"})
	if d.SelectedAgent == agent.RoleDeploy {
		t.Errorf("one keyword alone qualified the deployment pattern")
	}
}

func TestRouteTestingIntent(t *testing.T) {
	r := newTestRouter()

	d := r.Route(dispatch.TaskPayload{Content: "write tests for the parser"})
	if d.SelectedAgent != agent.RoleTest {
		t.Fatalf("selected = %q, want test", d.SelectedAgent)
	}
}

func TestRouteDeterministic(t *testing.T) {
	r := newTestRouter()
	p := dispatch.TaskPayload{Intent: "task", Content: "research the best queueing library"}

	first := r.Route(p)
	second := r.Route(p)
	if first.SelectedAgent != second.SelectedAgent || first.Confidence != second.Confidence {
		t.Errorf("repeated route diverged: %+v vs %+v", first, second)
	}
	if r.CacheLen() != 1 {
		t.Errorf("cache len = %d, want 1", r.CacheLen())
	}
}

func TestRouteAlternativesNeverNil(t *testing.T) {
	r := newTestRouter()
	for _, content := range []string{
		"implement a new login feature",
		"hello there",
		"cto: evaluate our stack",
	} {
		if d := r.Route(dispatch.TaskPayload{Content: content}); d.Alternatives == nil {
			t.Errorf("Route(%q) returned nil alternatives", content)
		}
	}
}

func TestRouteEstimatedTime(t *testing.T) {
	r := newTestRouter()

	// Half the role's configured timeout: dev runs 5 minute jobs.
	d := r.Route(dispatch.TaskPayload{Content: "implement a new login feature"})
	if d.EstimatedTimeMS != (5*60*1000)/2 {
		t.Errorf("estimated time = %d ms, want %d", d.EstimatedTimeMS, (5*60*1000)/2)
	}
}

func TestForceRoute(t *testing.T) {
	r := newTestRouter()

	d := r.ForceRoute(agent.RoleDeploy)
	if d.SelectedAgent != agent.RoleDeploy {
		t.Errorf("selected = %q, want deploy", d.SelectedAgent)
	}
	if d.Confidence != 1.0 {
		t.Errorf("confidence = %.2f, want 1.0", d.Confidence)
	}
}

func TestForceRouteUnknownRole(t *testing.T) {
	r := newTestRouter()

	d := r.ForceRoute(agent.Role("warlock"))
	if d.SelectedAgent != agent.RoleConcierge {
		t.Errorf("selected = %q, want concierge fallback", d.SelectedAgent)
	}
}

func TestSuggestRanking(t *testing.T) {
	r := newTestRouter()

	suggestions := r.Suggest(dispatch.TaskPayload{Content: "hello there"})
	if len(suggestions) != 4 {
		t.Fatalf("suggestions = %d, want primary + 3 alternatives", len(suggestions))
	}
	primary := suggestions[0]
	for i, s := range suggestions[1:] {
		want := primary.Confidence*0.75 - float64(i)*0.05
		if s.Confidence != want {
			t.Errorf("suggestion %d confidence = %.4f, want %.4f", i+1, s.Confidence, want)
		}
	}
}

func TestRouteCacheKeyUsesContentPrefix(t *testing.T) {
	r := newTestRouter()

	long := "research the best queueing library "
	for len(long) < 150 {
		long += "x"
	}
	r.Route(dispatch.TaskPayload{Content: long})
	// Same first 100 chars, different tail: must hit the cached entry.
	r.Route(dispatch.TaskPayload{Content: long + "yyy"})
	if r.CacheLen() != 1 {
		t.Errorf("cache len = %d, want 1 (shared prefix key)", r.CacheLen())
	}
}

func TestRouteConfidenceCap(t *testing.T) {
	r := newTestRouter()

	// Pile on enough keyword matches to exceed the cap before clamping.
	content := "implement code to fix the login bug in the backend endpoint, refactor the feature"
	d := r.Route(dispatch.TaskPayload{Content: content})
	if d.Confidence > 0.99 {
		t.Errorf("confidence = %.4f, want clamped to 0.99", d.Confidence)
	}
}

func ExampleRouter_Route() {
	r := NewRouter(agent.NewRegistry())
	d := r.Route(dispatch.TaskPayload{Content: "implement a new login feature"})
	fmt.Println(d.SelectedAgent)
	// Output: dev
}
