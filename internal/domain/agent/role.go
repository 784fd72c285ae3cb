// Package agent defines the agent role catalog.
package agent

import "time"

// Role identifies a specialist agent. The set of roles is closed;
// routing decisions always resolve to one of these values.
type Role string

const (
	RoleConcierge     Role = "concierge"
	RoleDev           Role = "dev"
	RoleTest          Role = "test"
	RoleDeploy        Role = "deploy"
	RoleResearch      Role = "research"
	RoleCoding        Role = "coding"
	RoleDocumentation Role = "documentation"
	RoleSecurity      Role = "security"
	RoleVision        Role = "vision"

	// Executive roles handle cross-cutting directives and are proof-gated.
	RoleCTO Role = "cto"
	RoleCMO Role = "cmo"
	RoleCFO Role = "cfo"
	RoleCOO Role = "coo"
	RoleCPO Role = "cpo"

	// RoleResearchSpecialist handles recursive analysis of oversized contexts.
	RoleResearchSpecialist Role = "research-specialist"
)

// Capabilities holds the static execution limits for a role.
type Capabilities struct {
	MaxConcurrentTasks int           `json:"max_concurrent_tasks"`
	Timeout            time.Duration `json:"timeout"`
	ExternalCalls      bool          `json:"external_calls"`
}

// Profile is the static catalog entry for a role.
type Profile struct {
	Role              Role         `json:"role"`
	DisplayName       string       `json:"display_name"`
	Capabilities      Capabilities `json:"capabilities"`
	Keywords          []string     `json:"keywords"`
	BudgetCapUSD      float64      `json:"budget_cap_usd"`
	Priority          int          `json:"priority"`
	RequiresProofGate bool         `json:"requires_proof_gate"`
}

// Registry is the static catalog of agent roles. It is immutable after
// construction and safe for concurrent reads.
type Registry struct {
	profiles map[Role]Profile
	order    []Role
}

// NewRegistry returns the built-in role catalog.
func NewRegistry() *Registry {
	profiles := []Profile{
		{
			Role:         RoleConcierge,
			DisplayName:  "concierge-orchestrator",
			Capabilities: Capabilities{MaxConcurrentTasks: 8, Timeout: 30 * time.Second, ExternalCalls: true},
			Keywords:     []string{"help", "question", "explain", "how"},
			BudgetCapUSD: 0.50,
			Priority:     100,
		},
		{
			Role:         RoleDev,
			DisplayName:  "dev-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 4, Timeout: 5 * time.Minute, ExternalCalls: true},
			Keywords:     []string{"code", "implement", "feature", "bug", "refactor", "endpoint", "login", "backend"},
			BudgetCapUSD: 2.00,
			Priority:     80,
		},
		{
			Role:         RoleTest,
			DisplayName:  "test-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 4, Timeout: 5 * time.Minute, ExternalCalls: false},
			Keywords:     []string{"test", "coverage", "regression", "assert", "verify"},
			BudgetCapUSD: 1.00,
			Priority:     70,
		},
		{
			Role:         RoleDeploy,
			DisplayName:  "deploy-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 2, Timeout: 10 * time.Minute, ExternalCalls: true},
			Keywords:     []string{"deploy", "release", "rollout", "ci/cd", "pipeline", "docker"},
			BudgetCapUSD: 1.50,
			Priority:     75,
		},
		{
			Role:         RoleResearch,
			DisplayName:  "research-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 4, Timeout: 10 * time.Minute, ExternalCalls: true},
			Keywords:     []string{"research", "investigate", "find", "search", "compare", "study"},
			BudgetCapUSD: 1.00,
			Priority:     60,
		},
		{
			Role:         RoleCoding,
			DisplayName:  "coding-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 4, Timeout: 5 * time.Minute, ExternalCalls: false},
			Keywords:     []string{"script", "snippet", "function", "algorithm", "parse"},
			BudgetCapUSD: 1.00,
			Priority:     65,
		},
		{
			Role:         RoleDocumentation,
			DisplayName:  "documentation-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 4, Timeout: 5 * time.Minute, ExternalCalls: false},
			Keywords:     []string{"document", "readme", "changelog", "docs", "guide", "tutorial"},
			BudgetCapUSD: 0.75,
			Priority:     50,
		},
		{
			Role:         RoleSecurity,
			DisplayName:  "security-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 2, Timeout: 10 * time.Minute, ExternalCalls: true},
			Keywords:     []string{"security", "vulnerability", "audit", "cve", "exploit", "pentest"},
			BudgetCapUSD: 2.00,
			Priority:     85,
		},
		{
			Role:         RoleVision,
			DisplayName:  "vision-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 2, Timeout: 2 * time.Minute, ExternalCalls: true},
			Keywords:     []string{"image", "screenshot", "diagram", "photo"},
			BudgetCapUSD: 1.50,
			Priority:     90,
		},
		{
			Role:              RoleCTO,
			DisplayName:       "cto-executive",
			Capabilities:      Capabilities{MaxConcurrentTasks: 2, Timeout: 10 * time.Minute, ExternalCalls: true},
			Keywords:          []string{"architecture", "review", "technical", "infrastructure", "stack"},
			BudgetCapUSD:      3.00,
			Priority:          95,
			RequiresProofGate: true,
		},
		{
			Role:              RoleCMO,
			DisplayName:       "cmo-executive",
			Capabilities:      Capabilities{MaxConcurrentTasks: 2, Timeout: 10 * time.Minute, ExternalCalls: true},
			Keywords:          []string{"brand", "campaign", "content", "palette", "design", "logo"},
			BudgetCapUSD:      3.00,
			Priority:          95,
			RequiresProofGate: true,
		},
		{
			Role:              RoleCFO,
			DisplayName:       "cfo-executive",
			Capabilities:      Capabilities{MaxConcurrentTasks: 2, Timeout: 10 * time.Minute, ExternalCalls: true},
			Keywords:          []string{"budget", "forecast", "billing", "cost", "spend", "invoice"},
			BudgetCapUSD:      3.00,
			Priority:          95,
			RequiresProofGate: true,
		},
		{
			Role:              RoleCOO,
			DisplayName:       "coo-executive",
			Capabilities:      Capabilities{MaxConcurrentTasks: 2, Timeout: 10 * time.Minute, ExternalCalls: true},
			Keywords:          []string{"workflow", "process", "automate", "optimize", "logistics"},
			BudgetCapUSD:      3.00,
			Priority:          95,
			RequiresProofGate: true,
		},
		{
			Role:              RoleCPO,
			DisplayName:       "cpo-executive",
			Capabilities:      Capabilities{MaxConcurrentTasks: 2, Timeout: 10 * time.Minute, ExternalCalls: true},
			Keywords:          []string{"product", "spec", "roadmap", "prioritize", "user"},
			BudgetCapUSD:      3.00,
			Priority:          95,
			RequiresProofGate: true,
		},
		{
			Role:         RoleResearchSpecialist,
			DisplayName:  "research-specialist-engine",
			Capabilities: Capabilities{MaxConcurrentTasks: 1, Timeout: 30 * time.Minute, ExternalCalls: true},
			Keywords:     []string{"deep", "recursive", "aggregate", "chunk", "corpus"},
			BudgetCapUSD: 5.00,
			Priority:     55,
		},
	}

	m := make(map[Role]Profile, len(profiles))
	order := make([]Role, 0, len(profiles))
	for _, p := range profiles {
		m[p.Role] = p
		order = append(order, p.Role)
	}
	return &Registry{profiles: m, order: order}
}

// Get returns the profile for a role.
func (r *Registry) Get(role Role) (Profile, bool) {
	p, ok := r.profiles[role]
	return p, ok
}

// All returns all profiles in catalog order.
func (r *Registry) All() []Profile {
	out := make([]Profile, 0, len(r.order))
	for _, role := range r.order {
		out = append(out, r.profiles[role])
	}
	return out
}

// Valid reports whether role is part of the closed enumeration.
func (r *Registry) Valid(role Role) bool {
	_, ok := r.profiles[role]
	return ok
}
