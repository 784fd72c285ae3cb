package route

import (
	"regexp"

	"github.com/taskfleet/taskfleet/internal/domain/agent"
)

// pattern is one entry in the static intent classification table.
// Scoring over this table is a pure function; see score().
type pattern struct {
	name     string
	role     agent.Role
	base     float64
	regexes  []*regexp.Regexp
	keywords []string
}

// rolePrefixes maps explicit executive prefixes to their roles.
// A payload starting with one of these bypasses scoring entirely.
var rolePrefixes = map[string]agent.Role{
	"cto:": agent.RoleCTO,
	"cmo:": agent.RoleCMO,
	"cfo:": agent.RoleCFO,
	"coo:": agent.RoleCOO,
	"cpo:": agent.RoleCPO,
}

// intentPatterns is the ordered classification table. Order matters only
// for tie-breaking: earlier patterns win equal confidence.
var intentPatterns = []pattern{
	{
		name: "development",
		role: agent.RoleDev,
		base: 0.75,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(implement|build|fix|refactor|add)\b.*\b(feature|bug|function|endpoint|api|login|form)\b`),
			regexp.MustCompile(`(?i)\bwrite\s+(some\s+)?code\b`),
		},
		keywords: []string{"code", "implement", "feature", "bug", "refactor", "endpoint", "login", "backend", "frontend"},
	},
	{
		name: "testing",
		role: agent.RoleTest,
		base: 0.70,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(write|add|run)\b.*\btests?\b`),
			regexp.MustCompile(`(?i)\btest\s+coverage\b`),
		},
		keywords: []string{"test", "coverage", "regression", "assert", "verify", "flaky"},
	},
	{
		name: "deployment",
		role: agent.RoleDeploy,
		base: 0.70,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(deploy|release|roll\s?out|ship)\b`),
			regexp.MustCompile(`(?i)\bci/?cd\b`),
		},
		keywords: []string{"deploy", "release", "rollout", "pipeline", "docker", "kubernetes"},
	},
	{
		name: "security",
		role: agent.RoleSecurity,
		base: 0.75,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(vulnerab|exploit|cve-\d+|penetration)\b`),
			regexp.MustCompile(`(?i)\bsecurity\s+(audit|review|scan)\b`),
		},
		keywords: []string{"security", "vulnerability", "audit", "cve", "exploit", "pentest"},
	},
	{
		name: "documentation",
		role: agent.RoleDocumentation,
		base: 0.65,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(write|update|draft)\b.*\b(docs?|documentation|readme|changelog)\b`),
		},
		keywords: []string{"document", "readme", "changelog", "docs", "guide", "tutorial"},
	},
	{
		name: "research",
		role: agent.RoleResearch,
		base: 0.65,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(research|investigate|compare|look\s+up)\b`),
		},
		keywords: []string{"research", "investigate", "find", "search", "compare", "study"},
	},
	{
		name: "deep-analysis",
		role: agent.RoleResearchSpecialist,
		base: 0.70,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(deep|recursive)\s+(analysis|research)\b`),
			regexp.MustCompile(`(?i)\b(summarize|analyze)\b.*\b(corpus|dataset|entire|whole)\b`),
		},
		keywords: []string{"deep", "recursive", "aggregate", "chunk", "corpus"},
	},
	{
		name: "scripting",
		role: agent.RoleCoding,
		base: 0.65,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(script|snippet|one-?liner)\b`),
		},
		keywords: []string{"script", "snippet", "function", "algorithm", "parse"},
	},
	{
		name: "architecture",
		role: agent.RoleCTO,
		base: 0.70,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(architecture|architectural)\s+(review|decision|design)\b`),
		},
		keywords: []string{"architecture", "infrastructure", "stack", "scalability"},
	},
	{
		name: "marketing",
		role: agent.RoleCMO,
		base: 0.70,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(brand|branding|campaign)\b`),
			regexp.MustCompile(`(?i)\b(color\s+)?palette\b`),
		},
		keywords: []string{"brand", "campaign", "content", "palette", "logo", "marketing"},
	},
	{
		name: "finance",
		role: agent.RoleCFO,
		base: 0.70,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(budget|forecast|billing)\b`),
		},
		keywords: []string{"budget", "forecast", "billing", "cost", "spend", "invoice"},
	},
	{
		name: "operations",
		role: agent.RoleCOO,
		base: 0.70,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(workflow|process)\s+(automation|optimization)\b`),
		},
		keywords: []string{"workflow", "process", "automate", "optimize", "logistics"},
	},
	{
		name: "product",
		role: agent.RoleCPO,
		base: 0.70,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(product\s+spec|user\s+stor(y|ies)|roadmap)\b`),
		},
		keywords: []string{"product", "spec", "roadmap", "prioritize", "milestone"},
	},
}
