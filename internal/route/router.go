// Package route classifies task payloads into agent routing decisions.
package route

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/taskfleet/taskfleet/internal/domain/agent"
	"github.com/taskfleet/taskfleet/internal/domain/dispatch"
)

const (
	// DefaultCacheCapacity bounds the decision cache.
	DefaultCacheCapacity = 1000

	regexWeight    = 0.3
	keywordWeight  = 0.1
	scoreScale     = 0.5
	maxConfidence  = 0.99
	fallbackScore  = 0.60
	visionScore    = 0.95
	cacheKeyPrefix = 100 // content chars included in the cache key
)

// Router maps task payloads to routing decisions. The decision cache is
// private per-instance state; all methods are safe for concurrent use.
type Router struct {
	registry *agent.Registry
	cache    *decisionCache
}

// NewRouter creates a router over the given role registry.
func NewRouter(registry *agent.Registry) *Router {
	return NewRouterWithCapacity(registry, DefaultCacheCapacity)
}

// NewRouterWithCapacity creates a router with a custom cache capacity.
func NewRouterWithCapacity(registry *agent.Registry, cacheCapacity int) *Router {
	return &Router{
		registry: registry,
		cache:    newDecisionCache(cacheCapacity),
	}
}

// Route classifies the payload into a routing decision. Cached keys
// resolve deterministically; every payload resolves to some role.
func (r *Router) Route(p dispatch.TaskPayload) dispatch.Decision {
	// Attachments dominate text analysis.
	if p.HasImageAttachment() {
		return r.decisionFor(agent.RoleVision, visionScore, "image attachment present", r.fallbackAlternatives())
	}

	key := cacheKey(p)
	if d, ok := r.cache.get(key); ok {
		return d
	}

	d := r.classify(p)
	r.cache.put(key, d)
	return d
}

// ForceRoute bypasses scoring and routes directly to the given role with
// full confidence.
func (r *Router) ForceRoute(role agent.Role) dispatch.Decision {
	return r.decisionFor(role, 1.0, "forced route", nil)
}

// Suggest returns the primary decision followed by its alternatives as
// degraded-confidence decisions, for callers wanting ranked options.
func (r *Router) Suggest(p dispatch.TaskPayload) []dispatch.Decision {
	primary := r.Route(p)
	out := []dispatch.Decision{primary}
	for i, role := range primary.Alternatives {
		conf := primary.Confidence * 0.75
		conf -= float64(i) * 0.05
		if conf < 0 {
			conf = 0
		}
		d := r.decisionFor(role, conf, fmt.Sprintf("alternative to %s", primary.SelectedAgent), nil)
		out = append(out, d)
	}
	return out
}

// CacheLen returns the number of cached decisions.
func (r *Router) CacheLen() int {
	return r.cache.len()
}

func (r *Router) classify(p dispatch.TaskPayload) dispatch.Decision {
	text := strings.ToLower(strings.TrimSpace(p.Intent + " " + p.Content))

	// Explicit executive prefix wins outright.
	for prefix, role := range rolePrefixes {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p.Content)), prefix) {
			return r.decisionFor(role, 1.0, "explicit "+strings.TrimSuffix(prefix, ":")+" prefix", nil)
		}
	}

	type candidate struct {
		role       agent.Role
		confidence float64
		reasoning  string
		index      int
	}

	var candidates []candidate
	for i, pat := range intentPatterns {
		regexHits := 0
		for _, re := range pat.regexes {
			if re.MatchString(text) {
				regexHits++
			}
		}
		keywordHits := 0
		for _, kw := range pat.keywords {
			if containsWord(text, kw) {
				keywordHits++
			}
		}
		if regexHits == 0 && keywordHits < 2 {
			continue
		}
		score := float64(regexHits)*regexWeight + float64(keywordHits)*keywordWeight
		conf := pat.base + score*scoreScale
		if conf > maxConfidence {
			conf = maxConfidence
		}
		candidates = append(candidates, candidate{
			role:       pat.role,
			confidence: conf,
			reasoning:  fmt.Sprintf("pattern %q: %d regex, %d keyword matches", pat.name, regexHits, keywordHits),
			index:      i,
		})
	}

	if len(candidates) == 0 {
		slog.Debug("router fallback", "intent", p.Intent)
		return r.decisionFor(agent.RoleConcierge, fallbackScore, "no pattern qualified, concierge fallback", r.fallbackAlternatives())
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		return candidates[i].index < candidates[j].index
	})

	top := candidates[0]
	alternatives := make([]agent.Role, 0, 3)
	for _, c := range candidates[1:] {
		if len(alternatives) == 3 {
			break
		}
		alternatives = append(alternatives, c.role)
	}

	return r.decisionFor(top.role, top.confidence, top.reasoning, alternatives)
}

// decisionFor builds a decision from the registry entry for role.
// Alternatives are never nil.
func (r *Router) decisionFor(role agent.Role, confidence float64, reasoning string, alternatives []agent.Role) dispatch.Decision {
	if alternatives == nil {
		alternatives = []agent.Role{}
	}
	profile, ok := r.registry.Get(role)
	if !ok {
		// Unknown role falls back to concierge so every payload resolves.
		profile, _ = r.registry.Get(agent.RoleConcierge)
		role = agent.RoleConcierge
	}
	return dispatch.Decision{
		SelectedAgent:     role,
		Confidence:        confidence,
		Reasoning:         reasoning,
		Alternatives:      alternatives,
		RequiresProofGate: profile.RequiresProofGate,
		EstimatedTimeMS:   profile.Capabilities.Timeout.Milliseconds() / 2,
	}
}

func (r *Router) fallbackAlternatives() []agent.Role {
	return []agent.Role{agent.RoleResearch, agent.RoleCoding, agent.RoleDocumentation}
}

// cacheKey derives the cache key from the intent and a content prefix.
func cacheKey(p dispatch.TaskPayload) string {
	content := p.Content
	if len(content) > cacheKeyPrefix {
		content = content[:cacheKeyPrefix]
	}
	return p.Intent + "|" + content
}

// containsWord reports whether text contains kw on word boundaries for
// plain words, or as a substring for keywords with punctuation (ci/cd).
func containsWord(text, kw string) bool {
	idx := strings.Index(text, kw)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(text[idx-1])
		end := idx + len(kw)
		after := end == len(text) || !isWordByte(text[end])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], kw)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
