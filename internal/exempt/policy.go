// Package exempt resolves which detectors run for a given route. Policies
// are declared at route-registration time and compiled into one record per
// route; dispatch is a read-only lookup.
package exempt

import (
	"strings"
	"sync"
)

type ruleKind int

const (
	ruleExemptAll ruleKind = iota
	ruleExemptFrom
	ruleOnly
	ruleRequire
)

// Rule is one layer of a route's exemption policy.
type Rule struct {
	kind  ruleKind
	names []string
}

// ExemptAll skips every detector for the route.
func ExemptAll() Rule { return Rule{kind: ruleExemptAll} }

// ExemptFrom skips the named detectors; others run normally.
func ExemptFrom(names ...string) Rule { return Rule{kind: ruleExemptFrom, names: names} }

// Only runs exactly the named detectors.
func Only(names ...string) Rule { return Rule{kind: ruleOnly, names: names} }

// Require forces the named detectors to run, overriding any exempt rule for
// the same name on the same route, regardless of layering order.
func Require(names ...string) Rule { return Rule{kind: ruleRequire, names: names} }

// policy is the compiled per-route record.
type policy struct {
	exemptAll  bool
	exemptFrom map[string]struct{}
	only       map[string]struct{}
	hasOnly    bool
	require    map[string]struct{}
}

func compile(rules []Rule) *policy {
	p := &policy{
		exemptFrom: make(map[string]struct{}),
		only:       make(map[string]struct{}),
		require:    make(map[string]struct{}),
	}
	for _, r := range rules {
		switch r.kind {
		case ruleExemptAll:
			p.exemptAll = true
		case ruleExemptFrom:
			for _, n := range r.names {
				p.exemptFrom[n] = struct{}{}
			}
		case ruleOnly:
			p.hasOnly = true
			for _, n := range r.names {
				p.only[n] = struct{}{}
			}
		case ruleRequire:
			for _, n := range r.names {
				p.require[n] = struct{}{}
			}
		}
	}
	return p
}

// Registry maps routes to compiled policies. Routes match exactly, or by
// prefix when registered with a trailing "/*".
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]*policy
	prefixes []prefixPolicy

	exemptPaths map[string]struct{}
}

type prefixPolicy struct {
	prefix string
	policy *policy
}

// NewRegistry returns an empty registry. exemptPaths lists paths fully
// exempt from every detector (health checks, static assets).
func NewRegistry(exemptPaths []string) *Registry {
	ep := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		if p = strings.TrimSpace(p); p != "" {
			ep[p] = struct{}{}
		}
	}
	return &Registry{
		exact:       make(map[string]*policy),
		exemptPaths: ep,
	}
}

// Register compiles the rules for route. Registering a route again replaces
// its policy.
func (r *Registry) Register(route string, rules ...Rule) {
	p := compile(rules)
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.HasSuffix(route, "/*") {
		prefix := strings.TrimSuffix(route, "*")
		for i := range r.prefixes {
			if r.prefixes[i].prefix == prefix {
				r.prefixes[i].policy = p
				return
			}
		}
		r.prefixes = append(r.prefixes, prefixPolicy{prefix: prefix, policy: p})
		return
	}
	r.exact[route] = p
}

func (r *Registry) match(route string) *policy {
	if p, ok := r.exact[route]; ok {
		return p
	}
	var best *policy
	bestLen := -1
	for _, pp := range r.prefixes {
		if strings.HasPrefix(route, pp.prefix) && len(pp.prefix) > bestLen {
			best = pp.policy
			bestLen = len(pp.prefix)
		}
	}
	return best
}

// ShouldApply reports whether the named detector runs for route. Require
// beats every exempt rule; Only restricts the set; no policy means all
// detectors apply.
func (r *Registry) ShouldApply(detector, route string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.exemptPaths[route]; ok {
		return false
	}

	p := r.match(route)
	if p == nil {
		return true
	}
	if _, ok := p.require[detector]; ok {
		return true
	}
	if p.exemptAll {
		return false
	}
	if _, ok := p.exemptFrom[detector]; ok {
		return false
	}
	if p.hasOnly {
		_, ok := p.only[detector]
		return ok
	}
	return true
}
