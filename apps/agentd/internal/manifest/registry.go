package manifest

import (
	"fmt"

	"vaultpilot/agent/policy"
	"vaultpilot/weights"
)

// Registry turns manifest entries into evaluators. Bundles are read
// from disk once at startup; after that every session gets its own
// fresh evaluator, so nothing mutable is shared between connections.
type Registry struct {
	entries []Entry
	byName  map[string]Entry
	bundles map[string]*weights.Bundle
	reports map[string]*weights.LoadReport
}

// NewRegistry loads every bundle and builds one probe evaluator per
// entry, so a broken bundle or shape mismatch fails at startup rather
// than on the first connection. Load reports are kept for the caller
// to log.
func NewRegistry(m *Manifest) (*Registry, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		entries: append([]Entry(nil), m.Agents...),
		byName:  make(map[string]Entry, len(m.Agents)),
		bundles: make(map[string]*weights.Bundle, len(m.Agents)),
		reports: make(map[string]*weights.LoadReport, len(m.Agents)),
	}
	for _, e := range m.Agents {
		var bundle *weights.Bundle
		if e.Weights != "" {
			b, err := weights.Open(e.Weights)
			if err != nil {
				return nil, fmt.Errorf("agent %q: %w", e.Name, err)
			}
			bundle = b
		}
		_, report, err := policy.New(e.policyConfig(), bundle)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", e.Name, err)
		}
		r.byName[e.Name] = e
		r.bundles[e.Name] = bundle
		if report != nil {
			r.reports[e.Name] = report
		}
	}
	return r, nil
}

// Names 按清单顺序列出代理名
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	return names
}

// DefaultAgent returns the first catalog entry.
func (r *Registry) DefaultAgent() string {
	return r.entries[0].Name
}

// Entry looks up a catalog entry by agent name.
func (r *Registry) Entry(name string) (Entry, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// NewEvaluator constructs a fresh evaluator for one session.
func (r *Registry) NewEvaluator(name string) (policy.Evaluator, error) {
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}
	ev, _, err := policy.New(e.policyConfig(), r.bundles[name])
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Report returns the startup load report for name; nil for agents
// without weights.
func (r *Registry) Report(name string) *weights.LoadReport {
	return r.reports[name]
}
