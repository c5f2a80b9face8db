// Package manifest defines which agents one agentd process serves:
// a YAML catalog mapping agent names onto policy variants and their
// weights bundles.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vaultpilot/agent/policy"
)

// Entry describes one servable agent.
type Entry struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	ObsDim      int    `yaml:"obs_dim"`
	ActionCount int    `yaml:"action_count"`
	// Weights bundle 路径。神经网络必填，规则引擎必须留空。
	Weights string `yaml:"weights,omitempty"`
}

func (e Entry) policyConfig() policy.Config {
	return policy.Config{
		Kind:        policy.Kind(e.Kind),
		ObsDim:      e.ObsDim,
		ActionCount: e.ActionCount,
	}
}

// Manifest is the agent catalog for one process. Order matters: the
// first entry is the default agent.
type Manifest struct {
	Agents []Entry `yaml:"agents"`
}

// Default is the built-in catalog used when AGENTD_MANIFEST is unset:
// just the weightless rulebook agent. Neural agents need an explicit
// manifest because their bundles live on disk.
func Default() *Manifest {
	return &Manifest{Agents: []Entry{{
		Name:        "debt-rules",
		Kind:        string(policy.KindRulebook),
		ObsDim:      policy.RulebookObsDim,
		ActionCount: policy.RulebookActionCount,
	}}}
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FromEnv loads AGENTD_MANIFEST, falling back to the built-in catalog.
// The second return names the source for the startup log.
func FromEnv() (*Manifest, string, error) {
	path := strings.TrimSpace(os.Getenv("AGENTD_MANIFEST"))
	if path == "" {
		return Default(), "builtin", nil
	}
	m, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return m, path, nil
}

func (m *Manifest) validate() error {
	if len(m.Agents) == 0 {
		return fmt.Errorf("manifest has no agents")
	}
	seen := make(map[string]bool, len(m.Agents))
	for i, e := range m.Agents {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("agent %d: empty name", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("agent %q listed twice", e.Name)
		}
		seen[e.Name] = true

		kind, err := policy.ParseKind(e.Kind)
		if err != nil {
			return fmt.Errorf("agent %q: %w", e.Name, err)
		}
		if e.ObsDim <= 0 {
			return fmt.Errorf("agent %q: obs_dim must be > 0", e.Name)
		}
		if e.ActionCount <= 0 {
			return fmt.Errorf("agent %q: action_count must be > 0", e.Name)
		}
		if kind == policy.KindRulebook {
			if strings.TrimSpace(e.Weights) != "" {
				return fmt.Errorf("agent %q: rulebook takes no weights", e.Name)
			}
		} else if strings.TrimSpace(e.Weights) == "" {
			return fmt.Errorf("agent %q: kind %s requires a weights bundle", e.Name, e.Kind)
		}
	}
	return nil
}
