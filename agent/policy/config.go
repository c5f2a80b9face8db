package policy

import (
	"fmt"

	"vaultpilot/weights"
)

// Kind selects a policy variant.
type Kind string

const (
	// KindFeedForward 无状态前馈网络（做市再平衡代理）
	KindFeedForward Kind = "feedforward"
	// KindRecurrent 单步 LSTM 循环网络（债务杠杆代理）
	KindRecurrent Kind = "recurrent"
	// KindRulebook 手写阈值规则引擎，无权重
	KindRulebook Kind = "rulebook"
)

// ParseKind maps a manifest/config string onto a known Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindFeedForward:
		return KindFeedForward, nil
	case KindRecurrent:
		return KindRecurrent, nil
	case KindRulebook:
		return KindRulebook, nil
	default:
		return "", fmt.Errorf("unknown policy kind %q", raw)
	}
}

// Config fixes the variant and its interface dimensions. The network
// layer widths are architecture constants, not configuration.
type Config struct {
	Kind        Kind
	ObsDim      int
	ActionCount int
}

func (c Config) validate() error {
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.ObsDim <= 0 {
		return fmt.Errorf("obs dim %d must be > 0", c.ObsDim)
	}
	if c.ActionCount <= 0 {
		return fmt.Errorf("action count %d must be > 0", c.ActionCount)
	}
	// 规则引擎的观测布局与动作编号是写死的，维度不对说明清单配错了代理
	if c.Kind == KindRulebook {
		if c.ObsDim != RulebookObsDim {
			return fmt.Errorf("rulebook obs dim must be %d, got %d", RulebookObsDim, c.ObsDim)
		}
		if c.ActionCount != RulebookActionCount {
			return fmt.Errorf("rulebook action count must be %d, got %d", RulebookActionCount, c.ActionCount)
		}
	}
	return nil
}

// New constructs the evaluator for cfg. Neural kinds copy their
// parameters out of bundle; a nil bundle keeps every parameter at
// zero and the report lists all tensors as missing. The rulebook
// takes no weights and returns a nil report.
func New(cfg Config, bundle *weights.Bundle) (Evaluator, *weights.LoadReport, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	switch cfg.Kind {
	case KindFeedForward:
		return newFeedForward(cfg, bundle)
	case KindRecurrent:
		return newRecurrent(cfg, bundle)
	case KindRulebook:
		return NewRulebook(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown policy kind %q", cfg.Kind)
	}
}
