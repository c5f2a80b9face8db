package policy

import (
	"fmt"

	"vaultpilot/tensor"
	"vaultpilot/weights"
)

// 前馈再平衡网络的层宽：特征主干 obs→16→64→128→128，全 GELU
const (
	ffHidden0    = 16
	ffHidden1    = 64
	ffHidden2    = 128
	ffFeatureDim = 128
)

// feedForward 无状态前馈策略，动作取分数向量的 argmax。
// 记忆对它没有意义，Evaluate 原样带回。
type feedForward struct {
	obsDim      int
	actionCount int

	features [4]linear
	policy   [2]linear
	action   linear
}

func newFeedForward(cfg Config, bundle *weights.Bundle) (*feedForward, *weights.LoadReport, error) {
	p := &feedForward{
		obsDim:      cfg.ObsDim,
		actionCount: cfg.ActionCount,
	}
	p.features[0] = newLinear(ffHidden0, cfg.ObsDim)
	p.features[1] = newLinear(ffHidden1, ffHidden0)
	p.features[2] = newLinear(ffHidden2, ffHidden1)
	p.features[3] = newLinear(ffFeatureDim, ffHidden2)
	p.policy[0] = newLinear(ffFeatureDim, ffFeatureDim)
	p.policy[1] = newLinear(ffFeatureDim, ffFeatureDim)
	p.action = newLinear(cfg.ActionCount, ffFeatureDim)

	report, err := loadSlots(bundle, p.slots())
	if err != nil {
		return nil, nil, err
	}
	return p, report, nil
}

func (p *feedForward) slots() []slot {
	out := make([]slot, 0, 14)
	for i, l := range p.features {
		out = append(out,
			matSlot(fmt.Sprintf("features.fc%d.weight", i), l.w),
			vecSlot(fmt.Sprintf("features.fc%d.bias", i), l.b))
	}
	for i, l := range p.policy {
		out = append(out,
			matSlot(fmt.Sprintf("policy.fc%d.weight", i), l.w),
			vecSlot(fmt.Sprintf("policy.fc%d.bias", i), l.b))
	}
	out = append(out,
		matSlot("action.weight", p.action.w),
		vecSlot("action.bias", p.action.b))
	return out
}

func (p *feedForward) ObsDim() int { return p.obsDim }

func (p *feedForward) ActionCount() int { return p.actionCount }

func (p *feedForward) InitialMemory() Memory { return nil }

func (p *feedForward) Evaluate(obs []float64, mem Memory) (Decision, error) {
	x := narrow(obs)
	var err error
	for i := range p.features {
		if x, err = p.features[i].apply(x); err != nil {
			return Decision{}, evalErrorf("features.fc%d: %v", i, err)
		}
		tensor.GELU(x)
	}
	for i := range p.policy {
		if x, err = p.policy[i].apply(x); err != nil {
			return Decision{}, evalErrorf("policy.fc%d: %v", i, err)
		}
		tensor.GELU(x)
	}
	logits, err := p.action.apply(x)
	if err != nil {
		return Decision{}, evalErrorf("action head: %v", err)
	}
	if !logits.IsFinite() {
		return Decision{}, EvalError("non-finite action scores")
	}
	return Decision{Action: tensor.ArgMax(logits), Memory: mem}, nil
}
