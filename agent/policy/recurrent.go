package policy

import (
	"math"

	"vaultpilot/tensor"
	"vaultpilot/weights"
)

// 循环网络层宽：特征 obs→128 ReLU，LSTM 128→256，
// 策略头 256→256→128 ReLU，动作头 128→actionCount
const (
	lstmInputDim  = 128
	lstmHiddenDim = 256
)

// recurrent 单步 LSTM 策略。每次 Evaluate 把观测当作长度 1 的序列
// 接在携带的 (h, c) 之后，输出新状态作为下一轮记忆。
type recurrent struct {
	obsDim      int
	actionCount int

	features linear

	// LSTM 参数，门排列按 i,f,g,o 连续分块
	weightIH *tensor.Matrix // (4*hidden, input)
	weightHH *tensor.Matrix // (4*hidden, hidden)
	biasIH   tensor.Vector
	biasHH   tensor.Vector

	policy [2]linear
	action linear
}

func newRecurrent(cfg Config, bundle *weights.Bundle) (*recurrent, *weights.LoadReport, error) {
	p := &recurrent{
		obsDim:      cfg.ObsDim,
		actionCount: cfg.ActionCount,
	}
	p.features = newLinear(lstmInputDim, cfg.ObsDim)
	p.weightIH = tensor.Zeros(4*lstmHiddenDim, lstmInputDim)
	p.weightHH = tensor.Zeros(4*lstmHiddenDim, lstmHiddenDim)
	p.biasIH = tensor.NewVector(4 * lstmHiddenDim)
	p.biasHH = tensor.NewVector(4 * lstmHiddenDim)
	p.policy[0] = newLinear(lstmHiddenDim, lstmHiddenDim)
	p.policy[1] = newLinear(lstmInputDim, lstmHiddenDim)
	p.action = newLinear(cfg.ActionCount, lstmInputDim)

	report, err := loadSlots(bundle, p.slots())
	if err != nil {
		return nil, nil, err
	}
	return p, report, nil
}

func (p *recurrent) slots() []slot {
	return []slot{
		matSlot("features.fc0.weight", p.features.w),
		vecSlot("features.fc0.bias", p.features.b),
		matSlot("lstm.weight_ih", p.weightIH),
		matSlot("lstm.weight_hh", p.weightHH),
		vecSlot("lstm.bias_ih", p.biasIH),
		vecSlot("lstm.bias_hh", p.biasHH),
		matSlot("policy.fc0.weight", p.policy[0].w),
		vecSlot("policy.fc0.bias", p.policy[0].b),
		matSlot("policy.fc1.weight", p.policy[1].w),
		vecSlot("policy.fc1.bias", p.policy[1].b),
		matSlot("action.weight", p.action.w),
		vecSlot("action.bias", p.action.b),
	}
}

func (p *recurrent) ObsDim() int { return p.obsDim }

func (p *recurrent) ActionCount() int { return p.actionCount }

// InitialMemory 全零 (h, c)
func (p *recurrent) InitialMemory() Memory {
	return &HiddenState{
		H: tensor.NewVector(lstmHiddenDim),
		C: tensor.NewVector(lstmHiddenDim),
	}
}

func (p *recurrent) Evaluate(obs []float64, mem Memory) (Decision, error) {
	hidden, ok := mem.(*HiddenState)
	if !ok || hidden == nil {
		hidden = p.InitialMemory().(*HiddenState)
	}
	if len(hidden.H) != lstmHiddenDim || len(hidden.C) != lstmHiddenDim {
		return Decision{}, evalErrorf("hidden state length %d/%d, want %d/%d",
			len(hidden.H), len(hidden.C), lstmHiddenDim, lstmHiddenDim)
	}

	x, err := p.features.apply(narrow(obs))
	if err != nil {
		return Decision{}, evalErrorf("features.fc0: %v", err)
	}
	tensor.ReLU(x)

	newH, newC, err := p.step(x, hidden)
	if err != nil {
		return Decision{}, err
	}

	y := newH
	for i := range p.policy {
		if y, err = p.policy[i].apply(y); err != nil {
			return Decision{}, evalErrorf("policy.fc%d: %v", i, err)
		}
		tensor.ReLU(y)
	}
	logits, err := p.action.apply(y)
	if err != nil {
		return Decision{}, evalErrorf("action head: %v", err)
	}
	if !logits.IsFinite() {
		return Decision{}, EvalError("non-finite action scores")
	}
	return Decision{Action: tensor.ArgMax(logits), Memory: &HiddenState{H: newH, C: newC}}, nil
}

// step 单步 LSTM。输入的 hidden 只读，新状态另行分配。
func (p *recurrent) step(x tensor.Vector, hidden *HiddenState) (tensor.Vector, tensor.Vector, error) {
	gi, err := p.weightIH.MulVec(x)
	if err != nil {
		return nil, nil, evalErrorf("lstm input gates: %v", err)
	}
	gh, err := p.weightHH.MulVec(hidden.H)
	if err != nil {
		return nil, nil, evalErrorf("lstm hidden gates: %v", err)
	}
	gates := gi.AddInPlace(p.biasIH).AddInPlace(gh).AddInPlace(p.biasHH)

	in := tensor.Sigmoid(gates[0*lstmHiddenDim : 1*lstmHiddenDim])
	forget := tensor.Sigmoid(gates[1*lstmHiddenDim : 2*lstmHiddenDim])
	cell := tensor.Tanh(gates[2*lstmHiddenDim : 3*lstmHiddenDim])
	out := tensor.Sigmoid(gates[3*lstmHiddenDim : 4*lstmHiddenDim])

	newC := make(tensor.Vector, lstmHiddenDim)
	newH := make(tensor.Vector, lstmHiddenDim)
	for i := 0; i < lstmHiddenDim; i++ {
		newC[i] = forget[i]*hidden.C[i] + in[i]*cell[i]
		newH[i] = out[i] * float32(math.Tanh(float64(newC[i])))
	}
	return newH, newC, nil
}
