package policy

import (
	"errors"
	"testing"

	"vaultpilot/tensor"
)

func newZeroRecurrent(t *testing.T) *recurrent {
	t.Helper()
	p, report, err := newRecurrent(Config{Kind: KindRecurrent, ObsDim: 10, ActionCount: 4}, nil)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if len(report.Missing) != 12 {
		t.Fatalf("expected 12 missing tensors on nil bundle, got %d", len(report.Missing))
	}
	return p
}

func tenObs() []float64 {
	return []float64{0.5, 0.6, 0.5, 0.5, 0.4, 0.5, 0.5, 0.7, 0.5, 0.5}
}

func TestRecurrentActionFromBias(t *testing.T) {
	p := newZeroRecurrent(t)
	p.action.b[2] = 1

	dec, err := p.Evaluate(tenObs(), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if dec.Action != 2 {
		t.Fatalf("expected action 2, got %d", dec.Action)
	}
}

func TestRecurrentStateCarriesAcrossCalls(t *testing.T) {
	p := newZeroRecurrent(t)
	// g 门偏置拉高后单元 0 的细胞状态随调用逐步充电：
	// c1 = 0.5*tanh(5) ≈ 0.5，c2 = 0.5*c1 + 0.5*tanh(5) ≈ 0.75
	p.biasIH[2*lstmHiddenDim] = 5

	initial := p.InitialMemory().(*HiddenState)
	first, err := p.Evaluate(tenObs(), initial)
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	if initial.H[0] != 0 || initial.C[0] != 0 {
		t.Fatalf("input memory was mutated: h=%v c=%v", initial.H[0], initial.C[0])
	}

	state1 := first.Memory.(*HiddenState)
	if state1 == initial {
		t.Fatalf("memory must be replaced, not aliased")
	}
	if state1.C[0] <= 0.4 || state1.C[0] >= 0.6 {
		t.Fatalf("expected c[0] near 0.5, got %v", state1.C[0])
	}

	second, err := p.Evaluate(tenObs(), state1)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	state2 := second.Memory.(*HiddenState)
	if state2.C[0] <= state1.C[0] {
		t.Fatalf("cell state did not advance: %v then %v", state1.C[0], state2.C[0])
	}

	// 同一记忆重复评估必须给出相同状态
	repeat, err := p.Evaluate(tenObs(), state1)
	if err != nil {
		t.Fatalf("repeat evaluate: %v", err)
	}
	if repeat.Memory.(*HiddenState).C[0] != state2.C[0] {
		t.Fatalf("evaluation is not pure: %v vs %v", repeat.Memory.(*HiddenState).C[0], state2.C[0])
	}
}

func TestRecurrentNilMemoryMatchesInitial(t *testing.T) {
	p := newZeroRecurrent(t)
	p.biasIH[2*lstmHiddenDim] = 5

	fromNil, err := p.Evaluate(tenObs(), nil)
	if err != nil {
		t.Fatalf("evaluate nil memory: %v", err)
	}
	fromInitial, err := p.Evaluate(tenObs(), p.InitialMemory())
	if err != nil {
		t.Fatalf("evaluate initial memory: %v", err)
	}
	a := fromNil.Memory.(*HiddenState)
	b := fromInitial.Memory.(*HiddenState)
	if a.H[0] != b.H[0] || a.C[0] != b.C[0] {
		t.Fatalf("nil memory must behave like the initial state")
	}
	if fromNil.Action != fromInitial.Action {
		t.Fatalf("actions diverged: %d vs %d", fromNil.Action, fromInitial.Action)
	}
}

func TestRecurrentRejectsBadHiddenLength(t *testing.T) {
	p := newZeroRecurrent(t)
	bad := &HiddenState{H: tensor.NewVector(3), C: tensor.NewVector(lstmHiddenDim)}
	_, err := p.Evaluate(tenObs(), bad)
	if err == nil {
		t.Fatalf("expected error for malformed hidden state")
	}
	var evalErr EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvalError, got %T: %v", err, err)
	}
}

func TestRecurrentRejectsWrongObsLength(t *testing.T) {
	p := newZeroRecurrent(t)
	if _, err := p.Evaluate(make([]float64, 3), nil); err == nil {
		t.Fatalf("expected error for short observation")
	}
}
