package agent

import (
	"encoding/json"
	"testing"

	"vaultpilot/agent/policy"
)

// stubEvaluator 的记忆是见过的调用数：动作 = 自上次重置以来的第 n 次调用
type stubEvaluator struct {
	failNext bool
	calls    int
	seen     []policy.Memory
}

func (e *stubEvaluator) ObsDim() int { return 3 }

func (e *stubEvaluator) ActionCount() int { return 8 }

func (e *stubEvaluator) InitialMemory() policy.Memory { return policy.LastAction{Action: 0} }

func (e *stubEvaluator) Evaluate(obs []float64, mem policy.Memory) (policy.Decision, error) {
	e.calls++
	e.seen = append(e.seen, mem)
	if e.failNext {
		e.failNext = false
		return policy.Decision{}, policy.EvalError("matmul shape mismatch")
	}
	last := mem.(policy.LastAction)
	next := last.Action + 1
	return policy.Decision{Action: next, Memory: policy.LastAction{Action: next}}, nil
}

type captureRecorder struct {
	decisions []DecisionRecord
	resets    []ResetRecord
}

func (r *captureRecorder) Decision(rec DecisionRecord) { r.decisions = append(r.decisions, rec) }

func (r *captureRecorder) Reset(rec ResetRecord) { r.resets = append(r.resets, rec) }

func TestSessionMemoryAdvancesPerInfer(t *testing.T) {
	ev := &stubEvaluator{}
	s := NewSession("s-1", "stub", ev, nil)

	obs := []float64{1, 2, 3}
	for i := 1; i <= 3; i++ {
		action, err := s.Infer(obs)
		if err != nil {
			t.Fatalf("infer %d: %v", i, err)
		}
		if action != i {
			t.Fatalf("infer %d: expected action %d, got %d", i, i, action)
		}
	}
	// 评估器每轮都要收到上一轮换出的记忆
	for i, mem := range ev.seen {
		if mem != (policy.LastAction{Action: i}) {
			t.Fatalf("call %d saw memory %#v", i, mem)
		}
	}
}

func TestSessionResetRestoresInitialMemory(t *testing.T) {
	ev := &stubEvaluator{}
	s := NewSession("s-1", "stub", ev, nil)

	if _, err := s.Infer([]float64{0, 0, 0}); err != nil {
		t.Fatalf("infer: %v", err)
	}
	s.Reset()
	action, err := s.Infer([]float64{0, 0, 0})
	if err != nil {
		t.Fatalf("infer after reset: %v", err)
	}
	if action != 1 {
		t.Fatalf("expected action 1 after reset, got %d", action)
	}

	snap := s.Snapshot()
	if snap.Resets != 1 || snap.Inferences != 2 || snap.Failures != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestSessionEvaluatorFailureRecoversMemory(t *testing.T) {
	ev := &stubEvaluator{}
	s := NewSession("s-1", "stub", ev, nil)

	if _, err := s.Infer([]float64{0, 0, 0}); err != nil {
		t.Fatalf("infer: %v", err)
	}

	ev.failNext = true
	_, err := s.Infer([]float64{0, 0, 0})
	if err == nil {
		t.Fatalf("expected evaluator failure to surface")
	}
	if err.Error() != "matmul shape mismatch" {
		t.Fatalf("expected evaluator message verbatim, got %q", err.Error())
	}

	// 失败后记忆退回初始值，下一轮从头数
	action, err := s.Infer([]float64{0, 0, 0})
	if err != nil {
		t.Fatalf("infer after failure: %v", err)
	}
	if action != 1 {
		t.Fatalf("expected action 1 after recovery, got %d", action)
	}

	snap := s.Snapshot()
	if snap.Failures != 1 || snap.Inferences != 2 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.LastAction != 1 {
		t.Fatalf("expected last action 1, got %d", snap.LastAction)
	}
}

func TestSessionInvalidObservationLeavesMemoryAlone(t *testing.T) {
	ev := &stubEvaluator{}
	s := NewSession("s-1", "stub", ev, nil)

	if _, err := s.Infer([]float64{0, 0, 0}); err != nil {
		t.Fatalf("infer: %v", err)
	}

	resp := s.Handle(Command{Type: CommandInfer, Obs: json.RawMessage(`[1,2]`)})
	if resp.Err != "invalid_observation" {
		t.Fatalf("expected invalid_observation, got %+v", resp)
	}
	if ev.calls != 1 {
		t.Fatalf("rejected observation must not reach the evaluator, calls=%d", ev.calls)
	}

	// 记忆原封不动，计数继续
	action, err := s.Infer([]float64{0, 0, 0})
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if action != 2 {
		t.Fatalf("expected action 2, got %d", action)
	}
}

func TestSessionHandleShapesResponses(t *testing.T) {
	ev := &stubEvaluator{}
	s := NewSession("s-1", "stub", ev, nil)

	resp := s.Handle(Command{Type: CommandReset})
	if resp.Status != "reset" || resp.Action != nil || resp.Err != "" {
		t.Fatalf("unexpected reset response: %+v", resp)
	}

	resp = s.Handle(Command{Type: CommandInfer, Obs: json.RawMessage(`[1,2,3]`)})
	if resp.Action == nil || *resp.Action != 1 {
		t.Fatalf("unexpected infer response: %+v", resp)
	}

	resp = s.Handle(Command{Type: CommandUnknown})
	if resp.Err != "unknown_command" {
		t.Fatalf("expected unknown_command, got %+v", resp)
	}

	resp = s.Handle(Command{Type: CommandInvalid})
	if resp.Err != "invalid_json" {
		t.Fatalf("expected invalid_json, got %+v", resp)
	}

	ev.failNext = true
	resp = s.Handle(Command{Type: CommandInfer, Obs: json.RawMessage(`[1,2,3]`)})
	if resp.Err != "matmul shape mismatch" {
		t.Fatalf("expected evaluator message, got %+v", resp)
	}
}

func TestSessionRecorder(t *testing.T) {
	ev := &stubEvaluator{}
	rec := &captureRecorder{}
	s := NewSession("s-9", "stub", ev, rec)

	if _, err := s.Infer([]float64{1, 2, 3}); err != nil {
		t.Fatalf("infer: %v", err)
	}
	s.Reset()
	ev.failNext = true
	if _, err := s.Infer([]float64{1, 2, 3}); err == nil {
		t.Fatalf("expected failure")
	}

	if len(rec.decisions) != 2 {
		t.Fatalf("expected 2 decision records, got %d", len(rec.decisions))
	}
	first := rec.decisions[0]
	if first.Session != "s-9" || first.Agent != "stub" || first.Seq != 1 || first.Action != 1 || first.Err != "" {
		t.Fatalf("unexpected first decision record: %+v", first)
	}
	if len(first.Obs) != 3 || first.Obs[1] != 2 {
		t.Fatalf("observation not captured: %+v", first.Obs)
	}

	failed := rec.decisions[1]
	if failed.Seq != 3 || failed.Action != -1 || failed.Err != "matmul shape mismatch" {
		t.Fatalf("unexpected failure record: %+v", failed)
	}

	if len(rec.resets) != 1 || rec.resets[0].Seq != 2 {
		t.Fatalf("unexpected reset records: %+v", rec.resets)
	}
}
