package agent

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParseLineClassification(t *testing.T) {
	cases := []struct {
		line string
		want CommandType
	}{
		{`{"type":"reset"}`, CommandReset},
		{`{"type":"infer","obs":[1,2]}`, CommandInfer},
		{`{"type":"predict"}`, CommandUnknown},
		{`{"obs":[1,2]}`, CommandUnknown},
		{`{"type":null}`, CommandUnknown},
		{`{"type":5}`, CommandUnknown},
		{`[1,2,3]`, CommandUnknown},
		{`"reset"`, CommandUnknown},
		{`42`, CommandUnknown},
		{`not-json`, CommandInvalid},
		{`{"type":"infer"`, CommandInvalid},
		{`{`, CommandInvalid},
	}
	for _, tc := range cases {
		got := ParseLine([]byte(tc.line))
		if got.Type != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.line, CommandDictionary[tc.want], CommandDictionary[got.Type])
		}
	}
}

func TestParseLineKeepsRawObs(t *testing.T) {
	cmd := ParseLine([]byte(`{"type":"infer","obs":[0.25,"0.5",true]}`))
	if cmd.Type != CommandInfer {
		t.Fatalf("expected INFER, got %s", CommandDictionary[cmd.Type])
	}
	if string(cmd.Obs) != `[0.25,"0.5",true]` {
		t.Fatalf("unexpected raw obs: %s", cmd.Obs)
	}
}

func TestParseObservationAcceptsCoercibleElements(t *testing.T) {
	raw := json.RawMessage(`[0.5, 2, "0.75", " 1.5 ", true, false]`)
	obs, err := ParseObservation(raw, 6)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []float64{0.5, 2, 0.75, 1.5, 1, 0}
	for i := range want {
		if obs[i] != want[i] {
			t.Fatalf("obs[%d]: expected %v, got %v", i, want[i], obs[i])
		}
	}
}

func TestParseObservationPassesNonFiniteStrings(t *testing.T) {
	// 非有限值放行，越界处理是评估器的截断职责
	obs, err := ParseObservation(json.RawMessage(`["NaN", "Inf", "-inf"]`), 3)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !math.IsNaN(obs[0]) {
		t.Fatalf("expected NaN, got %v", obs[0])
	}
	if !math.IsInf(obs[1], 1) || !math.IsInf(obs[2], -1) {
		t.Fatalf("expected infinities, got %v %v", obs[1], obs[2])
	}
}

func TestParseObservationRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		dim  int
	}{
		{"missing field", ``, 3},
		{"not an array", `{"a":1}`, 3},
		{"scalar", `0.5`, 3},
		{"too short", `[1,2]`, 3},
		{"too long", `[1,2,3,4]`, 3},
		{"null element", `[1,null,3]`, 3},
		{"text element", `[1,"abc",3]`, 3},
		{"empty string element", `[1,"",3]`, 3},
		{"nested array", `[1,[2],3]`, 3},
		{"object element", `[1,{"v":2},3]`, 3},
	}
	for _, tc := range cases {
		_, err := ParseObservation(json.RawMessage(tc.raw), tc.dim)
		if err != ErrInvalidObservation {
			t.Fatalf("%s: expected ErrInvalidObservation, got %v", tc.name, err)
		}
	}
}

func TestResponseWireShapes(t *testing.T) {
	raw, err := json.Marshal(actionResponse(2))
	if err != nil {
		t.Fatalf("marshal action: %v", err)
	}
	if string(raw) != `{"action":2}` {
		t.Fatalf("unexpected action response: %s", raw)
	}

	raw, _ = json.Marshal(resetResponse())
	if string(raw) != `{"status":"reset"}` {
		t.Fatalf("unexpected reset response: %s", raw)
	}

	raw, _ = json.Marshal(errorResponse(ErrInvalidJSON))
	if string(raw) != `{"error":"invalid_json"}` {
		t.Fatalf("unexpected error response: %s", raw)
	}

	// 动作 0 也必须在线上出现，omitempty 不能吞掉它
	raw, _ = json.Marshal(actionResponse(0))
	if string(raw) != `{"action":0}` {
		t.Fatalf("zero action dropped from wire: %s", raw)
	}
}
