// Package agent 实现决策会话与其行式 JSON 协议：
// 每行一条命令（reset / infer），每条命令恰好一行回复。
package agent

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// CommandType 协议命令的判别结果
type CommandType byte

const (
	// CommandInvalid 整行不是合法 JSON
	CommandInvalid CommandType = 0
	// CommandReset 丢弃记忆，回到初始状态
	CommandReset CommandType = 1
	// CommandInfer 一次观测换一个动作
	CommandInfer CommandType = 2
	// CommandUnknown 合法 JSON，但不是已知命令
	CommandUnknown CommandType = 3
)

// CommandDictionary 命令类型到可读名的映射
var CommandDictionary = map[CommandType]string{
	CommandInvalid: "INVALID",
	CommandReset:   "RESET",
	CommandInfer:   "INFER",
	CommandUnknown: "UNKNOWN",
}

// Command is one classified protocol line. Obs stays raw here;
// observation validation happens against the session's agent.
type Command struct {
	Type CommandType
	Obs  json.RawMessage
}

// ParseLine classifies one non-blank input line. It never fails:
// malformed input maps onto CommandInvalid or CommandUnknown and the
// dispatcher answers those with the matching protocol error.
func ParseLine(line []byte) Command {
	var payload struct {
		Type *string         `json:"type"`
		Obs  json.RawMessage `json:"obs"`
	}
	if err := json.Unmarshal(line, &payload); err != nil {
		if json.Valid(line) {
			// 合法 JSON 但装不进命令形状（数组、裸标量、type 非字符串）
			return Command{Type: CommandUnknown}
		}
		return Command{Type: CommandInvalid}
	}
	if payload.Type == nil {
		return Command{Type: CommandUnknown}
	}
	switch *payload.Type {
	case "reset":
		return Command{Type: CommandReset}
	case "infer":
		return Command{Type: CommandInfer, Obs: payload.Obs}
	default:
		return Command{Type: CommandUnknown}
	}
}

// ParseObservation validates the raw obs payload against the agent's
// declared dimensionality. Elements may be JSON numbers, numeric
// strings, or booleans (true=1, false=0). Non-finite values pass:
// range handling belongs to the evaluator. The check runs before any
// evaluator call, so a rejected observation never touches memory.
func ParseObservation(raw json.RawMessage, dim int) ([]float64, error) {
	if len(raw) == 0 {
		return nil, ErrInvalidObservation
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, ErrInvalidObservation
	}
	if len(elems) != dim {
		return nil, ErrInvalidObservation
	}
	obs := make([]float64, dim)
	for i, elem := range elems {
		v, ok := toNumber(elem)
		if !ok {
			return nil, ErrInvalidObservation
		}
		obs[i] = v
	}
	return obs, nil
}

func toNumber(raw json.RawMessage) (float64, bool) {
	// null 能无损解进 float64，这里要显式挡掉
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Response is one protocol reply line. Exactly one field is ever set.
type Response struct {
	Action *int   `json:"action,omitempty"`
	Status string `json:"status,omitempty"`
	Err    string `json:"error,omitempty"`
}

func actionResponse(action int) Response {
	return Response{Action: &action}
}

func resetResponse() Response {
	return Response{Status: "reset"}
}

func errorResponse(err error) Response {
	return Response{Err: err.Error()}
}
