// Package policy 决策策略的三种实现：前馈网络、循环网络、规则引擎。
// 三者共用同一套评估接口，由会话层负责记忆的生命周期。
package policy

import "vaultpilot/tensor"

// 杠杆代理的动作空间。动作编号是线上协议的一部分，不可改动。
const (
	ActionIdle  = 0 // 预留，当前策略不会输出
	ActionHold  = 1 // 维持当前杠杆
	ActionRaise = 2 // 提升杠杆
	ActionLower = 3 // 降低杠杆
)

// ActionDictionary 动作编号到可读名的映射，日志与审计用
var ActionDictionary = map[int]string{
	ActionIdle:  "IDLE",
	ActionHold:  "HOLD",
	ActionRaise: "RAISE",
	ActionLower: "LOWER",
}

// Memory is the state an evaluator carries between successive calls
// of one session. The concrete forms are fixed: nil for stateless
// policies, LastAction for the rulebook, *HiddenState for recurrent
// networks. Sealed so no other form can appear.
type Memory interface {
	memory()
}

// LastAction 规则引擎的记忆：上一次输出的动作。
type LastAction struct {
	Action int
}

func (LastAction) memory() {}

// HiddenState 循环网络的 (h, c) 状态对。内容只有评估器关心，
// 会话层只旁观生命周期：创建、逐轮替换、重置。
type HiddenState struct {
	H tensor.Vector
	C tensor.Vector
}

func (*HiddenState) memory() {}

// Decision is the outcome of one evaluation: the chosen action and
// the memory to carry into the next call.
type Decision struct {
	Action int
	Memory Memory
}

// Evaluator is the core interface all agent variants implement.
type Evaluator interface {
	// ObsDim returns the required observation length.
	ObsDim() int
	// ActionCount returns the size of the discrete action set.
	ActionCount() int
	// InitialMemory returns the memory a fresh session starts with.
	InitialMemory() Memory
	// Evaluate maps one observation plus carried memory to a decision.
	// Implementations never mutate the memory passed in; they return a
	// replacement instead.
	Evaluate(obs []float64, mem Memory) (Decision, error)
}
