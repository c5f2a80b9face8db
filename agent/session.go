package agent

import (
	"sync"
	"time"

	"vaultpilot/agent/policy"
)

// DecisionRecord 一次 infer 的审计记录。评估失败也记，Action 为 -1。
type DecisionRecord struct {
	Session string
	Agent   string
	Seq     uint64
	Obs     []float64
	Action  int
	Err     string
	Elapsed time.Duration
	At      time.Time
}

// ResetRecord 一次 reset 的审计记录
type ResetRecord struct {
	Session string
	Agent   string
	Seq     uint64
	At      time.Time
}

// Recorder receives session events for the audit trail. Calls happen
// under the session lock, so implementations should return quickly
// and must swallow their own storage failures. A nil Recorder
// disables recording.
type Recorder interface {
	Decision(rec DecisionRecord)
	Reset(rec ResetRecord)
}

// Session owns the lifecycle of exactly one live memory token: born
// from the evaluator's initial memory, replaced only after a
// successful infer, dropped back to initial on reset or evaluator
// failure. Rejected input — bad JSON, unknown commands, invalid
// observations — never touches it.
type Session struct {
	id    string
	agent string
	ev    policy.Evaluator
	rec   Recorder

	mu         sync.Mutex
	mem        policy.Memory
	seq        uint64
	inferences uint64
	resets     uint64
	failures   uint64
	lastAction int
}

// Snapshot 会话计数器的只读副本
type Snapshot struct {
	ID         string
	Agent      string
	Inferences uint64
	Resets     uint64
	Failures   uint64
	LastAction int // -1 表示尚未产生动作
}

// NewSession binds an evaluator instance to one protocol stream.
// The evaluator must not be shared with another session unless it is
// stateless with respect to its receiver.
func NewSession(id, agentName string, ev policy.Evaluator, rec Recorder) *Session {
	return &Session{
		id:         id,
		agent:      agentName,
		ev:         ev,
		rec:        rec,
		mem:        ev.InitialMemory(),
		lastAction: -1,
	}
}

func (s *Session) ID() string { return s.id }

// ObsDim 透出评估器的观测维度，供启动日志与调用方自检
func (s *Session) ObsDim() int { return s.ev.ObsDim() }

// Reset drops the memory token back to its initial value. Always
// succeeds; resetting a fresh session is a no-op apart from the
// counters.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = s.ev.InitialMemory()
	s.resets++
	s.seq++
	if s.rec != nil {
		s.rec.Reset(ResetRecord{Session: s.id, Agent: s.agent, Seq: s.seq, At: time.Now()})
	}
}

// Infer runs one evaluation against the carried memory. On success
// the token is replaced by the evaluator's new one; on failure the
// session recovers by dropping back to the initial token and the
// evaluator's message is surfaced as the protocol error.
func (s *Session) Infer(obs []float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	started := time.Now()
	decision, err := s.ev.Evaluate(obs, s.mem)
	elapsed := time.Since(started)

	if err != nil {
		s.mem = s.ev.InitialMemory()
		s.failures++
		if s.rec != nil {
			s.rec.Decision(DecisionRecord{
				Session: s.id, Agent: s.agent, Seq: s.seq,
				Obs: obs, Action: -1, Err: err.Error(),
				Elapsed: elapsed, At: started,
			})
		}
		return 0, err
	}

	s.mem = decision.Memory
	s.inferences++
	s.lastAction = decision.Action
	if s.rec != nil {
		s.rec.Decision(DecisionRecord{
			Session: s.id, Agent: s.agent, Seq: s.seq,
			Obs: obs, Action: decision.Action,
			Elapsed: elapsed, At: started,
		})
	}
	return decision.Action, nil
}

// Handle executes one classified command and shapes the reply.
func (s *Session) Handle(cmd Command) Response {
	switch cmd.Type {
	case CommandReset:
		s.Reset()
		return resetResponse()
	case CommandInfer:
		obs, err := ParseObservation(cmd.Obs, s.ev.ObsDim())
		if err != nil {
			return errorResponse(err)
		}
		action, err := s.Infer(obs)
		if err != nil {
			return errorResponse(err)
		}
		return actionResponse(action)
	case CommandUnknown:
		return errorResponse(ErrUnknownCommand)
	default:
		return errorResponse(ErrInvalidJSON)
	}
}

// Snapshot 拷贝当前计数器
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.id,
		Agent:      s.agent,
		Inferences: s.inferences,
		Resets:     s.resets,
		Failures:   s.failures,
		LastAction: s.lastAction,
	}
}
