package policy

import "math"

// 杠杆规则引擎的观测布局（10 维，调用方已归一化到 [0,1]）
const (
	obsLeverage      = 0 // 归一化杠杆
	obsCoverage      = 1 // 归一化质押覆盖率
	obsLeverageMean  = 2 // 杠杆滑窗均值
	obsLeverageSlope = 3 // 杠杆斜率，0.5 为零点
	obsVolRatio      = 4 // 波动率比值
	obsVolMean       = 5 // 波动率滑窗均值
	obsVolSlope      = 6 // 波动率斜率，0.5 为零点
	obsCalm          = 7 // 平静占比
	obsCalmMean      = 8 // 平静占比滑窗均值
	obsCalmSlope     = 9 // 平静占比斜率，0.5 为零点
)

// Rulebook 的接口维度是协议常量
const (
	RulebookObsDim      = 10
	RulebookActionCount = 4
)

// 归一化杠杆 0..1 对应的实际杠杆带宽 [1.8, 2.2]
const (
	leverageBottom = 1.8
	leverageTop    = 2.2
	leverageRange  = leverageTop - leverageBottom
)

// Rulebook decides leverage adjustments from hand-written thresholds,
// matched top to bottom with first hit winning. It carries no trained
// weights; the only state is the previously emitted action, kept in
// the session memory and consulted by the final fallback rule.
type Rulebook struct{}

// NewRulebook returns the shared stateless engine. All per-session
// state lives in the Memory values it hands back.
func NewRulebook() *Rulebook { return &Rulebook{} }

func (rb *Rulebook) ObsDim() int { return RulebookObsDim }

func (rb *Rulebook) ActionCount() int { return RulebookActionCount }

// InitialMemory 上一动作默认 HOLD
func (rb *Rulebook) InitialMemory() Memory { return LastAction{Action: ActionHold} }

// Evaluate 依序匹配规则表，首条命中即定案。所有输入先截断到合法区间，
// 任何 10 维观测都能得到动作，不会失败。
func (rb *Rulebook) Evaluate(obs []float64, mem Memory) (Decision, error) {
	if len(obs) != RulebookObsDim {
		return Decision{}, evalErrorf("observation length %d, want %d", len(obs), RulebookObsDim)
	}

	leverage := clamp01(obs[obsLeverage])
	coverage := clamp01(obs[obsCoverage])
	leverageMean := clamp01(obs[obsLeverageMean])
	volRatio := clamp01(obs[obsVolRatio])
	volMean := clamp01(obs[obsVolMean])
	calm := clamp01(obs[obsCalm])
	calmMean := clamp01(obs[obsCalmMean])

	leverageSlope := zeroCenter(obs[obsLeverageSlope])
	volSlope := zeroCenter(obs[obsVolSlope])
	calmSlope := zeroCenter(obs[obsCalmSlope])

	last := ActionHold
	if la, ok := mem.(LastAction); ok {
		last = la.Action
	}

	// 加减杠杆两个方向各汇总一个压力分
	increasePressure := (0.35-leverage)*2.0 +
		(coverage-0.55)*1.5 +
		(calm-calmMean)*0.8 -
		math.Abs(volSlope)*0.6 -
		math.Abs(calmSlope)*0.4
	decreasePressure := (leverage-0.65)*2.0 +
		(0.45-coverage)*1.7 +
		(volRatio-volMean)*0.9 +
		math.Max(0, leverageSlope)*0.8 +
		math.Max(0, volSlope)*0.6

	gapAbs := math.Abs(leverageMean - leverage)
	calmDelta := math.Abs(calm - calmMean)
	leverageActual := leverageBottom + leverage*leverageRange

	var action int
	switch {
	// 覆盖充足且市场平静：加杠杆
	case coverage > 0.65 && volRatio < 0.9:
		action = ActionRaise
	// 覆盖吃紧或波动飙升：减杠杆
	case coverage < 0.48 || volRatio > 0.95:
		action = ActionLower
	// 杠杆或波动在快速上行：先降
	case leverageSlope > 0.12 || volSlope > 0.12:
		action = ActionLower
	// 双双回落：可以加
	case leverageSlope < -0.12 || volSlope < -0.12:
		action = ActionRaise
	// 各项都贴着均值走：按兵不动
	case gapAbs < 0.02 && calmDelta < 0.03 && math.Abs(volRatio-volMean) < 0.03:
		action = ActionHold
	// 贴近带宽下沿且覆盖尚可：往回加
	case leverageActual < leverageBottom+0.1 && coverage >= 0.52:
		action = ActionRaise
	// 贴近带宽上沿或覆盖过低：往回减
	case leverageActual > leverageTop-0.1 || coverage <= 0.42:
		action = ActionLower
	// 压力分定向，且反向压力不高
	case increasePressure > 0.4 && decreasePressure < 0.2:
		action = ActionRaise
	case decreasePressure > 0.3 && increasePressure < 0.25:
		action = ActionLower
	default:
		// 兜底：斜率足够平缓时沿用上一动作（滞回），
		// 否则无条件回到 HOLD，与上一动作无关。
		if math.Abs(leverageSlope) < 0.05 && math.Abs(volSlope) < 0.05 {
			action = last
		} else {
			action = ActionHold
		}
	}

	return Decision{Action: action, Memory: LastAction{Action: action}}, nil
}

// clamp01 压到 [0,1]，非有限值归零
func clamp01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// zeroCenter 把 0..1 编码的斜率还原到 [-1,1]，0.5 为零点
func zeroCenter(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	v = (v - 0.5) * 2
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
