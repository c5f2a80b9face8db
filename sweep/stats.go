package sweep

import (
	"math"
	"sort"
)

// Series 单个指标的描述统计
type Series struct {
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	Stddev float64 // 样本标准差（n-1），n<2 时为 0
}

// Summary APY 三个序列在成功记录上的统计
type Summary struct {
	Total int // 含失败记录
	OK    int
	Vault Series
	Hold  Series
	Diff  Series
}

// Summarize computes descriptive statistics over the ok records.
// Failed runs count toward Total but contribute no numbers.
func Summarize(results []Result) Summary {
	var vault, hold, diff []float64
	for _, r := range results {
		if !r.OK {
			continue
		}
		vault = append(vault, r.APY.Vault)
		hold = append(hold, r.APY.Hold)
		diff = append(diff, r.APY.Diff)
	}
	return Summary{
		Total: len(results),
		OK:    len(vault),
		Vault: Describe(vault),
		Hold:  Describe(hold),
		Diff:  Describe(diff),
	}
}

// Describe 对一列数值做描述统计；空列返回零值
func Describe(values []float64) Series {
	if len(values) == 0 {
		return Series{}
	}
	s := Series{Count: len(values), Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(values))

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		s.Median = sorted[mid]
	} else {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	}

	if len(values) > 1 {
		var ss float64
		for _, v := range values {
			d := v - s.Mean
			ss += d * d
		}
		s.Stddev = math.Sqrt(ss / float64(len(values)-1))
	}
	return s
}

// Comparison 同一参数组合在基线/候选两次跑批之间的配对变化
type Comparison struct {
	Key       string
	Charm     CharmParams
	DLV       DLVParams
	Baseline  APY
	Candidate APY

	VaultChange    float64
	HoldChange     float64
	DiffChange     float64
	AbsVaultChange float64
	AbsDiffChange  float64
}

// ComparePaired matches ok records by key across two sweeps and
// returns the per-combination APY changes, sorted by key. Records
// missing from either side, and failed runs, are dropped. Duplicate
// keys keep the last record, matching the file's append semantics.
func ComparePaired(baseline, candidate []Result) []Comparison {
	base := okByKey(baseline)
	cand := okByKey(candidate)

	keys := make([]string, 0, len(cand))
	for key := range cand {
		if _, ok := base[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]Comparison, 0, len(keys))
	for _, key := range keys {
		b, c := base[key], cand[key]
		cmp := Comparison{
			Key:         key,
			Charm:       b.Charm,
			DLV:         b.DLV,
			Baseline:    b.APY,
			Candidate:   c.APY,
			VaultChange: c.APY.Vault - b.APY.Vault,
			HoldChange:  c.APY.Hold - b.APY.Hold,
			DiffChange:  c.APY.Diff - b.APY.Diff,
		}
		cmp.AbsVaultChange = math.Abs(cmp.VaultChange)
		cmp.AbsDiffChange = math.Abs(cmp.DiffChange)
		out = append(out, cmp)
	}
	return out
}

func okByKey(results []Result) map[string]Result {
	byKey := make(map[string]Result, len(results))
	for _, r := range results {
		if r.OK {
			byKey[r.Key] = r
		}
	}
	return byKey
}
