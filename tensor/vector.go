package tensor

import "math"

// Vector 一维 float32 张量
type Vector []float32

// NewVector 返回全零向量
func NewVector(n int) Vector {
	return make(Vector, n)
}

// AddInPlace v += o，长度必须一致
func (v Vector) AddInPlace(o Vector) Vector {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

// IsFinite 所有元素均为有限值时为真
func (v Vector) IsFinite() bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ArgMax 返回最大元素下标；并列时取最小下标，空向量返回 -1
func ArgMax(v Vector) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
