package tensor

import "math"

// 激活函数。全部原地修改并返回同一切片。

func ReLU(v Vector) Vector {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
	return v
}

// GELU 精确形式 x·0.5·(1+erf(x/√2))，不用 tanh 近似
func GELU(v Vector) Vector {
	for i, x := range v {
		f := float64(x)
		v[i] = float32(f * 0.5 * (1 + math.Erf(f/math.Sqrt2)))
	}
	return v
}

func Sigmoid(v Vector) Vector {
	for i, x := range v {
		v[i] = float32(1 / (1 + math.Exp(-float64(x))))
	}
	return v
}

func Tanh(v Vector) Vector {
	for i, x := range v {
		v[i] = float32(math.Tanh(float64(x)))
	}
	return v
}
