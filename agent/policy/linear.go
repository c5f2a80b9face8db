package policy

import "vaultpilot/tensor"

// linear 全连接层 y = W·x + b
type linear struct {
	w *tensor.Matrix
	b tensor.Vector
}

func newLinear(out, in int) linear {
	return linear{w: tensor.Zeros(out, in), b: tensor.NewVector(out)}
}

func (l linear) apply(x tensor.Vector) (tensor.Vector, error) {
	y, err := l.w.MulVec(x)
	if err != nil {
		return nil, err
	}
	return y.AddInPlace(l.b), nil
}

// narrow 观测从协议侧的 float64 收窄为网络侧的 float32
func narrow(obs []float64) tensor.Vector {
	v := make(tensor.Vector, len(obs))
	for i, x := range obs {
		v[i] = float32(x)
	}
	return v
}
