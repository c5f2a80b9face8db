package policy

import (
	"fmt"

	"vaultpilot/tensor"
	"vaultpilot/weights"
)

// slot 把 bundle 里的命名张量绑定到网络参数的目标切片
type slot struct {
	name  string
	shape []int
	dst   []float32
}

func matSlot(name string, m *tensor.Matrix) slot {
	return slot{name: name, shape: []int{m.Rows, m.Cols}, dst: m.Data}
}

func vecSlot(name string, v tensor.Vector) slot {
	return slot{name: name, shape: []int{len(v)}, dst: v}
}

// loadSlots copies named tensors into their parameter slots. A tensor
// absent from the bundle leaves its slot zeroed and is reported as
// missing; a bundle tensor no slot claims is reported as unexpected.
// A shape mismatch on a known name aborts construction outright.
func loadSlots(bundle *weights.Bundle, slots []slot) (*weights.LoadReport, error) {
	report := &weights.LoadReport{}
	known := make(map[string]bool, len(slots))
	for _, s := range slots {
		known[s.name] = true
		if bundle == nil {
			report.Missing = append(report.Missing, s.name)
			continue
		}
		t, ok := bundle.Tensor(s.name)
		if !ok {
			report.Missing = append(report.Missing, s.name)
			continue
		}
		if !shapeEqual(t.Shape, s.shape) {
			return nil, fmt.Errorf("tensor %s: bundle shape %v, network wants %v", s.name, t.Shape, s.shape)
		}
		copy(s.dst, t.Data)
		report.Loaded++
	}
	if bundle == nil {
		return report, nil
	}
	for _, name := range bundle.Names() {
		if !known[name] {
			report.Unexpected = append(report.Unexpected, name)
		}
	}
	return report, nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
