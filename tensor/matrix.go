package tensor

import "fmt"

// Matrix 行主序矩阵 (Rows x Cols)
type Matrix struct {
	Rows int
	Cols int
	Data []float32 // len == Rows*Cols
}

// NewMatrix 校验元素个数后构造；data 不复制
func NewMatrix(rows, cols int, data []float32) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("matrix shape %dx%d invalid", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("matrix data length %d, want %d", len(data), rows*cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// Zeros 全零矩阵
func Zeros(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// MulVec y = M·x，x 长度必须等于 Cols
func (m *Matrix) MulVec(x Vector) (Vector, error) {
	if len(x) != m.Cols {
		return nil, fmt.Errorf("mulvec: input length %d, want %d", len(x), m.Cols)
	}
	y := make(Vector, m.Rows)
	for r := 0; r < m.Rows; r++ {
		base := r * m.Cols
		var sum float32
		for c := 0; c < m.Cols; c++ {
			sum += m.Data[base+c] * x[c]
		}
		y[r] = sum
	}
	return y, nil
}
