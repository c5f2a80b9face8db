package policy

import "fmt"

// EvalError 评估器内部失败：形状不匹配、数值发散等。
// 错误文本会原样写进协议响应的 error 字段。
type EvalError string

func (e EvalError) Error() string { return string(e) }

func evalErrorf(format string, args ...any) error {
	return EvalError(fmt.Sprintf(format, args...))
}
