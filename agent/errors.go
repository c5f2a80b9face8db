package agent

import "errors"

// 协议错误码。Error() 文本就是响应 error 字段的线上字面量，不可改动。
var (
	ErrInvalidJSON        = errors.New("invalid_json")
	ErrUnknownCommand     = errors.New("unknown_command")
	ErrInvalidObservation = errors.New("invalid_observation")
)
