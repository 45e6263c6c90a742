package lifx

import (
	"errors"
	"fmt"
)

var (
	ErrShortPacket  = errors.New("short packet")
	ErrBadLength    = errors.New("bad length")
	ErrBadPayload   = errors.New("bad payload length")
	ErrUnknownType  = errors.New("unknown packet type")
	ErrOutOfRange   = errors.New("value out of range")
	ErrBadHexString = errors.New("bad hex string")
)

// DecodeError 入站报文解析失败（截断、长度不符、载荷长度不符）
// 引擎只记录并丢弃，不向上传播
type DecodeError struct {
	Type uint16 // 已知时为报文类型，否则为 0
	Len  int    // 原始报文长度
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type != 0 {
		return fmt.Sprintf("decode packet type=%d len=%d: %v", e.Type, e.Len, e.Err)
	}
	return fmt.Sprintf("decode packet len=%d: %v", e.Len, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError 出站报文构造失败：未知类型或字段越界，属于调用方错误
type EncodeError struct {
	Type  string
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("encode %s.%s: %v", e.Type, e.Field, e.Err)
	}
	return fmt.Sprintf("encode %s: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func rangeError(typ, field string, format string, args ...interface{}) error {
	return &EncodeError{Type: typ, Field: field, Err: fmt.Errorf("%w: "+format, append([]interface{}{ErrOutOfRange}, args...)...)}
}
