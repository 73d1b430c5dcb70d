package session

import (
	"errors"
	"fmt"
)

// ErrorKind 传输错误分类
// 上层据此区分"输入错误/服务器不可达/服务器过慢"，不做任何自动重试
type ErrorKind int

const (
	KindConnectTimeout ErrorKind = iota
	KindConnectRefused
	KindLoginPromptTimeout
	KindResponseTimeout
	KindResponseTooLarge
	KindConnectionReset
)

// String 错误分类名称
func (k ErrorKind) String() string {
	switch k {
	case KindConnectTimeout:
		return "connect_timeout"
	case KindConnectRefused:
		return "connect_refused"
	case KindLoginPromptTimeout:
		return "login_prompt_timeout"
	case KindResponseTimeout:
		return "response_timeout"
	case KindResponseTooLarge:
		return "response_too_large"
	case KindConnectionReset:
		return "connection_reset"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error 传输错误
type Error struct {
	Kind ErrorKind
	Addr string
	Err  error
}

// Error 错误文案
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s: %s: %v", e.Addr, e.Kind, e.Err)
	}
	return fmt.Sprintf("session %s: %s", e.Addr, e.Kind)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 创建传输错误
func NewError(kind ErrorKind, addr string, err error) *Error {
	return &Error{Kind: kind, Addr: addr, Err: err}
}

// KindOf 提取错误分类
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsTimeout 是否超时类错误（连接、登录提示或响应超时）
func IsTimeout(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindConnectTimeout || kind == KindLoginPromptTimeout || kind == KindResponseTimeout
}
