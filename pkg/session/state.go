package session

import "fmt"

// State 会话状态
// 每次查询都会创建一个全新的会话，状态机只能沿允许的路径前进，
// 任何失败都会落入 StateFailed，资源释放统一在 Close 中完成
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingLoginPrompt
	StateAwaitingPasswordPrompt
	StateAuthenticated
	StateAwaitingCommandPrompt
	StateClosed
	StateFailed
)

// String 状态名称
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingLoginPrompt:
		return "awaiting_login_prompt"
	case StateAwaitingPasswordPrompt:
		return "awaiting_password_prompt"
	case StateAuthenticated:
		return "authenticated"
	case StateAwaitingCommandPrompt:
		return "awaiting_command_prompt"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions 允许的状态迁移表
// 任意非终态都可以进入 StateFailed 与 StateClosed，因此不在表中列出
var transitions = map[State][]State{
	StateDisconnected:           {StateConnecting},
	StateConnecting:             {StateAwaitingLoginPrompt, StateAuthenticated},
	StateAwaitingLoginPrompt:    {StateAwaitingPasswordPrompt},
	StateAwaitingPasswordPrompt: {StateAuthenticated},
	StateAuthenticated:          {StateAwaitingCommandPrompt},
	StateAwaitingCommandPrompt:  {StateAuthenticated},
}

// Transition 校验并返回迁移后的状态
// 终态（StateClosed/StateFailed）不允许再迁出
func Transition(from, to State) (State, error) {
	if to == StateFailed || to == StateClosed {
		if from == StateClosed && to == StateFailed {
			return from, fmt.Errorf("invalid session transition: %s -> %s", from, to)
		}
		return to, nil
	}
	if from == StateFailed || from == StateClosed {
		return from, fmt.Errorf("invalid session transition: %s -> %s", from, to)
	}
	for _, next := range transitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("invalid session transition: %s -> %s", from, to)
}
