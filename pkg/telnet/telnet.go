package telnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bgplgpro/bgplgpro/internal/util"
	"github.com/bgplgpro/bgplgpro/pkg/session"
)

// Config telnet读取配置
type Config struct {
	// ChunkSize 单次读取的块大小
	ChunkSize int
	// MaxResponseBytes 响应累计上限，公共路由服务器属于不受信的第三方服务，
	// 全表输出可能非常大，超过上限即判定 ResponseTooLarge
	MaxResponseBytes int
	// LoginPrompts 登录名提示符候选子串
	LoginPrompts []string
	// PasswordPrompts 密码提示符候选子串
	PasswordPrompts []string
}

const (
	defaultChunkSize        = 4096
	defaultMaxResponseBytes = 4 << 20
)

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = defaultMaxResponseBytes
	}
	if len(c.LoginPrompts) == 0 {
		c.LoginPrompts = []string{"Username:", "username:", "login:", "Login:"}
	}
	if len(c.PasswordPrompts) == 0 {
		c.PasswordPrompts = []string{"Password:", "password:"}
	}
	return c
}

// ConnectionInfo telnet连接信息
type ConnectionInfo struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Username string        `json:"username"`
	Password string        `json:"password"`
	Prompt   string        `json:"prompt"`
	Timeout  time.Duration `json:"timeout"`
}

// Session 一次查询独占的telnet会话
// 连接、可选登录、单条命令、读取到提示符重现、关闭，整个生命周期只服务一次查询
type Session struct {
	cfg    Config
	info   ConnectionInfo
	mutex  sync.Mutex
	conn   net.Conn
	state  session.State
	filter iacFilter
}

// NewSession 创建telnet会话
func NewSession(cfg Config, info ConnectionInfo) *Session {
	return &Session{
		cfg:   cfg.withDefaults(),
		info:  info,
		state: session.StateDisconnected,
	}
}

// State 当前状态
func (s *Session) State() session.State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

func (s *Session) addr() string {
	return fmt.Sprintf("%s:%d", s.info.Host, s.info.Port)
}

func (s *Session) transition(to session.State) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	next, err := session.Transition(s.state, to)
	s.state = next
	return err
}

// fail 进入失败终态并尽力释放连接
func (s *Session) fail(kind session.ErrorKind, err error) error {
	s.mutex.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = session.StateFailed
	s.mutex.Unlock()
	return session.NewError(kind, s.addr(), err)
}

// Open 建立连接并完成可选的登录握手
// 带凭据时依次等待登录名与密码提示；无凭据时只消费横幅直到提示符出现
func (s *Session) Open(ctx context.Context) error {
	if err := s.transition(session.StateConnecting); err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: s.info.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		kind := session.KindConnectRefused
		if isTimeoutErr(err) {
			kind = session.KindConnectTimeout
		}
		return s.fail(kind, err)
	}
	s.mutex.Lock()
	s.conn = conn
	s.mutex.Unlock()

	deadline := s.deadline(ctx)

	if s.info.Username != "" {
		if err := s.transition(session.StateAwaitingLoginPrompt); err != nil {
			return err
		}
		if _, err := s.readUntilAny(ctx, deadline, s.cfg.LoginPrompts, "", session.KindLoginPromptTimeout); err != nil {
			return err
		}
		if err := s.writeLine(s.info.Username, deadline); err != nil {
			return err
		}
		if err := s.transition(session.StateAwaitingPasswordPrompt); err != nil {
			return err
		}
		if _, err := s.readUntilAny(ctx, deadline, s.cfg.PasswordPrompts, "", session.KindLoginPromptTimeout); err != nil {
			return err
		}
		if err := s.writeLine(s.info.Password, deadline); err != nil {
			return err
		}
	}

	// 读取横幅/登录应答直到命令提示符出现，确认会话就绪
	if _, err := s.readUntilAny(ctx, deadline, []string{s.info.Prompt}, "", session.KindLoginPromptTimeout); err != nil {
		return err
	}
	return s.transition(session.StateAuthenticated)
}

// Run 发送命令并读取到提示符重现为止
// 超时时丢弃已累计的部分输出：不完整的抓取可能被误读成"无路由"
func (s *Session) Run(ctx context.Context, command string) (string, error) {
	if st := s.State(); st != session.StateAuthenticated {
		return "", fmt.Errorf("telnet session not ready: state=%s", st)
	}
	if err := s.transition(session.StateAwaitingCommandPrompt); err != nil {
		return "", err
	}

	deadline := s.deadline(ctx)
	if err := s.writeLine(command, deadline); err != nil {
		return "", err
	}

	raw, err := s.readUntilAny(ctx, deadline, []string{s.info.Prompt}, command, session.KindResponseTimeout)
	if err != nil {
		return "", err
	}
	if err := s.transition(session.StateAuthenticated); err != nil {
		return "", err
	}
	return session.CleanOutput(util.EnsureUTF8(raw), command, s.info.Prompt), nil
}

// Close 尽力关闭连接；失败终态保持不变，其余状态进入 Closed
// 关闭底层连接会解除任何阻塞中的读取
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	if s.state != session.StateFailed {
		s.state = session.StateClosed
	}
	return err
}

// deadline 以配置超时为上限，若调用方的 ctx 截止更早则取更早者
func (s *Session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.info.Timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

// writeLine 发送一行（CRLF 结尾，兼容网络设备终端）
func (s *Session) writeLine(line string, deadline time.Time) error {
	s.mutex.Lock()
	conn := s.conn
	s.mutex.Unlock()
	if conn == nil {
		return s.fail(session.KindConnectionReset, errors.New("connection not established"))
	}
	_ = conn.SetWriteDeadline(deadline)
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		return s.fail(session.KindConnectionReset, err)
	}
	return nil
}

// readUntilAny 分块读取直到任一标记出现或截止时间到达
// command 非空时表示正在等待命令响应：标记只在回显之后查找，
// 且在出现首个换行之前不判定，避免把回显里的字符当成提示符
func (s *Session) readUntilAny(ctx context.Context, deadline time.Time, markers []string, command string, timeoutKind session.ErrorKind) (string, error) {
	s.mutex.Lock()
	conn := s.conn
	s.mutex.Unlock()
	if conn == nil {
		return "", s.fail(session.KindConnectionReset, errors.New("connection not established"))
	}

	buf := make([]byte, 0, s.cfg.ChunkSize)
	chunk := make([]byte, s.cfg.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", s.fail(timeoutKind, err)
		}
		_ = conn.SetReadDeadline(deadline)
		n, err := conn.Read(chunk)
		if n > 0 {
			data, reply := s.filter.filter(chunk[:n])
			if len(reply) > 0 {
				// 拒绝协商，应答写失败不致命；写同样受截止时间约束
				_ = conn.SetWriteDeadline(deadline)
				_, _ = conn.Write(reply)
			}
			buf = append(buf, data...)
			if len(buf) > s.cfg.MaxResponseBytes {
				return "", s.fail(session.KindResponseTooLarge, fmt.Errorf("response exceeds %d bytes", s.cfg.MaxResponseBytes))
			}
			if idx := s.markerIndex(buf, markers, command); idx >= 0 {
				return string(buf), nil
			}
		}
		if err != nil {
			switch {
			case isTimeoutErr(err):
				return "", s.fail(timeoutKind, err)
			case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, net.ErrClosed):
				return "", s.fail(session.KindConnectionReset, err)
			default:
				return "", s.fail(session.KindConnectionReset, err)
			}
		}
	}
}

func (s *Session) markerIndex(buf []byte, markers []string, command string) int {
	from := 0
	if command != "" {
		// 命令响应：提示符必须在回显之后重现
		if !bytes.ContainsRune(buf, '\n') {
			return -1
		}
		from = session.EchoEnd(buf, command)
	}
	for _, m := range markers {
		if m == "" {
			continue
		}
		if idx := session.MarkerIndex(buf, m, from); idx >= 0 {
			return idx
		}
	}
	return -1
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
