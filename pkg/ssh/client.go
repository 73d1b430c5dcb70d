package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/bgplgpro/bgplgpro/internal/util"
	"github.com/bgplgpro/bgplgpro/pkg/session"
)

// Config SSH读取配置
type Config struct {
	ChunkSize        int
	MaxResponseBytes int
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
	return c
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Username string        `json:"username"`
	Password string        `json:"password"`
	Prompt   string        `json:"prompt"`
	Timeout  time.Duration `json:"timeout"`
}

// Client 一次查询独占的SSH会话
// 登录由SSH握手完成，之后的提示符与回显处理与telnet会话相同纪律：
// 建立PTY shell、等横幅提示符、发一条命令、读到提示符重现、关闭
type Client struct {
	cfg   Config
	info  ConnectionInfo
	mutex sync.Mutex
	conn  *ssh.Client
	sess  *ssh.Session
	stdin io.WriteCloser
	state session.State

	dataCh chan []byte
	errCh  chan error
	done   chan struct{}
}

// NewClient 创建SSH会话
func NewClient(cfg Config, info ConnectionInfo) *Client {
	return &Client{
		cfg:    cfg.withDefaults(),
		info:   info,
		state:  session.StateDisconnected,
		dataCh: make(chan []byte, 64),
		errCh:  make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// State 当前状态
func (c *Client) State() session.State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

func (c *Client) addr() string {
	return fmt.Sprintf("%s:%d", c.info.Host, c.info.Port)
}

func (c *Client) transition(to session.State) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	next, err := session.Transition(c.state, to)
	c.state = next
	return err
}

func (c *Client) fail(kind session.ErrorKind, err error) error {
	c.closeConn()
	c.mutex.Lock()
	c.state = session.StateFailed
	c.mutex.Unlock()
	return session.NewError(kind, c.addr(), err)
}

// clientConfig 兼容老旧路由器固件的算法集
func (c *Client) clientConfig() *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            c.info.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.info.Timeout,
		Config: ssh.Config{
			KeyExchanges: []string{
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
				"diffie-hellman-group-exchange-sha256",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
			},
			Ciphers: []string{
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"aes128-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"ssh-rsa",
			"rsa-sha2-256",
			"rsa-sha2-512",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
			"ssh-ed25519",
		},
	}
	if c.info.Password != "" {
		cfg.Auth = []ssh.AuthMethod{
			ssh.Password(c.info.Password),
			// 部分设备只开keyboard-interactive，所有问题统一用密码应答
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = c.info.Password
				}
				return answers, nil
			}),
		}
	}
	return cfg
}

// Open 建立SSH连接、PTY shell，并等待横幅后的命令提示符
func (c *Client) Open(ctx context.Context) error {
	if err := c.transition(session.StateConnecting); err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: c.info.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		kind := session.KindConnectRefused
		if isTimeoutErr(err) {
			kind = session.KindConnectTimeout
		}
		return c.fail(kind, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(raw, c.addr(), c.clientConfig())
	if err != nil {
		_ = raw.Close()
		return c.fail(session.KindConnectRefused, err)
	}
	conn := ssh.NewClient(sshConn, chans, reqs)

	sess, err := conn.NewSession()
	if err != nil {
		_ = conn.Close()
		return c.fail(session.KindConnectionReset, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "dumb"} {
		if ptyErr = sess.RequestPty(term, 80, 24, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		_ = sess.Close()
		_ = conn.Close()
		return c.fail(session.KindConnectionReset, fmt.Errorf("request pty: %w", ptyErr))
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		_ = conn.Close()
		return c.fail(session.KindConnectionReset, err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		_ = conn.Close()
		return c.fail(session.KindConnectionReset, err)
	}
	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		_ = conn.Close()
		return c.fail(session.KindConnectionReset, fmt.Errorf("start shell: %w", err))
	}

	c.mutex.Lock()
	c.conn = conn
	c.sess = sess
	c.stdin = stdin
	c.mutex.Unlock()

	go c.readLoop(stdout)

	// SSH握手已完成认证，这里只需等待横幅结束后的提示符
	if _, err := c.collect(ctx, []string{c.info.Prompt}, "", session.KindLoginPromptTimeout); err != nil {
		return err
	}
	return c.transition(session.StateAuthenticated)
}

// readLoop 后台读取stdout并按块投递，会话关闭后退出
func (c *Client) readLoop(r io.Reader) {
	buf := make([]byte, c.cfg.ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.dataCh <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			select {
			case c.errCh <- err:
			case <-c.done:
			}
			return
		}
	}
}

// Run 发送命令并读取到提示符重现为止
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	if st := c.State(); st != session.StateAuthenticated {
		return "", fmt.Errorf("ssh session not ready: state=%s", st)
	}
	if err := c.transition(session.StateAwaitingCommandPrompt); err != nil {
		return "", err
	}

	c.mutex.Lock()
	stdin := c.stdin
	c.mutex.Unlock()
	if stdin == nil {
		return "", c.fail(session.KindConnectionReset, errors.New("connection not established"))
	}
	if _, err := stdin.Write([]byte(command + "\r\n")); err != nil {
		return "", c.fail(session.KindConnectionReset, err)
	}

	raw, err := c.collect(ctx, []string{c.info.Prompt}, command, session.KindResponseTimeout)
	if err != nil {
		return "", err
	}
	if err := c.transition(session.StateAuthenticated); err != nil {
		return "", err
	}
	return session.CleanOutput(util.EnsureUTF8(raw), command, c.info.Prompt), nil
}

// collect 从读取通道累计数据直到提示符出现或超时
// 超时丢弃部分输出，与telnet会话相同的完整性纪律
func (c *Client) collect(ctx context.Context, markers []string, command string, timeoutKind session.ErrorKind) (string, error) {
	timer := time.NewTimer(c.info.Timeout)
	defer timer.Stop()

	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return "", c.fail(timeoutKind, ctx.Err())
		case <-timer.C:
			return "", c.fail(timeoutKind, fmt.Errorf("no prompt within %s", c.info.Timeout))
		case err := <-c.errCh:
			return "", c.fail(session.KindConnectionReset, err)
		case chunk := <-c.dataCh:
			buf = append(buf, chunk...)
			if len(buf) > c.cfg.MaxResponseBytes {
				return "", c.fail(session.KindResponseTooLarge, fmt.Errorf("response exceeds %d bytes", c.cfg.MaxResponseBytes))
			}
			if idx := markerIndex(buf, markers, command); idx >= 0 {
				return string(buf), nil
			}
		}
	}
}

func markerIndex(buf []byte, markers []string, command string) int {
	from := 0
	if command != "" {
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

// Close 尽力关闭shell与底层连接
func (c *Client) Close() error {
	err := c.closeConn()
	c.mutex.Lock()
	if c.state != session.StateFailed {
		c.state = session.StateClosed
	}
	c.mutex.Unlock()
	return err
}

func (c *Client) closeConn() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	var err error
	if c.stdin != nil {
		_ = c.stdin.Close()
		c.stdin = nil
	}
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
