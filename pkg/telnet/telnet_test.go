package telnet

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgplgpro/bgplgpro/pkg/session"
)

// startFakeServer 启动一个只接受单连接的假路由服务器
func startFakeServer(t *testing.T, script func(t *testing.T, conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(t, conn)
	}()
	return ln.Addr().String()
}

func newTestSession(addr string, username, password, prompt string, timeout time.Duration, cfg Config) *Session {
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	for _, ch := range portStr {
		port = port*10 + int(ch-'0')
	}
	return NewSession(cfg, ConnectionInfo{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Prompt:   prompt,
		Timeout:  timeout,
	})
}

// readLine 读取客户端发来的一行命令（CRLF结尾）
func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimRight(line, "\r\n")
}

// TestSessionQueryWithoutLogin 测试无凭据会话的完整查询流程
func TestSessionQueryWithoutLogin(t *testing.T) {
	const prompt = "route-views>"
	addr := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		r := bufio.NewReader(conn)
		// 横幅与首个提示符
		_, _ = conn.Write([]byte("Oregon Route Views\r\n" + prompt))
		cmd := readLine(t, r)
		// 回显 + 输出 + 提示符重现
		_, _ = conn.Write([]byte(cmd + "\r\nBGP routing table entry for 8.8.8.0/24\r\nPaths: (42 available)\r\n" + prompt))
	})

	s := newTestSession(addr, "", "", prompt, 5*time.Second, Config{})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	assert.Equal(t, session.StateAuthenticated, s.State())

	out, err := s.Run(ctx, "show ip bgp 8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "BGP routing table entry for 8.8.8.0/24\nPaths: (42 available)", out, "回显与提示符应该被剥离")
	assert.Equal(t, session.StateAuthenticated, s.State(), "命令完成后应该回到Authenticated")

	require.NoError(t, s.Close())
	assert.Equal(t, session.StateClosed, s.State())
}

// TestSessionLoginHandshake 测试带凭据的登录握手
func TestSessionLoginHandshake(t *testing.T) {
	const prompt = "rs>"
	addr := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		r := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("Username: "))
		user := readLine(t, r)
		assert.Equal(t, "rviews", user, "应该发送配置的用户名")
		_, _ = conn.Write([]byte("Password: "))
		pass := readLine(t, r)
		assert.Equal(t, "secret", pass, "应该发送配置的密码")
		_, _ = conn.Write([]byte("\r\nWelcome\r\n" + prompt))
		cmd := readLine(t, r)
		_, _ = conn.Write([]byte(cmd + "\r\nsummary output\r\n" + prompt))
	})

	s := newTestSession(addr, "rviews", "secret", prompt, 5*time.Second, Config{})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	out, err := s.Run(ctx, "show ip bgp summary")
	require.NoError(t, err)
	assert.Equal(t, "summary output", out)
}

// TestSessionPromptInsideEcho 测试回显中的提示符字符不会提前结束读取
func TestSessionPromptInsideEcho(t *testing.T) {
	const prompt = ">"
	addr := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		r := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("banner\r\n" + prompt))
		cmd := readLine(t, r)
		// 先只发回显行（含提示符字符），延迟后再发正文与真正的提示符
		_, _ = conn.Write([]byte(">" + cmd + "\r\n"))
		time.Sleep(100 * time.Millisecond)
		_, _ = conn.Write([]byte("real output line\r\n" + prompt))
	})

	s := newTestSession(addr, "", "", prompt, 5*time.Second, Config{})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	out, err := s.Run(ctx, "show ip bgp 8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "real output line", out, "回显行里的提示符字符不应该触发完成")
}

// TestSessionIACNegotiation 测试IAC协商被拒绝并从输出剥离
func TestSessionIACNegotiation(t *testing.T) {
	const prompt = "lg>"
	gotReply := make(chan []byte, 1)
	addr := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		r := bufio.NewReader(conn)
		// 横幅前插入 DO ECHO 协商
		_, _ = conn.Write([]byte{iacIAC, iacDo, 1})
		_, _ = conn.Write([]byte("banner\r\n" + prompt))
		// 客户端先回写3字节拒绝应答，再发命令行
		reply := make([]byte, 3)
		if _, err := io.ReadFull(r, reply); err == nil {
			gotReply <- reply
		}
		cmd := readLine(t, r)
		_, _ = conn.Write([]byte(cmd + "\r\noutput\r\n" + prompt))
	})

	s := newTestSession(addr, "", "", prompt, 5*time.Second, Config{})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	out, err := s.Run(ctx, "show ip bgp summary")
	require.NoError(t, err)
	assert.Equal(t, "output", out, "协商字节不应该混进输出")

	select {
	case reply := <-gotReply:
		assert.Equal(t, []byte{iacIAC, iacWont, 1}, reply, "DO ECHO 应该被 WONT ECHO 拒绝")
	case <-time.After(2 * time.Second):
		t.Fatal("没有收到协商拒绝应答")
	}
}

// TestSessionResponseTimeout 测试响应超时丢弃部分输出
func TestSessionResponseTimeout(t *testing.T) {
	const prompt = "rs>"
	addr := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		r := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("banner\r\n" + prompt))
		_ = readLine(t, r)
		// 只发部分输出，永远不发提示符
		_, _ = conn.Write([]byte("partial output without prompt\r\n"))
		time.Sleep(3 * time.Second)
	})

	s := newTestSession(addr, "", "", prompt, 500*time.Millisecond, Config{})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	out, err := s.Run(ctx, "show ip bgp 8.8.8.8")
	require.Error(t, err)
	assert.Empty(t, out, "超时必须丢弃已累计的部分输出")
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindResponseTimeout, kind)
	assert.True(t, session.IsTimeout(err))
	assert.Equal(t, session.StateFailed, s.State())
}

// TestSessionLoginPromptTimeout 测试横幅阶段超时归类
func TestSessionLoginPromptTimeout(t *testing.T) {
	const prompt = "rs>"
	addr := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		// 连接后保持沉默
		time.Sleep(3 * time.Second)
	})

	s := newTestSession(addr, "", "", prompt, 300*time.Millisecond, Config{})
	err := s.Open(context.Background())
	require.Error(t, err)
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindLoginPromptTimeout, kind)
}

// TestSessionConnectRefused 测试连接被拒绝归类
func TestSessionConnectRefused(t *testing.T) {
	// 监听后立刻关闭，端口几乎必然拒绝连接
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := newTestSession(addr, "", "", ">", 2*time.Second, Config{})
	err = s.Open(context.Background())
	require.Error(t, err)
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindConnectRefused, kind)
	assert.Equal(t, session.StateFailed, s.State())
}

// TestSessionConnectionReset 测试响应中途断开归类
func TestSessionConnectionReset(t *testing.T) {
	const prompt = "rs>"
	addr := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		r := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("banner\r\n" + prompt))
		_ = readLine(t, r)
		_, _ = conn.Write([]byte("half an answer")) // 然后直接断开
	})

	s := newTestSession(addr, "", "", prompt, 2*time.Second, Config{})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	_, err := s.Run(ctx, "show ip bgp 8.8.8.8")
	require.Error(t, err)
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindConnectionReset, kind)
}

// TestSessionResponseTooLarge 测试超过累计上限归类
func TestSessionResponseTooLarge(t *testing.T) {
	const prompt = "rs>"
	addr := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		r := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("banner\r\n" + prompt))
		_ = readLine(t, r)
		big := strings.Repeat("x", 4096)
		for i := 0; i < 20; i++ {
			if _, err := conn.Write([]byte(big)); err != nil {
				return
			}
		}
	})

	s := newTestSession(addr, "", "", prompt, 5*time.Second, Config{MaxResponseBytes: 16 * 1024})
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	_, err := s.Run(ctx, "show ip bgp 8.8.8.8")
	require.Error(t, err)
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindResponseTooLarge, kind)
}

// TestSessionRunRequiresOpen 测试未建立连接时Run直接失败
func TestSessionRunRequiresOpen(t *testing.T) {
	s := NewSession(Config{}, ConnectionInfo{Host: "127.0.0.1", Port: 23, Prompt: ">", Timeout: time.Second})
	_, err := s.Run(context.Background(), "show ip bgp summary")
	assert.Error(t, err, "未Open的会话不应该允许执行命令")
}
