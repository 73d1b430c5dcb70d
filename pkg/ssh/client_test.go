package ssh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgplgpro/bgplgpro/pkg/session"
)

func newTestClient(timeout time.Duration) *Client {
	return NewClient(Config{}, ConnectionInfo{
		Host:     "127.0.0.1",
		Port:     22,
		Username: "lg",
		Password: "secret",
		Prompt:   "frr#",
		Timeout:  timeout,
	})
}

// TestRunRequiresOpen 测试未建立连接时Run直接失败
func TestRunRequiresOpen(t *testing.T) {
	c := newTestClient(time.Second)
	_, err := c.Run(context.Background(), "show ip bgp summary")
	require.Error(t, err, "未Open的会话不应该允许执行命令")
	assert.Equal(t, session.StateDisconnected, c.State(), "状态守卫不应该改变状态")
}

// TestCollectTimeoutClassification 测试收集超时按阶段归类
func TestCollectTimeoutClassification(t *testing.T) {
	c := newTestClient(50 * time.Millisecond)

	_, err := c.collect(context.Background(), []string{c.info.Prompt}, "", session.KindLoginPromptTimeout)
	require.Error(t, err)
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindLoginPromptTimeout, kind, "横幅阶段超时应该归类为LoginPromptTimeout")
	assert.Equal(t, session.StateFailed, c.State())

	c = newTestClient(50 * time.Millisecond)
	_, err = c.collect(context.Background(), []string{c.info.Prompt}, "show ip bgp summary", session.KindResponseTimeout)
	require.Error(t, err)
	kind, ok = session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindResponseTimeout, kind, "命令阶段超时应该归类为ResponseTimeout")
}

// TestCollectContextCancel 测试调用方取消同样终止收集
func TestCollectContextCancel(t *testing.T) {
	c := newTestClient(5 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.collect(ctx, []string{c.info.Prompt}, "", session.KindResponseTimeout)
	require.Error(t, err)
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindResponseTimeout, kind)
	assert.Equal(t, session.StateFailed, c.State())
}

// TestCollectReaderError 测试读取协程错误归类为连接断开
func TestCollectReaderError(t *testing.T) {
	c := newTestClient(time.Second)
	c.errCh <- errors.New("remote closed channel")

	_, err := c.collect(context.Background(), []string{c.info.Prompt}, "", session.KindResponseTimeout)
	require.Error(t, err)
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindConnectionReset, kind)
}

// TestCollectPromptAfterEcho 测试回显行中的提示符字符不触发完成
func TestCollectPromptAfterEcho(t *testing.T) {
	c := newTestClient(2 * time.Second)
	cmd := "show ip bgp 8.8.8.8"

	// 先只投递回显行（结尾带提示符字符），随后再投递正文与真正的提示符
	c.dataCh <- []byte("frr#" + cmd + "\r\n")
	go func() {
		time.Sleep(50 * time.Millisecond)
		c.dataCh <- []byte("BGP routing table entry\r\nfrr#")
	}()

	raw, err := c.collect(context.Background(), []string{c.info.Prompt}, cmd, session.KindResponseTimeout)
	require.NoError(t, err)
	assert.Contains(t, raw, "BGP routing table entry", "应该等到回显之后的提示符重现")
}

// TestCollectTooLarge 测试超出累计上限
func TestCollectTooLarge(t *testing.T) {
	c := NewClient(Config{MaxResponseBytes: 8}, ConnectionInfo{
		Host: "127.0.0.1", Port: 22, Prompt: "frr#", Timeout: time.Second,
	})
	c.dataCh <- []byte("0123456789")

	_, err := c.collect(context.Background(), []string{"frr#"}, "", session.KindResponseTimeout)
	require.Error(t, err)
	kind, ok := session.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, session.KindResponseTooLarge, kind)
}

// TestCloseIdempotent 测试Close可重复调用且终态保持
func TestCloseIdempotent(t *testing.T) {
	c := newTestClient(time.Second)
	require.NoError(t, c.Close())
	assert.Equal(t, session.StateClosed, c.State())
	require.NoError(t, c.Close(), "重复Close不应该报错或panic")
	assert.Equal(t, session.StateClosed, c.State())

	// 失败终态在Close之后保持不变
	c = newTestClient(50 * time.Millisecond)
	_, err := c.collect(context.Background(), []string{c.info.Prompt}, "", session.KindLoginPromptTimeout)
	require.Error(t, err)
	require.Equal(t, session.StateFailed, c.State())
	_ = c.Close()
	assert.Equal(t, session.StateFailed, c.State(), "Close不应该覆盖失败终态")
}

// TestReadLoopExitsAfterClose 测试会话关闭后读取协程能退出
func TestReadLoopExitsAfterClose(t *testing.T) {
	c := newTestClient(time.Second)
	// 填满投递缓冲，模拟没有消费者的场景
	for i := 0; i < cap(c.dataCh); i++ {
		c.dataCh <- []byte("x")
	}
	require.NoError(t, c.Close())

	doneCh := make(chan struct{})
	go func() {
		// done已关闭，即使缓冲满也不应该阻塞
		select {
		case c.dataCh <- []byte("y"):
		case <-c.done:
		}
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("关闭后的投递不应该阻塞")
	}
}

// TestClientConfigLegacyAlgorithms 测试兼容老旧固件的算法与认证配置
func TestClientConfigLegacyAlgorithms(t *testing.T) {
	c := newTestClient(3 * time.Second)
	cfg := c.clientConfig()

	assert.Equal(t, "lg", cfg.User)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Len(t, cfg.Auth, 2, "密码与keyboard-interactive两种认证")
	assert.Contains(t, cfg.KeyExchanges, "diffie-hellman-group1-sha1", "应该保留老旧设备需要的kex")
	assert.Contains(t, cfg.Ciphers, "3des-cbc")

	// 无密码时不携带认证方法
	anon := NewClient(Config{}, ConnectionInfo{Host: "h", Port: 22, Prompt: "#", Timeout: time.Second})
	assert.Empty(t, anon.clientConfig().Auth)
}
