package session

import (
	"context"
	"strings"
)

// Transport 单次查询的会话传输抽象
// telnet 与 ssh 两种实现各自维护一条临时连接，查询完成后即销毁，
// 会话在查询之间绝不复用
type Transport interface {
	// Open 建立连接并完成可选的登录握手
	Open(ctx context.Context) error
	// Run 发送一条命令并收集到提示符重现为止的完整输出
	Run(ctx context.Context, command string) (string, error)
	// Close 尽力关闭连接，任何状态下可重复调用，并能解除阻塞中的读取
	Close() error
	// State 当前会话状态
	State() State
}

// MarkerIndex 在 buf 的 from 偏移之后查找提示符标记
// 标记按子串匹配而非整行匹配，部分设备的提示符后没有换行
func MarkerIndex(buf []byte, marker string, from int) int {
	if marker == "" || from >= len(buf) {
		return -1
	}
	if from < 0 {
		from = 0
	}
	idx := strings.Index(string(buf[from:]), marker)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// EchoEnd 返回命令回显结束处的偏移
// 远端终端会把键入的命令原样回显，第一行若与命令匹配则跳过，
// 避免回显行里的字符被误判为提示符
func EchoEnd(buf []byte, command string) int {
	nl := strings.IndexByte(string(buf), '\n')
	if nl < 0 {
		return 0
	}
	first := strings.TrimSpace(strings.Trim(string(buf[:nl]), "\r"))
	cmd := strings.TrimSpace(command)
	if cmd == "" || first == "" {
		return 0
	}
	// 兼容"提示符+命令"同行回显的情况
	if first == cmd || strings.HasSuffix(first, cmd) {
		return nl + 1
	}
	return 0
}

// CleanOutput 从捕获的原始文本中剥离命令回显与尾部提示符行
func CleanOutput(raw, command, marker string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "")
	lines := strings.Split(s, "\n")

	cmd := strings.TrimSpace(command)
	start := 0
	// 跳过头部空行与命令回显行
	for start < len(lines) {
		line := strings.TrimSpace(lines[start])
		if line == "" {
			start++
			continue
		}
		if cmd != "" && (line == cmd || strings.HasSuffix(line, cmd)) {
			start++
		}
		break
	}

	end := len(lines)
	// 去掉尾部的提示符行与空行
	for end > start {
		line := strings.TrimSpace(lines[end-1])
		if line == "" {
			end--
			continue
		}
		if marker != "" && strings.Contains(line, marker) {
			end--
		}
		break
	}

	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}
