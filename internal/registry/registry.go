package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// 连接方式
const (
	MethodTelnet = "telnet"
	MethodSSH    = "ssh"
)

var (
	// ErrNotFound 服务器不存在（或请求默认服务器时没有任何启用项）
	ErrNotFound = errors.New("server not found")
	// ErrDisabled 服务器存在但已停用
	ErrDisabled = errors.New("server disabled")
	// ErrEmpty 注册表为空
	ErrEmpty = errors.New("no servers configured")
)

// ServerProfile 远端路由服务器档案
// 启动时一次性加载，之后不可变；多条查询并发读取无需加锁
type ServerProfile struct {
	Name             string `json:"name"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	ConnectionMethod string `json:"connection_method"`
	Username         string `json:"-"`
	Password         string `json:"-"`
	Prompt           string `json:"prompt"`
	TimeoutSeconds   int    `json:"timeout"`
	Enabled          bool   `json:"enabled"`
}

// Timeout 档案超时
func (p ServerProfile) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Addr 连接地址
func (p ServerProfile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Registry 服务器注册表
// 保持配置顺序，构造后只读；热加载时整体换一个新实例
type Registry struct {
	profiles []ServerProfile
	index    map[string]int
}

// New 构造注册表，名称必须唯一
func New(profiles []ServerProfile) (*Registry, error) {
	r := &Registry{
		profiles: make([]ServerProfile, 0, len(profiles)),
		index:    make(map[string]int, len(profiles)),
	}
	for _, p := range profiles {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("server profile missing name (host=%s)", p.Host)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("duplicate server name: %s", name)
		}
		p.Name = name
		r.index[name] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}
	return r, nil
}

// Get 按名称取服务器；名称为空时返回配置顺序中第一个启用的档案
func (r *Registry) Get(name string) (ServerProfile, error) {
	if len(r.profiles) == 0 {
		return ServerProfile{}, ErrEmpty
	}
	name = strings.TrimSpace(name)
	if name == "" {
		for _, p := range r.profiles {
			if p.Enabled {
				return p, nil
			}
		}
		return ServerProfile{}, fmt.Errorf("no enabled server: %w", ErrNotFound)
	}
	idx, ok := r.index[name]
	if !ok {
		return ServerProfile{}, fmt.Errorf("server %q: %w", name, ErrNotFound)
	}
	p := r.profiles[idx]
	if !p.Enabled {
		return ServerProfile{}, fmt.Errorf("server %q: %w", name, ErrDisabled)
	}
	return p, nil
}

// List 只读快照，含停用项，供前端展示
func (r *Registry) List() []ServerProfile {
	out := make([]ServerProfile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Len 档案数量
func (r *Registry) Len() int {
	return len(r.profiles)
}
