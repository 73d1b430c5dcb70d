package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgplgpro/bgplgpro/internal/registry"
)

// TestBuildProfilesDefaults 测试条目缺省值补齐
func TestBuildProfilesDefaults(t *testing.T) {
	profiles := BuildProfiles([]ServerEntry{
		{Name: "bare", Host: "rs.example.net"},
	})
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, registry.MethodTelnet, p.ConnectionMethod, "connection_method缺省为telnet")
	assert.Equal(t, 23, p.Port, "telnet端口缺省为23")
	assert.Equal(t, "#", p.Prompt, "提示符缺省为#")
	assert.Equal(t, 20, p.TimeoutSeconds, "超时缺省为20秒")
	assert.True(t, p.Enabled, "enabled未配置时视为启用")
}

// TestBuildProfilesSSHDefaults 测试SSH条目端口缺省
func TestBuildProfilesSSHDefaults(t *testing.T) {
	profiles := BuildProfiles([]ServerEntry{
		{Name: "ssh-rs", Host: "rs.example.net", ConnectionMethod: "SSH"},
	})
	require.Len(t, profiles, 1)
	assert.Equal(t, registry.MethodSSH, profiles[0].ConnectionMethod, "连接方式应该归一化为小写")
	assert.Equal(t, 22, profiles[0].Port, "ssh端口缺省为22")
}

// TestBuildProfilesExplicitDisabled 测试显式停用
func TestBuildProfilesExplicitDisabled(t *testing.T) {
	off := false
	on := true
	profiles := BuildProfiles([]ServerEntry{
		{Name: "off", Host: "a", Enabled: &off},
		{Name: "on", Host: "b", Enabled: &on},
	})
	require.Len(t, profiles, 2)
	assert.False(t, profiles[0].Enabled, "显式false应该停用")
	assert.True(t, profiles[1].Enabled)
}

// TestLoadConfigFile 测试完整配置文件加载
func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
registry:
  servers:
    - name: rv
      host: rs.example.net
      prompt: "rv>"
      enabled: false
session:
  max_concurrent: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Session.MaxConcurrent)
	assert.Equal(t, 4096, cfg.Session.ChunkSize, "未配置项应该取默认值")

	require.Len(t, cfg.Registry.Servers, 1)
	entry := cfg.Registry.Servers[0]
	require.NotNil(t, entry.Enabled, "显式enabled应该解析为非nil指针")
	assert.False(t, *entry.Enabled)
	assert.Equal(t, "rv>", entry.Prompt)
}

// TestLoadRegistryFile 测试独立清单文件加载
func TestLoadRegistryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.yaml")
	content := `
servers:
  - name: rv-a
    host: a.example.net
  - name: rv-b
    host: b.example.net
    connection_method: ssh
    port: 2222
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	entries, err := LoadRegistryFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "rv-a", entries[0].Name)
	assert.Equal(t, 2222, entries[1].Port)
}
