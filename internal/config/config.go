package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/bgplgpro/bgplgpro/internal/registry"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Registry RegistryConfig `mapstructure:"registry"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// RegistryConfig 路由服务器清单配置
// 清单可以内联在主配置里，也可以放独立文件并开启热加载
type RegistryConfig struct {
	File    string        `mapstructure:"file"`
	Watch   bool          `mapstructure:"watch"`
	Servers []ServerEntry `mapstructure:"servers"`
}

// ServerEntry 单台路由服务器条目
// Enabled 用指针区分"未配置"与显式false，未配置视为启用
type ServerEntry struct {
	Name             string `mapstructure:"name"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	ConnectionMethod string `mapstructure:"connection_method"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	Prompt           string `mapstructure:"prompt"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	Enabled          *bool  `mapstructure:"enabled"`
}

// SessionConfig 会话读取参数
type SessionConfig struct {
	ChunkSize        int      `mapstructure:"chunk_size"`
	MaxResponseBytes int      `mapstructure:"max_response_bytes"`
	MaxConcurrent    int      `mapstructure:"max_concurrent"`
	LoginPrompts     []string `mapstructure:"login_prompts"`
	PasswordPrompts  []string `mapstructure:"password_prompts"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path        string `mapstructure:"path"`
	BusyTimeout int    `mapstructure:"busy_timeout_ms"`
}

// ArchiveConfig 查询原始输出归档配置
type ArchiveConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Backend string      `mapstructure:"backend"`
	Local   LocalConfig `mapstructure:"local"`
	Minio   MinioConfig `mapstructure:"minio"`
}

// LocalConfig 本地目录归档
type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

// MinioConfig MinIO对象存储归档
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

var globalConfig *Config

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/bgplg")
	}

	v.SetEnvPrefix("BGP_LG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 清单独立文件时合并服务器条目
	if cfg.Registry.File != "" {
		entries, err := LoadRegistryFile(cfg.Registry.File)
		if err != nil {
			return nil, err
		}
		cfg.Registry.Servers = entries
	}

	globalConfig = &cfg
	return &cfg, nil
}

// LoadRegistryFile 从独立YAML文件加载服务器清单
func LoadRegistryFile(path string) ([]ServerEntry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取服务器清单失败: %w", err)
	}
	var payload struct {
		Servers []ServerEntry `mapstructure:"servers"`
	}
	if err := v.Unmarshal(&payload); err != nil {
		return nil, fmt.Errorf("解析服务器清单失败: %w", err)
	}
	return payload.Servers, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("registry.watch", false)

	v.SetDefault("session.chunk_size", 4096)
	v.SetDefault("session.max_response_bytes", 4194304)
	v.SetDefault("session.max_concurrent", 32)
	v.SetDefault("session.login_prompts", []string{"Username:", "login:"})
	v.SetDefault("session.password_prompts", []string{"Password:"})

	v.SetDefault("database.sqlite.path", "data/bgplg.db")
	v.SetDefault("database.sqlite.busy_timeout_ms", 5000)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.local.dir", "data/archive")
	v.SetDefault("archive.minio.use_ssl", false)
	v.SetDefault("archive.minio.bucket", "bgplg-archive")
	v.SetDefault("archive.minio.prefix", "queries")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "logs/bgplg.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

const (
	defaultTelnetPort     = 23
	defaultSSHPort        = 22
	defaultPrompt         = "#"
	defaultTimeoutSeconds = 20
)

// BuildProfiles 将配置条目规范化为只读清单条目
// 端口、提示符、超时、连接方式按缺省值补齐，enabled缺省为true
func BuildProfiles(entries []ServerEntry) []registry.ServerProfile {
	profiles := make([]registry.ServerProfile, 0, len(entries))
	for _, e := range entries {
		method := strings.ToLower(strings.TrimSpace(e.ConnectionMethod))
		if method == "" {
			method = registry.MethodTelnet
		}
		port := e.Port
		if port <= 0 {
			if method == registry.MethodSSH {
				port = defaultSSHPort
			} else {
				port = defaultTelnetPort
			}
		}
		prompt := e.Prompt
		if prompt == "" {
			prompt = defaultPrompt
		}
		timeout := e.TimeoutSeconds
		if timeout <= 0 {
			timeout = defaultTimeoutSeconds
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		profiles = append(profiles, registry.ServerProfile{
			Name:             e.Name,
			Host:             e.Host,
			Port:             port,
			ConnectionMethod: method,
			Username:         e.Username,
			Password:         e.Password,
			Prompt:           prompt,
			TimeoutSeconds:   timeout,
			Enabled:          enabled,
		})
	}
	return profiles
}
