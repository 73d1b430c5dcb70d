package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log *logrus.Logger

// 未配置时的缺省值，与 configs/config.yaml 保持一致
const (
	defaultLevel    = "info"
	defaultFilePath = "logs/bgplg.log"
	timestampLayout = "2006-01-02 15:04:05"
)

// Config 日志配置
// Output 取值 console / file / both，空值等同 console
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

// Init 初始化日志
// 查询引擎的事件日志走这里，缺省JSON格式便于采集
func Init(config Config) error {
	l := logrus.New()

	if config.Level == "" {
		config.Level = defaultLevel
	}
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch config.Format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampLayout,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampLayout,
			// 查询输出里常见 <> 等字符，禁用HTML转义
			DisableHTMLEscape: true,
		})
	}

	writers := make([]io.Writer, 0, 2)
	switch config.Output {
	case "file":
		// 仅文件
	case "both":
		writers = append(writers, os.Stdout)
	default:
		writers = append(writers, os.Stdout)
	}
	if config.Output == "file" || config.Output == "both" {
		path := config.FilePath
		if path == "" {
			path = defaultFilePath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))

	log = l
	return nil
}

// GetLogger 获取日志实例
// Init 之前调用时返回logrus默认配置的实例（stderr），保证测试与CLI可用
func GetLogger() *logrus.Logger {
	if log == nil {
		log = logrus.New()
	}
	return log
}

// Debug 调试日志
func Debug(args ...interface{}) {
	GetLogger().Debug(args...)
}

// Debugf 格式化调试日志
func Debugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

// Info 信息日志
func Info(args ...interface{}) {
	GetLogger().Info(args...)
}

// Infof 格式化信息日志
func Infof(format string, args ...interface{}) {
	GetLogger().Infof(format, args...)
}

// Warn 警告日志
func Warn(args ...interface{}) {
	GetLogger().Warn(args...)
}

// Warnf 格式化警告日志
func Warnf(format string, args ...interface{}) {
	GetLogger().Warnf(format, args...)
}

// Error 错误日志
func Error(args ...interface{}) {
	GetLogger().Error(args...)
}

// Errorf 格式化错误日志
func Errorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}

// Fatal 致命错误日志
func Fatal(args ...interface{}) {
	GetLogger().Fatal(args...)
}

// WithField 添加字段
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields 添加多个字段
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithError 附带错误字段
func WithError(err error) *logrus.Entry {
	return GetLogger().WithError(err)
}
