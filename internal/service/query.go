package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/bgplgpro/bgplgpro/internal/config"
	"github.com/bgplgpro/bgplgpro/internal/database"
	"github.com/bgplgpro/bgplgpro/internal/model"
	"github.com/bgplgpro/bgplgpro/internal/registry"
	"github.com/bgplgpro/bgplgpro/internal/validate"
	"github.com/bgplgpro/bgplgpro/pkg/logger"
	"github.com/bgplgpro/bgplgpro/pkg/session"
	"github.com/bgplgpro/bgplgpro/pkg/ssh"
	"github.com/bgplgpro/bgplgpro/pkg/telnet"
)

// QueryResult 一次查询的结果
type QueryResult struct {
	QueryID  string        `json:"query_id"`
	Server   string        `json:"server"`
	Command  string        `json:"command"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"-"`
}

// QueryService 查询引擎
// 每次查询独立建立会话并在结束后关闭，查询之间互不影响
type QueryService struct {
	cfg      config.SessionConfig
	reg      atomic.Pointer[registry.Registry]
	sem      *semaphore.Weighted
	db       *gorm.DB
	archiver Archiver

	// 测试通过替换工厂注入假传输
	newTransport func(profile registry.ServerProfile) session.Transport
}

// NewQueryService 创建查询引擎
func NewQueryService(cfg config.SessionConfig, reg *registry.Registry, db *gorm.DB, archiver Archiver) *QueryService {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}
	s := &QueryService{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		db:       db,
		archiver: archiver,
	}
	s.reg.Store(reg)
	s.newTransport = s.defaultTransport
	return s
}

// Registry 当前生效的服务器清单
func (s *QueryService) Registry() *registry.Registry {
	return s.reg.Load()
}

// ReloadRegistry 原子替换服务器清单，进行中的查询继续用旧清单
func (s *QueryService) ReloadRegistry(reg *registry.Registry) {
	old := s.reg.Swap(reg)
	logger.WithFields(logrus.Fields{
		"servers_before": old.Len(),
		"servers_after":  reg.Len(),
	}).Info("server registry reloaded")
}

func (s *QueryService) defaultTransport(profile registry.ServerProfile) session.Transport {
	if profile.ConnectionMethod == registry.MethodSSH {
		return ssh.NewClient(ssh.Config{
			ChunkSize:        s.cfg.ChunkSize,
			MaxResponseBytes: s.cfg.MaxResponseBytes,
		}, ssh.ConnectionInfo{
			Host:     profile.Host,
			Port:     profile.Port,
			Username: profile.Username,
			Password: profile.Password,
			Prompt:   profile.Prompt,
			Timeout:  profile.Timeout(),
		})
	}
	return telnet.NewSession(telnet.Config{
		ChunkSize:        s.cfg.ChunkSize,
		MaxResponseBytes: s.cfg.MaxResponseBytes,
		LoginPrompts:     s.cfg.LoginPrompts,
		PasswordPrompts:  s.cfg.PasswordPrompts,
	}, telnet.ConnectionInfo{
		Host:     profile.Host,
		Port:     profile.Port,
		Username: profile.Username,
		Password: profile.Password,
		Prompt:   profile.Prompt,
		Timeout:  profile.Timeout(),
	})
}

// LookupRoute 查询指定目的地址的BGP路由
// 目的地址校验失败时不进行清单查找，也不建立任何连接
func (s *QueryService) LookupRoute(ctx context.Context, serverName, destination string) (*QueryResult, error) {
	dest, err := validate.Validate(destination)
	if err != nil {
		return nil, err
	}
	command := fmt.Sprintf("show ip bgp %s", dest.String())
	return s.run(ctx, serverName, model.QueryTypeRoute, dest.String(), command)
}

// Summary 查询BGP邻居汇总
func (s *QueryService) Summary(ctx context.Context, serverName string) (*QueryResult, error) {
	return s.run(ctx, serverName, model.QueryTypeSummary, "", "show ip bgp summary")
}

func (s *QueryService) run(ctx context.Context, serverName, queryType, destination, command string) (*QueryResult, error) {
	profile, err := s.reg.Load().Get(serverName)
	if err != nil {
		return nil, err
	}

	queryID := uuid.New().String()
	fields := logrus.Fields{
		"query_id": queryID,
		"server":   profile.Name,
		"addr":     profile.Addr(),
		"method":   profile.ConnectionMethod,
		"command":  command,
	}
	logger.WithFields(fields).Info("query started")

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("等待会话配额失败: %w", err)
	}
	defer s.sem.Release(1)

	start := time.Now()
	output, err := s.execute(ctx, profile, command)
	duration := time.Since(start)

	record := &model.QueryLog{
		QueryID:     queryID,
		QueryType:   queryType,
		Server:      profile.Name,
		Destination: destination,
		Command:     command,
		DurationMS:  duration.Milliseconds(),
		CreatedAt:   time.Now(),
	}

	if err != nil {
		record.Status = model.QueryStatusFailed
		if kind, ok := session.KindOf(err); ok {
			record.ErrorKind = kind.String()
		}
		record.ErrorMsg = err.Error()
		s.persist(ctx, record)
		logger.WithFields(fields).WithFields(logrus.Fields{
			"duration_ms": duration.Milliseconds(),
			"error_kind":  record.ErrorKind,
		}).WithError(err).Warn("query failed")
		return nil, err
	}

	record.Status = model.QueryStatusSuccess
	record.ResponseBytes = len(output)

	if s.archiver != nil {
		if path, aerr := s.archiver.Store(ctx, profile.Name, queryID, []byte(output)); aerr != nil {
			// 归档失败不影响查询结果
			logger.WithFields(fields).WithError(aerr).Warn("archive write failed")
		} else {
			record.ArchivePath = path
		}
	}
	s.persist(ctx, record)

	logger.WithFields(fields).WithFields(logrus.Fields{
		"duration_ms":    duration.Milliseconds(),
		"response_bytes": len(output),
	}).Info("query completed")

	return &QueryResult{
		QueryID:  queryID,
		Server:   profile.Name,
		Command:  command,
		Output:   output,
		Duration: duration,
	}, nil
}

// execute 建立会话、执行单条命令并确保会话关闭
func (s *QueryService) execute(ctx context.Context, profile registry.ServerProfile, command string) (string, error) {
	transport := s.newTransport(profile)
	defer func() {
		_ = transport.Close()
	}()

	if err := transport.Open(ctx); err != nil {
		return "", err
	}
	return transport.Run(ctx, command)
}

func (s *QueryService) persist(ctx context.Context, record *model.QueryLog) {
	if s.db == nil {
		return
	}
	// 单连接SQLite下并发查询会产生busy竞争，写入带重试
	err := database.WithRetry(s.db, func(conn *gorm.DB) error {
		return conn.WithContext(ctx).Create(record).Error
	}, 3, 50*time.Millisecond)
	if err != nil {
		logger.WithField("query_id", record.QueryID).WithError(err).Warn("failed to persist query log")
	}
}

// History 按时间倒序返回最近的查询记录
func (s *QueryService) History(ctx context.Context, limit int) ([]model.QueryLog, error) {
	if s.db == nil {
		return []model.QueryLog{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var records []model.QueryLog
	err := database.WithRetry(s.db, func(conn *gorm.DB) error {
		return conn.WithContext(ctx).Order("id DESC").Limit(limit).Find(&records).Error
	}, 3, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	return records, nil
}
