package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bgplgpro/bgplgpro/api/router"
	"github.com/bgplgpro/bgplgpro/internal/config"
	"github.com/bgplgpro/bgplgpro/internal/database"
	"github.com/bgplgpro/bgplgpro/internal/registry"
	"github.com/bgplgpro/bgplgpro/internal/service"
	"github.com/bgplgpro/bgplgpro/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting BGP LG Pro Server", "version", "1.0.0")

	// 初始化数据库
	if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()

	// 构建服务器清单
	reg, err := registry.New(config.BuildProfiles(cfg.Registry.Servers))
	if err != nil {
		logger.Fatal("Failed to build server registry", "error", err)
	}
	logger.Info("Server registry loaded", "servers", reg.Len())

	// 创建归档后端
	archiver, err := service.NewArchiver(cfg.Archive)
	if err != nil {
		logger.Fatal("Failed to initialize archiver", "error", err)
	}
	if archiver != nil {
		logger.Info("Query archive enabled", "backend", cfg.Archive.Backend)
	}

	// 创建查询服务
	queryService := service.NewQueryService(cfg.Session, reg, database.GetDB(), archiver)

	// 服务器清单文件监听与热更新
	if cfg.Registry.Watch && cfg.Registry.File != "" {
		go watchRegistry(cfg.Registry.File, queryService)
	}

	// 设置路由
	r := router.SetupRouter(queryService, cfg.Server.Mode)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting", "addr", server.Addr, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exited")
}

// watchRegistry 监听清单文件变更并原子替换注册表
// 加载失败时保留旧清单继续服务
func watchRegistry(path string, queryService *service.QueryService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("Registry watch init failed", "error", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.Warn("Registry watch add failed", "error", err)
		return
	}

	var debounce *time.Timer
	debounceInterval := 300 * time.Millisecond
	trigger := func() {
		entries, err := config.LoadRegistryFile(path)
		if err != nil {
			logger.Warn("Registry reload failed", "error", err)
			return
		}
		reg, err := registry.New(config.BuildProfiles(entries))
		if err != nil {
			logger.Warn("Registry reload rejected", "error", err)
			return
		}
		queryService.ReloadRegistry(reg)
	}

	for {
		select {
		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, trigger)
			}
		case err := <-watcher.Errors:
			logger.Warn("Registry watch error", "error", err)
		}
	}
}
