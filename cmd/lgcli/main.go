package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bgplgpro/bgplgpro/internal/config"
	"github.com/bgplgpro/bgplgpro/internal/registry"
	"github.com/bgplgpro/bgplgpro/internal/service"
	"github.com/bgplgpro/bgplgpro/pkg/logger"
)

// lgcli 命令行一次性查询工具
// 读取与服务端相同的配置，不经过HTTP直接建立会话查询
func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	serverName := flag.String("server", "", "路由服务器名称，缺省使用第一个启用的服务器")
	destination := flag.String("dest", "", "目的IP或CIDR前缀，为空时查询BGP邻居汇总")
	timeout := flag.Duration("timeout", 60*time.Second, "整体查询超时")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 命令行下只输出告警以上级别，避免干扰查询结果
	if err := logger.Init(logger.Config{Level: "warn", Format: "text"}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	reg, err := registry.New(config.BuildProfiles(cfg.Registry.Servers))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build server registry: %v\n", err)
		os.Exit(1)
	}

	queryService := service.NewQueryService(cfg.Session, reg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var result *service.QueryResult
	if *destination != "" {
		result, err = queryService.LookupRoute(ctx, *serverName, *destination)
	} else {
		result, err = queryService.Summary(ctx, *serverName)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "# server=%s command=%q duration=%s\n", result.Server, result.Command, result.Duration.Round(time.Millisecond))
	fmt.Println(result.Output)
}
