package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"equisense/pkg/config"
	"equisense/pkg/logger"
	"equisense/pkg/reliability"
	"equisense/pkg/scheduler"
	"equisense/pkg/server"

	"github.com/sirupsen/logrus"
)

const usage = `equisense - 多数据源行情聚合与对账

用法:
  equisense fetch [-config path] [-max-sources n] [-timeout d] KEY...
  equisense serve [-config path]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "fetch":
		err = runFetch(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		logger.WithComponent("Main").WithError(err).Error("运行失败")
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Logger)
	return cfg, nil
}

// runFetch 一次性查询，结果以 JSON 写到标准输出
func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	maxSources := fs.Int("max-sources", 0, "最多查询的数据源数，0 为全部")
	timeout := fs.Duration("timeout", 0, "联合查询超时，0 使用配置值")
	if err := fs.Parse(args); err != nil {
		return err
	}
	keys := fs.Args()
	if len(keys) == 0 {
		return fmt.Errorf("至少需要一个查询键")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := a.federator.FetchMany(ctx, keys, *maxSources, *timeout)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// runServe 启动运维接口和定时任务，直到收到退出信号
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.WithComponent("Main")

	sched := scheduler.New()
	if cfg.Reporter.Enabled {
		reporter := reliability.NewInfluxReporter(cfg.Reporter.Influx)
		defer reporter.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := reporter.Ping(pingCtx); err != nil {
			log.WithError(err).Warn("InfluxDB 暂不可用，上报任务将继续重试")
		}
		cancel()

		if err := sched.AddJob("reliability-report", cfg.Reporter.Schedule, 30*time.Second, func(ctx context.Context) error {
			return reporter.Report(ctx, a.tracker.HealthSnapshot())
		}); err != nil {
			return err
		}
	}
	if cfg.Prefetch.Enabled {
		keys := cfg.Prefetch.Keys
		timeout := cfg.Prefetch.Timeout
		if err := sched.AddJob("prefetch", cfg.Prefetch.Schedule, 0, func(ctx context.Context) error {
			results := a.federator.FetchMany(ctx, keys, 0, timeout)
			failed := 0
			for _, r := range results {
				if !r.OK() {
					failed++
				}
			}
			log.WithFields(logrus.Fields{"keys": len(keys), "failed": failed}).Info("预取完成")
			return nil
		}); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop(10 * time.Second)

	srv := server.New(cfg.Server, server.Deps{
		Fetcher: a.federator,
		Health:  a.tracker,
		Sources: a.registry,
		Cache:   a.cache,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在关闭...")
	return srv.Stop()
}
