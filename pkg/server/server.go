// Package server 运维 HTTP 接口：健康检查、数据源可靠性快照和单键对账查询。
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"equisense/pkg/cache"
	"equisense/pkg/logger"
	"equisense/pkg/reconcile"
	"equisense/pkg/reliability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config 服务配置
type Config struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{Addr: ":8080", Mode: gin.ReleaseMode, ShutdownTimeout: 10 * time.Second}
}

// Fetcher 联合查询
type Fetcher interface {
	Fetch(ctx context.Context, key string, maxSources int, timeout time.Duration) reconcile.ReconciledData
}

// HealthReporter 数据源可靠性快照
type HealthReporter interface {
	HealthSnapshot() []reliability.SourceReliability
}

// StatusReporter 数据源限流与熔断状态
type StatusReporter interface {
	Status() map[string]interface{}
}

// Deps 服务依赖，Cache 和 Sources 可为 nil
type Deps struct {
	Fetcher Fetcher
	Health  HealthReporter
	Sources StatusReporter
	Cache   cache.Cache
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server 运维服务
type Server struct {
	config Config
	deps   Deps
	router *gin.Engine
	server *http.Server
	log    *logrus.Entry
}

// New 创建服务并注册路由
func New(config Config, deps Deps) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		log:    logger.WithComponent("Server"),
	}
	s.router = s.routes()
	return s
}

// Handler 返回路由，供测试和嵌入使用
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(s.requestLogger())

	router.GET("/healthz", s.healthz)
	router.GET("/sources", s.sourceStatus)
	router.GET("/sources/health", s.sourceHealth)
	router.GET("/cache/stats", s.cacheStats)
	router.GET("/reconcile/:key", s.reconcile)
	return router
}

// Start 在后台监听
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.WithField("addr", s.config.Addr).Info("启动运维服务")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP 服务异常退出")
		}
	}()
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("运维服务关闭失败")
		return err
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

func (s *Server) sourceHealth(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, []reliability.SourceReliability{})
		return
	}
	c.JSON(http.StatusOK, s.deps.Health.HealthSnapshot())
}

func (s *Server) sourceStatus(c *gin.Context) {
	if s.deps.Sources == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.deps.Sources.Status())
}

func (s *Server) cacheStats(c *gin.Context) {
	if s.deps.Cache == nil {
		c.JSON(http.StatusOK, cache.Stats{Backend: "none"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Cache.Stats())
}

// reconcile GET /reconcile/:key?max_sources=2&timeout=3s
func (s *Server) reconcile(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "key is required"})
		return
	}
	if s.deps.Fetcher == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "federator not configured"})
		return
	}

	maxSources := 0
	if raw := c.Query("max_sources"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "max_sources must be a non-negative integer"})
			return
		}
		maxSources = n
	}

	var timeout time.Duration
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "timeout must be a positive duration"})
			return
		}
		timeout = d
	}

	data := s.deps.Fetcher.Fetch(c.Request.Context(), key, maxSources, timeout)
	c.JSON(http.StatusOK, data)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// requestLogger 健康检查不记录
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		entry := s.log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  c.GetString("request_id"),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("请求失败")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("请求无效")
		default:
			entry.Debug("请求完成")
		}
	}
}
