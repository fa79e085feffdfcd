package httpapi

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/newplayman/exchange-operations/internal/operations"
	"github.com/newplayman/exchange-operations/internal/watchdog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const brokerKey = "brokerId"

// Readiness 依赖健康状态（由 watchdog 提供）
type Readiness interface {
	Healthy() bool
	Snapshot() []watchdog.DependencyStatus
}

// Options HTTP 层配置
type Options struct {
	BrokerHeader string
	Name         string
	Version      string
}

// Handler 对外 HTTP 接口
type Handler struct {
	ops       operations.Operations
	ready     Readiness
	opts      Options
	validator *validator.Validate
	started   time.Time
}

// NewHandler ready 可以为 nil，此时 /readyz 恒为就绪
func NewHandler(ops operations.Operations, ready Readiness, opts Options) *Handler {
	if opts.BrokerHeader == "" {
		opts.BrokerHeader = "X-Broker-Id"
	}
	if opts.Name == "" {
		opts.Name = "exchange-operations"
	}
	return &Handler{
		ops:       ops,
		ready:     ready,
		opts:      opts,
		validator: newValidator(),
		started:   time.Now(),
	}
}

// newValidator decimal 按 float64 参与 gt/ne 等比较
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Router 注册全部路由
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	api := r.Group("/api")
	api.GET("/isalive", h.IsAlive)

	scoped := api.Group("", h.requireBroker())
	{
		cash := scoped.Group("/cash-management")
		cash.POST("/cash-in", h.CashIn)
		cash.POST("/cash-out", h.CashOut)
		cash.POST("/transfer", h.Transfer)

		trading := scoped.Group("/trading")
		trading.POST("/limit-order", h.CreateLimitOrder)
		trading.DELETE("/limit-order/:limitOrderId", h.CancelLimitOrder)
		trading.POST("/market-order", h.CreateMarketOrder)
	}
	return r
}

// requireBroker 从请求头取 broker id，缺失返回 401
func (h *Handler) requireBroker() gin.HandlerFunc {
	return func(c *gin.Context) {
		broker := c.GetHeader(h.opts.BrokerHeader)
		if broker == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + h.opts.BrokerHeader + " header"})
			return
		}
		c.Set(brokerKey, broker)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// Server gin + http.Server，支持优雅关闭
type Server struct {
	srv *http.Server
}

func NewServer(addr string, h *Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start 后台监听；监听失败记录错误日志
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("HTTP 服务已启动")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP 服务异常退出")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
