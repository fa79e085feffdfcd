package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// 操作指标
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operations_total",
			Help: "已提交到撮合引擎的操作数（按返回状态）",
		},
		[]string{"kind", "status"},
	)

	OperationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operations_rejected_total",
			Help: "提交前被拒绝的操作数",
		},
		[]string{"kind", "reason"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "operation_duration_seconds",
			Help:    "单次操作端到端耗时",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	// 手续费指标
	FeeDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fee_degraded_total",
			Help: "手续费降级为 NoFee 的次数",
		},
		[]string{"kind", "reason"},
	)

	// 依赖指标
	RemoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_latency_seconds",
			Help:    "下游服务调用延迟",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"call", "outcome"},
	)

	DependencyUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dependency_up",
			Help: "下游依赖健康状态 (1=正常 0=异常)",
		},
		[]string{"dependency"},
	)

	EventsPublishFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_publish_failed_total",
			Help: "操作事件发布失败次数",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationsRejected,
		OperationDuration,
		FeeDegraded,
		RemoteLatency,
		DependencyUp,
		EventsPublishFailed,
	)
}

// StartMetricsServer 启动Prometheus监控服务器，并返回实际监听端口
func StartMetricsServer(port int) (int, error) {
	if port < 0 {
		port = 0
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listen on %s failed: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	log.Info().Int("port", actualPort).Msg("启动Prometheus监控服务器")

	go func() {
		if err := http.Serve(listener, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Prometheus服务器启动失败")
		}
	}()

	return actualPort, nil
}

// RecordOperation 记录一次已提交的操作
func RecordOperation(kind, status string, elapsed time.Duration) {
	OperationsTotal.WithLabelValues(kind, status).Inc()
	OperationDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordRejection 记录一次提交前拒绝
func RecordRejection(kind, reason string, elapsed time.Duration) {
	OperationsRejected.WithLabelValues(kind, reason).Inc()
	OperationDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordFeeDegraded 记录手续费降级
func RecordFeeDegraded(kind, reason string) {
	FeeDegraded.WithLabelValues(kind, reason).Inc()
}

// ObserveRemote 记录下游调用耗时，outcome 为 ok/error
func ObserveRemote(call string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RemoteLatency.WithLabelValues(call, outcome).Observe(time.Since(start).Seconds())
}

// SetDependencyUp 更新依赖健康状态
func SetDependencyUp(dependency string, up bool) {
	value := 0.0
	if up {
		value = 1.0
	}
	DependencyUp.WithLabelValues(dependency).Set(value)
}

// RecordPublishFailure 记录事件发布失败
func RecordPublishFailure(kind string) {
	EventsPublishFailed.WithLabelValues(kind).Inc()
}
