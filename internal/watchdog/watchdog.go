package watchdog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/newplayman/exchange-operations/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Pinger 下游依赖的心跳能力
type Pinger interface {
	Ping(ctx context.Context) error
}

// Hooks 依赖状态切换时的回调（可选）
type Hooks interface {
	DependencyDown(name string, err error)
	DependencyRecovered(name string)
}

// Config 看门狗配置
type Config struct {
	PingInterval      time.Duration
	PingTimeout       time.Duration
	FailureThreshold  int
	RecoveryThreshold int
}

func (c *Config) normalize() {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 3 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = 2
	}
}

// DependencyStatus 单个依赖的健康快照
type DependencyStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Failures  int       `json:"failures"`
	LastError string    `json:"lastError,omitempty"`
	LastCheck time.Time `json:"lastCheck"`
}

type depState struct {
	pinger     Pinger
	failures   int
	recoveries int
	unhealthy  bool
	lastErr    error
	lastCheck  time.Time
}

// Watchdog 定期探测下游依赖（账户服务、费率服务、撮合引擎）
// 连续失败达到阈值标记为不健康，连续成功达到阈值后恢复
type Watchdog struct {
	cfg   Config
	hooks Hooks

	mu   sync.RWMutex
	deps map[string]*depState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatchdog 创建看门狗
func NewWatchdog(cfg Config, hooks Hooks) *Watchdog {
	cfg.normalize()
	return &Watchdog{
		cfg:   cfg,
		hooks: hooks,
		deps:  make(map[string]*depState),
	}
}

// Register 注册依赖；须在 Start 之前调用
func (w *Watchdog) Register(name string, p Pinger) {
	if p == nil {
		return
	}
	w.mu.Lock()
	w.deps[name] = &depState{pinger: p}
	w.mu.Unlock()
	metrics.SetDependencyUp(name, true)
}

// Start 启动看门狗
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.RLock()
	n := len(w.deps)
	w.mu.RUnlock()
	if n == 0 {
		log.Warn().Msg("watchdog 未启用：没有注册依赖")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(childCtx)
	}()
}

// Stop 停止看门狗
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
		w.wg.Wait()
	}
}

func (w *Watchdog) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	w.checkAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkAll(ctx)
		}
	}
}

func (w *Watchdog) checkAll(ctx context.Context) {
	w.mu.RLock()
	names := make([]string, 0, len(w.deps))
	for name := range w.deps {
		names = append(names, name)
	}
	w.mu.RUnlock()

	for _, name := range names {
		w.check(ctx, name)
	}
}

func (w *Watchdog) check(ctx context.Context, name string) {
	w.mu.RLock()
	st, ok := w.deps[name]
	w.mu.RUnlock()
	if !ok {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, w.cfg.PingTimeout)
	err := st.pinger.Ping(pingCtx)
	cancel()

	var wentDown, recovered bool
	w.mu.Lock()
	st.lastCheck = time.Now()
	st.lastErr = err
	if err != nil {
		st.failures++
		st.recoveries = 0
		if st.failures >= w.cfg.FailureThreshold && !st.unhealthy {
			st.unhealthy = true
			wentDown = true
		}
	} else {
		if st.unhealthy {
			st.recoveries++
			if st.recoveries >= w.cfg.RecoveryThreshold {
				st.unhealthy = false
				recovered = true
			}
		}
		st.failures = 0
	}
	w.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("dependency", name).Msg("依赖心跳失败")
	}
	if wentDown {
		log.Error().Str("dependency", name).Msg("依赖连续失败，标记为不可用")
		metrics.SetDependencyUp(name, false)
		if w.hooks != nil {
			w.hooks.DependencyDown(name, err)
		}
	}
	if recovered {
		log.Info().Str("dependency", name).Msg("依赖已恢复")
		metrics.SetDependencyUp(name, true)
		if w.hooks != nil {
			w.hooks.DependencyRecovered(name)
		}
	}
}

// Healthy 所有依赖都健康
func (w *Watchdog) Healthy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, st := range w.deps {
		if st.unhealthy {
			return false
		}
	}
	return true
}

// Snapshot 按名称排序的依赖状态
func (w *Watchdog) Snapshot() []DependencyStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]DependencyStatus, 0, len(w.deps))
	for name, st := range w.deps {
		s := DependencyStatus{
			Name:      name,
			Healthy:   !st.unhealthy,
			Failures:  st.failures,
			LastCheck: st.lastCheck,
		}
		if st.lastErr != nil {
			s.LastError = st.lastErr.Error()
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
