package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Log            LogConfig            `mapstructure:"log"`
	Accounts       ServiceConfig        `mapstructure:"accounts"`
	Fees           ServiceConfig        `mapstructure:"fees"`
	MatchingEngine MatchingEngineConfig `mapstructure:"matching_engine"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Events         EventsConfig         `mapstructure:"events"`
	Watchdog       WatchdogConfig       `mapstructure:"watchdog"`
}

// ServerConfig HTTP 入口
type ServerConfig struct {
	Listen       string `mapstructure:"listen"`        // 监听地址 (e.g. :8080)
	BrokerHeader string `mapstructure:"broker_header"` // 携带 broker id 的请求头
}

type MetricsConfig struct {
	Port int `mapstructure:"port"` // Prometheus 端口，0 表示随机
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // debug | info | warn | error
	File       string `mapstructure:"file"`         // 为空则只输出到控制台
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 保留天数
}

// ServiceConfig 账户服务 / 费率服务的 HTTP 客户端配置
type ServiceConfig struct {
	BaseURL    string  `mapstructure:"base_url"`
	APIKey     string  `mapstructure:"api_key"`
	APISecret  string  `mapstructure:"api_secret"`
	TimeoutMs  int     `mapstructure:"timeout_ms"`
	RetryCount int     `mapstructure:"retry_count"` // 只对查询生效
	Rate       float64 `mapstructure:"rate"`        // 每秒请求数
	Burst      int     `mapstructure:"burst"`
}

// MatchingEngineConfig 撮合引擎连接配置
type MatchingEngineConfig struct {
	Transport     string  `mapstructure:"transport"` // grpc | ws
	Address       string  `mapstructure:"address"`   // gRPC target
	WSURL         string  `mapstructure:"ws_url"`
	APIKey        string  `mapstructure:"api_key"`
	APISecret     string  `mapstructure:"api_secret"`
	AckTimeoutMs  int     `mapstructure:"ack_timeout_ms"`  // 单次提交等待应答的时间
	DialTimeoutMs int     `mapstructure:"dial_timeout_ms"` // WS 握手超时
	Rate          float64 `mapstructure:"rate"`
	Burst         int     `mapstructure:"burst"`
	Max10s        int     `mapstructure:"max_10s"` // 10 秒窗口上限，0 表示不限制
	Max60s        int     `mapstructure:"max_60s"` // 60 秒窗口上限，0 表示不限制
}

type PipelineConfig struct {
	ParallelLookups bool `mapstructure:"parallel_lookups"` // 钱包校验与费率查询并发执行
}

// EventsConfig brokers 为空时不发布事件
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type WatchdogConfig struct {
	IntervalMs        int `mapstructure:"interval_ms"`
	FailureThreshold  int `mapstructure:"failure_threshold"`
	RecoveryThreshold int `mapstructure:"recovery_threshold"`
}

const (
	TransportGRPC = "grpc"
	TransportWS   = "ws"
)

var (
	mu           sync.RWMutex
	globalConfig *Config
	configPath   string
	reloadHooks  []func(*Config)
	watchOnce    sync.Once
)

func setDefaults() {
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.broker_header", "X-Broker-Id")
	viper.SetDefault("metrics.port", 9100)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 7)
	for _, svc := range []string{"accounts", "fees"} {
		viper.SetDefault(svc+".timeout_ms", 3000)
		viper.SetDefault(svc+".retry_count", 2)
		viper.SetDefault(svc+".rate", 50)
		viper.SetDefault(svc+".burst", 100)
	}
	viper.SetDefault("matching_engine.transport", TransportGRPC)
	viper.SetDefault("matching_engine.ack_timeout_ms", 3000)
	viper.SetDefault("matching_engine.dial_timeout_ms", 5000)
	viper.SetDefault("matching_engine.rate", 100)
	viper.SetDefault("matching_engine.burst", 200)
	viper.SetDefault("matching_engine.max_10s", 0)
	viper.SetDefault("matching_engine.max_60s", 0)
	viper.SetDefault("pipeline.parallel_lookups", false)
	viper.SetDefault("events.topic", "operations.events")
	viper.SetDefault("watchdog.interval_ms", 15000)
	viper.SetDefault("watchdog.failure_threshold", 3)
	viper.SetDefault("watchdog.recovery_threshold", 2)
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	configPath = path
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	setDefaults()

	// 环境变量覆盖: OPERATIONS_ACCOUNTS_BASE_URL 等
	viper.SetEnvPrefix("OPERATIONS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// 密钥显式绑定
	viper.BindEnv("accounts.api_secret", "ACCOUNTS_API_SECRET")
	viper.BindEnv("fees.api_secret", "FEES_API_SECRET")
	viper.BindEnv("matching_engine.api_secret", "ME_API_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	mu.Lock()
	globalConfig = &cfg
	mu.Unlock()

	// 启动热重载监听
	watchOnce.Do(func() { go watchConfig() })

	log.Info().Str("path", path).Msg("配置加载成功")
	return &cfg, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// OnReload 注册热重载回调；只有通过验证的新配置会触发
func OnReload(fn func(*Config)) {
	mu.Lock()
	reloadHooks = append(reloadHooks, fn)
	mu.Unlock()
}

// validateConfig 验证配置有效性
func validateConfig(cfg *Config) error {
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen 不能为空")
	}
	if cfg.Server.BrokerHeader == "" {
		return fmt.Errorf("server.broker_header 不能为空")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port 必须在 0-65535 之间")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level 不支持: %q", cfg.Log.Level)
	}

	if err := validateService("accounts", &cfg.Accounts); err != nil {
		return err
	}
	if err := validateService("fees", &cfg.Fees); err != nil {
		return err
	}

	me := &cfg.MatchingEngine
	me.Transport = strings.ToLower(me.Transport)
	switch me.Transport {
	case TransportGRPC:
		if me.Address == "" {
			return fmt.Errorf("matching_engine.address 不能为空 (transport=grpc)")
		}
	case TransportWS:
		if me.WSURL == "" {
			return fmt.Errorf("matching_engine.ws_url 不能为空 (transport=ws)")
		}
	default:
		return fmt.Errorf("matching_engine.transport 必须是 grpc 或 ws，当前: %q", me.Transport)
	}
	if me.AckTimeoutMs < 0 || me.DialTimeoutMs < 0 {
		return fmt.Errorf("matching_engine 超时不能为负数")
	}
	if me.Rate < 0 || me.Burst < 0 || me.Max10s < 0 || me.Max60s < 0 {
		return fmt.Errorf("matching_engine 限流参数不能为负数")
	}

	if len(cfg.Events.Brokers) > 0 && cfg.Events.Topic == "" {
		return fmt.Errorf("events.topic 不能为空")
	}

	if cfg.Watchdog.IntervalMs < 0 {
		return fmt.Errorf("watchdog.interval_ms 不能为负数")
	}
	if cfg.Watchdog.FailureThreshold < 0 || cfg.Watchdog.RecoveryThreshold < 0 {
		return fmt.Errorf("watchdog 阈值不能为负数")
	}
	return nil
}

func validateService(name string, svc *ServiceConfig) error {
	if svc.BaseURL == "" {
		return fmt.Errorf("%s.base_url 不能为空", name)
	}
	if svc.TimeoutMs < 0 {
		return fmt.Errorf("%s.timeout_ms 不能为负数", name)
	}
	if svc.RetryCount < 0 {
		return fmt.Errorf("%s.retry_count 不能为负数", name)
	}
	if svc.Rate < 0 || svc.Burst < 0 {
		return fmt.Errorf("%s 限流参数不能为负数", name)
	}
	return nil
}

// watchConfig 监听配置文件变化并热重载
func watchConfig() {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("检测到配置文件变化，正在重载...")
		if _, err := reload(); err != nil {
			log.Error().Err(err).Msg("新配置无效，保持旧配置")
			return
		}
		log.Info().Msg("配置热重载成功")
	})
}

func reload() (*Config, error) {
	var newCfg Config
	if err := viper.Unmarshal(&newCfg); err != nil {
		return nil, fmt.Errorf("重载配置失败: %w", err)
	}
	if err := validateConfig(&newCfg); err != nil {
		return nil, err
	}

	mu.Lock()
	globalConfig = &newCfg
	hooks := append([]func(*Config){}, reloadHooks...)
	mu.Unlock()

	for _, fn := range hooks {
		fn(&newCfg)
	}
	return &newCfg, nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (s ServiceConfig) Timeout() time.Duration { return ms(s.TimeoutMs) }

func (m MatchingEngineConfig) AckTimeout() time.Duration  { return ms(m.AckTimeoutMs) }
func (m MatchingEngineConfig) DialTimeout() time.Duration { return ms(m.DialTimeoutMs) }

// GetPingInterval 看门狗探测间隔
func (c *Config) GetPingInterval() time.Duration {
	return ms(c.Watchdog.IntervalMs)
}

// EventsEnabled 是否配置了 Kafka
func (c *Config) EventsEnabled() bool {
	return len(c.Events.Brokers) > 0
}
