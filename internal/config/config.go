package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/vendorledger/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	OperatorJWT  OperatorJWTConfig  `mapstructure:"operator_jwt"`
	Commission   CommissionConfig   `mapstructure:"commission"`
	Payout       PayoutConfig       `mapstructure:"payout"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Wallet       WalletConfig       `mapstructure:"wallet"`
	Stripe       StripeConfig       `mapstructure:"stripe"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
	// 慢速请求头与优雅退出等待
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int `mapstructure:"shutdown_timeout_seconds"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// ReadHeaderTimeout 请求头读取超时
func (c ServerConfig) ReadHeaderTimeout() time.Duration {
	return secondsOr(c.ReadHeaderTimeoutSeconds, 10)
}

// ShutdownTimeout 优雅退出等待上限
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return secondsOr(c.ShutdownTimeoutSeconds, 15)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Level,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// OperatorJWTConfig 运营令牌校验配置（令牌由外部身份服务签发）
type OperatorJWTConfig struct {
	SecretKey string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
}

// CommissionConfig 佣金配置
type CommissionConfig struct {
	DefaultPlatformFeeRate string `mapstructure:"default_platform_fee_rate"` // 百分比，如 "2.5"
	RuleCacheTTLSeconds    int    `mapstructure:"rule_cache_ttl_seconds"`
}

// RuleCacheTTL 规则快照缓存时长
func (c CommissionConfig) RuleCacheTTL() time.Duration {
	return secondsOr(c.RuleCacheTTLSeconds, 60)
}

// PayoutConfig 打款批次配置
type PayoutConfig struct {
	BatchCron            string   `mapstructure:"batch_cron"`
	Tenants              []string `mapstructure:"tenants"`
	DefaultMinimum       int64    `mapstructure:"default_minimum"`
	ApprovalSweepSeconds int      `mapstructure:"approval_sweep_seconds"`
}

// ApprovalSweepInterval 佣金自动确认扫描间隔
func (c PayoutConfig) ApprovalSweepInterval() time.Duration {
	return secondsOr(c.ApprovalSweepSeconds, 300)
}

// SettlementConfig 结算重试配置
type SettlementConfig struct {
	MaxRetries           int `mapstructure:"max_retries"`
	BaseDelaySeconds     int `mapstructure:"base_delay_seconds"`
	MaxDelaySeconds      int `mapstructure:"max_delay_seconds"`
	RailTimeoutSeconds   int `mapstructure:"rail_timeout_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// BaseDelay 首次重试等待
func (c SettlementConfig) BaseDelay() time.Duration {
	return secondsOr(c.BaseDelaySeconds, 30)
}

// MaxDelay 重试等待上限
func (c SettlementConfig) MaxDelay() time.Duration {
	return secondsOr(c.MaxDelaySeconds, 3600)
}

// RailTimeout 单次渠道调用超时
func (c SettlementConfig) RailTimeout() time.Duration {
	return secondsOr(c.RailTimeoutSeconds, 15)
}

// SweepInterval 到期重试扫描间隔
func (c SettlementConfig) SweepInterval() time.Duration {
	return secondsOr(c.SweepIntervalSeconds, 60)
}

// WalletConfig 钱包配置
type WalletConfig struct {
	MaxConflictRetries    int `mapstructure:"max_conflict_retries"`
	StaleHoldMinutes      int `mapstructure:"stale_hold_minutes"`
	StaleHoldSweepSeconds int `mapstructure:"stale_hold_sweep_seconds"`
}

// StaleHoldAge 冻结单滞留判定时长
func (c WalletConfig) StaleHoldAge() time.Duration {
	if c.StaleHoldMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.StaleHoldMinutes) * time.Minute
}

// StaleHoldSweepInterval 滞留冻结单扫描间隔
func (c WalletConfig) StaleHoldSweepInterval() time.Duration {
	return secondsOr(c.StaleHoldSweepSeconds, 900)
}

// StripeConfig Stripe Connect 配置
type StripeConfig struct {
	SecretKey               string `mapstructure:"secret_key"`
	WebhookSecret           string `mapstructure:"webhook_secret"`
	APIBaseURL              string `mapstructure:"api_base_url"`
	WebhookToleranceSeconds int    `mapstructure:"webhook_tolerance_seconds"`
}

// NotificationConfig 打款通知配置
type NotificationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func secondsOr(value int, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("./")    // 备用路径
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	setDefaults()

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.read_header_timeout_seconds", 10)
	viper.SetDefault("server.shutdown_timeout_seconds", 15)
	viper.SetDefault("log.level", "")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "vendorledger.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/vendorledger.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "vl")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"critical": 6,
		"default":  3,
	})
	viper.SetDefault("operator_jwt.secret", "change-me-in-production")
	viper.SetDefault("operator_jwt.issuer", "")
	viper.SetDefault("commission.default_platform_fee_rate", "0")
	viper.SetDefault("commission.rule_cache_ttl_seconds", 60)
	viper.SetDefault("payout.batch_cron", "0 2 * * *")
	viper.SetDefault("payout.tenants", []string{})
	viper.SetDefault("payout.default_minimum", 0)
	viper.SetDefault("payout.approval_sweep_seconds", 300)
	viper.SetDefault("settlement.max_retries", 5)
	viper.SetDefault("settlement.base_delay_seconds", 30)
	viper.SetDefault("settlement.max_delay_seconds", 3600)
	viper.SetDefault("settlement.rail_timeout_seconds", 15)
	viper.SetDefault("settlement.sweep_interval_seconds", 60)
	viper.SetDefault("wallet.max_conflict_retries", 3)
	viper.SetDefault("wallet.stale_hold_minutes", 1440)
	viper.SetDefault("wallet.stale_hold_sweep_seconds", 900)
	viper.SetDefault("stripe.secret_key", "")
	viper.SetDefault("stripe.webhook_secret", "")
	viper.SetDefault("stripe.api_base_url", "https://api.stripe.com")
	viper.SetDefault("stripe.webhook_tolerance_seconds", 300)
	viper.SetDefault("notification.enabled", true)
}
