package config

import (
	"fmt"
	"strings"

	"github.com/botdesk-next/internal/logger"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	UserJWT      JWTConfig          `mapstructure:"user_jwt"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Security     SecurityConfig     `mapstructure:"security"`
	Email        EmailConfig        `mapstructure:"email"`
	Affiliate    AffiliateConfig    `mapstructure:"affiliate"`
	PayPal       PayPalConfig       `mapstructure:"paypal"`
	Payout       PayoutConfig       `mapstructure:"payout"`
	Notification NotificationConfig `mapstructure:"notification"`
	Billing      BillingConfig      `mapstructure:"billing"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
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
	Driver string             `mapstructure:"driver"` // sqlite / postgres
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
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

// EmailConfig 邮件服务配置
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	UseSSL   bool   `mapstructure:"use_ssl"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	LoginRateLimit    RateLimitConfig `mapstructure:"login_rate_limit"`
	ReferralRateLimit RateLimitConfig `mapstructure:"referral_rate_limit"`
	PayoutRateLimit   RateLimitConfig `mapstructure:"payout_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxAttempts   int `mapstructure:"max_attempts"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// AffiliateConfig 推广返利配置
type AffiliateConfig struct {
	DefaultCommissionRate string `mapstructure:"default_commission_rate"` // 小数形式，0.50 表示 50%
	MinimumPayoutCents    int64  `mapstructure:"minimum_payout_cents"`
	Currency              string `mapstructure:"currency"`
	CodeLength            int    `mapstructure:"code_length"`
}

// PayPalConfig PayPal Payouts 网关配置
type PayPalConfig struct {
	Mode            string `mapstructure:"mode"` // sandbox / live
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	BaseURL         string `mapstructure:"base_url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	AllowSimulation bool   `mapstructure:"allow_simulation"`
}

// PayoutConfig 批量结算配置
type PayoutConfig struct {
	Cron                  string `mapstructure:"cron"`
	Timezone              string `mapstructure:"timezone"`
	InterItemDelayMS      int    `mapstructure:"inter_item_delay_ms"`
	LockTTLSeconds        int    `mapstructure:"lock_ttl_seconds"`
	GatewayTimeoutSeconds int    `mapstructure:"gateway_timeout_seconds"`
	Memo                  string `mapstructure:"memo"`
}

// NotificationConfig 通知发件配置
type NotificationConfig struct {
	DailyLimit           int     `mapstructure:"daily_limit"`
	WarnRatio            float64 `mapstructure:"warn_ratio"`
	CriticalRatio        float64 `mapstructure:"critical_ratio"`
	AdminEmail           string  `mapstructure:"admin_email"`
	RelayIntervalSeconds int     `mapstructure:"relay_interval_seconds"`
	MaxAttempts          int     `mapstructure:"max_attempts"`
	SendTimeoutSeconds   int     `mapstructure:"send_timeout_seconds"`
	SendingStaleSeconds  int     `mapstructure:"sending_stale_seconds"`
}

// BillingConfig 计费系统回调配置
type BillingConfig struct {
	ServiceToken string `mapstructure:"service_token"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./")
	viper.AddConfigPath("../") // 从 cmd/server 运行
	viper.AddConfigPath("./etc")

	setDefaults(viper.GetViper())

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // payout.cron -> PAYOUT_CRON

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
	if err := cfg.Validate(); err != nil {
		logger.Errorw("config_validate_failed", "error", err)
		panic(fmt.Errorf("配置校验失败: %w", err))
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/botdesk.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("user_jwt.secret", "user-change-me-in-production")
	v.SetDefault("user_jwt.expire_hours", 24)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "bd")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Service-Token",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.login_rate_limit.window_seconds", 300)
	v.SetDefault("security.login_rate_limit.max_attempts", 5)
	v.SetDefault("security.login_rate_limit.block_seconds", 900)
	v.SetDefault("security.referral_rate_limit.window_seconds", 60)
	v.SetDefault("security.referral_rate_limit.max_attempts", 30)
	v.SetDefault("security.referral_rate_limit.block_seconds", 300)
	v.SetDefault("security.payout_rate_limit.window_seconds", 300)
	v.SetDefault("security.payout_rate_limit.max_attempts", 5)
	v.SetDefault("security.payout_rate_limit.block_seconds", 600)
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.from_name", "BotDesk")
	v.SetDefault("email.use_ssl", false)
	v.SetDefault("affiliate.default_commission_rate", "0.50")
	v.SetDefault("affiliate.minimum_payout_cents", 5000)
	v.SetDefault("affiliate.currency", "EUR")
	v.SetDefault("affiliate.code_length", 8)
	v.SetDefault("paypal.mode", "sandbox")
	v.SetDefault("paypal.client_id", "")
	v.SetDefault("paypal.client_secret", "")
	v.SetDefault("paypal.base_url", "")
	v.SetDefault("paypal.timeout_seconds", 12)
	v.SetDefault("paypal.allow_simulation", true)
	v.SetDefault("payout.cron", "0 2 1 * *")
	v.SetDefault("payout.timezone", "UTC")
	v.SetDefault("payout.inter_item_delay_ms", 1000)
	v.SetDefault("payout.lock_ttl_seconds", 7200)
	v.SetDefault("payout.gateway_timeout_seconds", 20)
	v.SetDefault("payout.memo", "Affiliate commission payout")
	v.SetDefault("notification.daily_limit", 300)
	v.SetDefault("notification.warn_ratio", 0.8)
	v.SetDefault("notification.critical_ratio", 0.9)
	v.SetDefault("notification.admin_email", "")
	v.SetDefault("notification.relay_interval_seconds", 30)
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.send_timeout_seconds", 15)
	v.SetDefault("notification.sending_stale_seconds", 300)
	v.SetDefault("billing.service_token", "")
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := cron.ParseStandard(strings.TrimSpace(c.Payout.Cron)); err != nil {
		return fmt.Errorf("invalid payout.cron %q: %w", c.Payout.Cron, err)
	}
	if c.Affiliate.MinimumPayoutCents < 0 {
		return fmt.Errorf("affiliate.minimum_payout_cents must not be negative")
	}
	mode := strings.ToLower(strings.TrimSpace(c.PayPal.Mode))
	if mode != "" && mode != "sandbox" && mode != "live" {
		return fmt.Errorf("invalid paypal.mode %q", c.PayPal.Mode)
	}
	if c.Notification.CriticalRatio > 0 && c.Notification.WarnRatio > c.Notification.CriticalRatio {
		return fmt.Errorf("notification.warn_ratio must not exceed notification.critical_ratio")
	}
	return nil
}
