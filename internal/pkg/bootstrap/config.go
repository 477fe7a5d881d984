// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config 是整个服务的配置树，先读 YAML 文件，再由环境变量覆盖
type Config struct {
	App          AppConfig          `yaml:"app"`
	Infra        InfraConfig        `yaml:"infra"`
	Storage      StorageConfig      `yaml:"storage"`
	Shipping     ShippingConfig     `yaml:"shipping"`
	Notification NotificationConfig `yaml:"notification"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Ops          OpsConfig          `yaml:"ops"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addrs []string `yaml:"addrs"`
}

type KafkaConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Brokers           []string `yaml:"brokers"`
	OrderEventsTopic  string   `yaml:"orderEventsTopic"`
	StatusChangeTopic string   `yaml:"statusChangeTopic"`
	GroupID           string   `yaml:"groupId"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	Servers []string `yaml:"servers"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // mysql | memory
}

type SurchargeRuleConfig struct {
	Name      string  `yaml:"name"`
	Condition string  `yaml:"condition"`
	PerUnit   float64 `yaml:"perUnit"`
	Reason    string  `yaml:"reason"`
}

type ShippingConfig struct {
	FlatFee           float64               `yaml:"flatFee"`
	FreeThreshold     float64               `yaml:"freeThreshold"`
	CODFee            float64               `yaml:"codFee"`
	VolumetricDivisor float64               `yaml:"volumetricDivisor"`
	Surcharges        []SurchargeRuleConfig `yaml:"surcharges"`
}

type ChannelEndpoint struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	From     string `yaml:"from"`
}

type NotificationConfig struct {
	MaxAttempts     int             `yaml:"maxAttempts"`
	BackoffBase     time.Duration   `yaml:"backoffBase"`
	BackoffMax      time.Duration   `yaml:"backoffMax"`
	DispatchTimeout time.Duration   `yaml:"dispatchTimeout"`
	ClaimTTL        time.Duration   `yaml:"claimTTL"`
	Concurrency     int             `yaml:"concurrency"`
	MaxBatch        int             `yaml:"maxBatch"`
	EmailDisabled   bool            `yaml:"emailDisabled"`
	SMSDisabled     bool            `yaml:"smsDisabled"`
	Email           ChannelEndpoint `yaml:"email"`
	SMS             ChannelEndpoint `yaml:"sms"`
}

type RateLimitPolicy struct {
	Ceiling int           `yaml:"ceiling"`
	Window  time.Duration `yaml:"window"`
}

type RateLimitConfig struct {
	Backend   string                     `yaml:"backend"` // mysql | redis | memory
	Retention time.Duration              `yaml:"retention"`
	Policies  map[string]RateLimitPolicy `yaml:"policies"`
}

type OpsConfig struct {
	CronSecret string `yaml:"cronSecret"`
}

var currentConfig atomic.Pointer[Config]

// DefaultConfig 返回不依赖任何外部文件即可运行的默认值
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "storefront-service", Port: 8080, Env: "prod", LogLevel: "info"},
		Infra: InfraConfig{
			Kafka: KafkaConfig{
				OrderEventsTopic:  "storefront.order-events",
				StatusChangeTopic: "storefront.order-status-commands",
				GroupID:           "storefront-service",
			},
		},
		Storage: StorageConfig{Driver: "mysql"},
		Shipping: ShippingConfig{
			FlatFee:           3.50,
			FreeThreshold:     35,
			CODFee:            4.00,
			VolumetricDivisor: 5000,
			Surcharges: []SurchargeRuleConfig{
				{Name: "heavy_item", Condition: "item.billableKg > 5.0", PerUnit: 1.50, Reason: "billable weight over 5kg"},
				{Name: "very_heavy_item", Condition: "item.billableKg > 10.0", PerUnit: 2.50, Reason: "billable weight over 10kg"},
				{Name: "oversize_item", Condition: "item.longestSideCm > 100.0", PerUnit: 3.00, Reason: "longest side over 100cm"},
			},
		},
		Notification: NotificationConfig{
			MaxAttempts:     5,
			BackoffBase:     time.Minute,
			BackoffMax:      time.Hour,
			DispatchTimeout: 10 * time.Second,
			ClaimTTL:        5 * time.Minute,
			Concurrency:     4,
			MaxBatch:        50,
		},
		RateLimit: RateLimitConfig{
			Backend:   "mysql",
			Retention: 24 * time.Hour,
			Policies: map[string]RateLimitPolicy{
				"checkout": {Ceiling: 60, Window: time.Minute},
				"lookup":   {Ceiling: 30, Window: time.Minute},
				"dev-seed": {Ceiling: 5, Window: time.Hour},
			},
		},
	}
}

// Init 加载配置并保存为当前配置，读取失败直接退出
func Init() *Config {
	cfg, err := Load(getEnv("CONFIG_FILE", ""))
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}
	currentConfig.Store(cfg)
	return cfg
}

// GetCurrentConfig 返回 Init 加载的配置；未初始化时返回默认配置
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

// Load 读取 path 指向的 YAML（可为空），再应用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate 校验会导致运行期错误的配置组合
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql":
		if c.Infra.MySQL.DSN == "" {
			return fmt.Errorf("storage.driver=mysql requires infra.mysql.dsn")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "mysql":
		if c.Storage.Driver != "mysql" {
			return fmt.Errorf("ratelimit.backend=mysql requires storage.driver=mysql")
		}
	case "redis":
		if len(c.Infra.Redis.Addrs) == 0 {
			return fmt.Errorf("ratelimit.backend=redis requires infra.redis.addrs")
		}
	default:
		return fmt.Errorf("unknown ratelimit.backend %q", c.RateLimit.Backend)
	}
	if c.Notification.MaxAttempts < 1 {
		return fmt.Errorf("notification.maxAttempts must be >= 1")
	}
	// 认领有效期要覆盖一次投递超时加一次结果写入超时
	if n := c.Notification; n.ClaimTTL > 0 && n.ClaimTTL <= 2*n.DispatchTimeout {
		return fmt.Errorf("notification.claimTTL (%s) must exceed twice notification.dispatchTimeout (%s)", n.ClaimTTL, n.DispatchTimeout)
	}
	if c.Shipping.FlatFee < 0 || c.Shipping.FreeThreshold < 0 || c.Shipping.CODFee < 0 {
		return fmt.Errorf("shipping fees must not be negative")
	}
	return nil
}

func applyEnv(c *Config) error {
	c.App.Port = getEnvInt("PORT", c.App.Port)
	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)

	c.Infra.MySQL.DSN = getEnv("MYSQL_DSN", c.Infra.MySQL.DSN)
	c.Infra.Redis.Addrs = getEnvList("REDIS_ADDRS", c.Infra.Redis.Addrs)
	c.Infra.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", c.Infra.Kafka.Enabled)
	c.Infra.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Infra.Kafka.Brokers)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	c.Infra.Zookeeper.Servers = getEnvList("ZOOKEEPER_SERVERS", c.Infra.Zookeeper.Servers)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)

	c.Shipping.FlatFee = getEnvFloat("SHIPPING_FLAT_FEE", c.Shipping.FlatFee)
	c.Shipping.FreeThreshold = getEnvFloat("SHIPPING_FREE_THRESHOLD", c.Shipping.FreeThreshold)
	c.Shipping.CODFee = getEnvFloat("SHIPPING_COD_FEE", c.Shipping.CODFee)

	c.Notification.EmailDisabled = getEnvBool("NOTIFY_EMAIL_DISABLED", c.Notification.EmailDisabled)
	c.Notification.SMSDisabled = getEnvBool("NOTIFY_SMS_DISABLED", c.Notification.SMSDisabled)
	c.Notification.MaxAttempts = getEnvInt("NOTIFY_MAX_ATTEMPTS", c.Notification.MaxAttempts)
	c.Notification.BackoffBase = getEnvDuration("NOTIFY_BACKOFF_BASE", c.Notification.BackoffBase)
	c.Notification.Email.APIKey = getEnv("NOTIFY_EMAIL_API_KEY", c.Notification.Email.APIKey)
	c.Notification.SMS.APIKey = getEnv("NOTIFY_SMS_API_KEY", c.Notification.SMS.APIKey)

	c.RateLimit.Backend = getEnv("RATELIMIT_BACKEND", c.RateLimit.Backend)
	// RATELIMIT_<ACTION>=<ceiling>/<window>，例如 RATELIMIT_CHECKOUT=60/1m
	for action := range c.RateLimit.Policies {
		key := "RATELIMIT_" + strings.ToUpper(strings.ReplaceAll(action, "-", "_"))
		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		policy, err := parsePolicy(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.RateLimit.Policies[action] = policy
	}

	c.Ops.CronSecret = getEnv("CRON_SECRET", c.Ops.CronSecret)
	return nil
}

func parsePolicy(raw string) (RateLimitPolicy, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return RateLimitPolicy{}, fmt.Errorf("expected <ceiling>/<window>, got %q", raw)
	}
	ceiling, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || ceiling < 1 {
		return RateLimitPolicy{}, fmt.Errorf("invalid ceiling %q", parts[0])
	}
	window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil || window <= 0 {
		return RateLimitPolicy{}, fmt.Errorf("invalid window %q", parts[1])
	}
	return RateLimitPolicy{Ceiling: ceiling, Window: window}, nil
}

// getEnv 从环境变量中读取配置
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
