package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"` // 雪花算法机器ID，多实例部署时必须不同
}

type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"` // mysql | postgres | sqlite
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
	MaxIdleConns  int    `mapstructure:"max_idle_conns"`
	LockTimeoutMs int    `mapstructure:"lock_timeout_ms"` // 行锁等待超时
	TxTimeoutMs   int    `mapstructure:"tx_timeout_ms"`   // 单个事务的总超时
	LogLevel      string `mapstructure:"log_level"`       // silent | error | warn | info
}

func (c DatabaseConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}

func (c DatabaseConfig) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutMs) * time.Millisecond
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvent string `mapstructure:"ledger_event"`
}

type BusinessConfig struct {
	CodeTTLMinutes       int `mapstructure:"code_ttl_minutes"`
	CodeLength           int `mapstructure:"code_length"`
	CodeMaxAttempts      int `mapstructure:"code_max_attempts"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	MaxRetryCount        int `mapstructure:"max_retry_count"`
	IssueRatePerMinute   int `mapstructure:"issue_rate_per_minute"`
}

func (c BusinessConfig) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLMinutes) * time.Minute
}

func (c BusinessConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.lock_timeout_ms", 3000)
	v.SetDefault("database.tx_timeout_ms", 10000)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.topic.ledger_event", "loyalty.ledger.event")

	v.SetDefault("business.code_ttl_minutes", 15)
	v.SetDefault("business.code_length", 8)
	v.SetDefault("business.code_max_attempts", 5)
	v.SetDefault("business.sweep_interval_seconds", 60)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.issue_rate_per_minute", 10)
}

// Default 只包含默认值的配置，测试和本地调试使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// LoadConfig 加载配置文件，环境变量 LOYALTY_<SECTION>_<KEY> 可以覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 校验会影响账本正确性的配置项
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	if c.Business.CodeTTLMinutes <= 0 {
		return fmt.Errorf("code_ttl_minutes 必须大于0")
	}
	if c.Business.CodeLength < 6 {
		return fmt.Errorf("code_length 不能小于6")
	}
	if c.Business.CodeMaxAttempts <= 0 {
		return fmt.Errorf("code_max_attempts 必须大于0")
	}
	return nil
}
