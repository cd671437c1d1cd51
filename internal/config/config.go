package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the global service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Boost    BoostConfig    `mapstructure:"boost"`
	IDGen    IDGenConfig    `mapstructure:"idgen"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`

	// MigrateCatalog also creates profiles and products, for local setups
	// where the catalog layer is not running.
	MigrateCatalog bool `mapstructure:"migrate_catalog"`
}

// DSN builds the go-sql-driver DSN for this config.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	WalletEvents string `mapstructure:"wallet_events"`
}

type BusinessConfig struct {
	MaxRetryCount  int `mapstructure:"max_retry_count"`
	LockTTLSeconds int `mapstructure:"lock_ttl_seconds"`
}

// BoostConfig holds the boost tier price table. An empty list falls back to
// the built-in defaults.
type BoostConfig struct {
	Prices []BoostPrice `mapstructure:"prices"`
}

type BoostPrice struct {
	Level string `mapstructure:"level"`
	Days  int    `mapstructure:"days"`
	Price string `mapstructure:"price"`
}

type IDGenConfig struct {
	Node int64 `mapstructure:"node"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.auto_migrate", true)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("kafka.topic.wallet_events", "wallet-events")
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("idgen.node", 1)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads the YAML file at configPath. Every key can be overridden
// from the environment with the WALLET_ prefix, e.g. WALLET_MYSQL_PASSWORD.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("wallet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
