package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    Server     `mapstructure:"server"`
	Auth      Auth       `mapstructure:"auth"`
	Policy    Policy     `mapstructure:"policy"`
	Exchanges []Exchange `mapstructure:"exchanges"`
	Redis     Redis      `mapstructure:"redis"`
	Database  Database   `mapstructure:"database"`
	Metrics   Metrics    `mapstructure:"metrics"`
	Rate      Rate       `mapstructure:"rate"`
	ReadOnly  bool       `mapstructure:"read_only"`
	LogLevel  string     `mapstructure:"log_level"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Auth struct {
	// Source IPs (or CIDRs) allowed to reach the gateway. Empty list means
	// the gate is open; production deployments are expected to set it.
	AllowedIPs []string `mapstructure:"allowed_ips"`
	AdminKey   string   `mapstructure:"admin_key"`
}

type Policy struct {
	// Path to the YAML policy file. Watched for changes when watch is true.
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

type Credentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

type Exchange struct {
	Name          string        `mapstructure:"name"`
	Primary       Credentials   `mapstructure:"primary"`
	SecondaryKeys []Credentials `mapstructure:"secondary_keys"`
}

type Redis struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type Database struct {
	DSN                string `mapstructure:"dsn"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Rate struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. CEXGATE_SERVER_PORT, CEXGATE_POLICY_PATH
	viper.SetEnvPrefix("cexgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "15888")
	viper.SetDefault("policy.path", "./conf/policy.yml")
	viper.SetDefault("policy.watch", true)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("read_only", false)
	viper.SetDefault("rate.qps", 20)
	viper.SetDefault("rate.burst", 40)
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("database.audit_retention_days", 30)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
