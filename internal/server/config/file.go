package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations accept
// strings such as "15m" or integer nanoseconds.
//
// Only fields present with a non-zero value override the current Config.
type FileConfig struct {
	EndpointAddrGRPC string `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDSN      string `json:"database_dsn" yaml:"database_dsn"`
	RedisURL         string `json:"redis_url" yaml:"redis_url"`
	SecretKey        string `json:"secret_key" yaml:"secret_key"`

	AccessTokenValidityDuration  timex.Duration `json:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`
	ResetTokenValidityDuration   timex.Duration `json:"reset_token_ttl" yaml:"reset_token_ttl"`

	RateLimit       int64          `json:"rate_limit" yaml:"rate_limit"`
	RateLimitWindow timex.Duration `json:"rate_limit_window" yaml:"rate_limit_window"`
	TrustedProxies  []string       `json:"trusted_proxies" yaml:"trusted_proxies"`

	DBMaxOpenConns    int            `json:"db_max_open_conns" yaml:"db_max_open_conns"`
	DBMaxIdleConns    int            `json:"db_max_idle_conns" yaml:"db_max_idle_conns"`
	DBConnMaxLifetime timex.Duration `json:"db_conn_max_lifetime" yaml:"db_conn_max_lifetime"`
	DBConnectTimeout  timex.Duration `json:"db_connect_timeout" yaml:"db_connect_timeout"`

	RedisPoolSize    int            `json:"redis_pool_size" yaml:"redis_pool_size"`
	RedisPoolTimeout timex.Duration `json:"redis_pool_timeout" yaml:"redis_pool_timeout"`

	SMTPHost     string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `json:"smtp_port" yaml:"smtp_port"`
	SMTPUsername string `json:"smtp_username" yaml:"smtp_username"`
	SMTPPassword string `json:"smtp_password" yaml:"smtp_password"`
	SMTPFrom     string `json:"smtp_from" yaml:"smtp_from"`
	ResetURLBase string `json:"reset_url_base" yaml:"reset_url_base"`

	NotifyTimeout       timex.Duration `json:"notify_timeout" yaml:"notify_timeout"`
	HealthCheckInterval timex.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	ShutdownTimeout     timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel     string `json:"log_level" yaml:"log_level"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string `json:"service_name" yaml:"service_name"`
}

// parseFile reads path as YAML when its extension is .yaml or .yml and as
// JSON otherwise, and overlays the result onto config.
func parseFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.SecretKey, fc.SecretKey)

	setDuration(&c.AccessTokenValidityDuration, fc.AccessTokenValidityDuration)
	setDuration(&c.RefreshTokenValidityDuration, fc.RefreshTokenValidityDuration)
	setDuration(&c.ResetTokenValidityDuration, fc.ResetTokenValidityDuration)

	if fc.RateLimit != 0 {
		c.RateLimit = fc.RateLimit
	}
	setDuration(&c.RateLimitWindow, fc.RateLimitWindow)
	if len(fc.TrustedProxies) > 0 {
		c.TrustedProxies = fc.TrustedProxies
	}

	setInt(&c.DBMaxOpenConns, fc.DBMaxOpenConns)
	setInt(&c.DBMaxIdleConns, fc.DBMaxIdleConns)
	setDuration(&c.DBConnMaxLifetime, fc.DBConnMaxLifetime)
	setDuration(&c.DBConnectTimeout, fc.DBConnectTimeout)

	setInt(&c.RedisPoolSize, fc.RedisPoolSize)
	setDuration(&c.RedisPoolTimeout, fc.RedisPoolTimeout)

	setString(&c.SMTPHost, fc.SMTPHost)
	setInt(&c.SMTPPort, fc.SMTPPort)
	setString(&c.SMTPUsername, fc.SMTPUsername)
	setString(&c.SMTPPassword, fc.SMTPPassword)
	setString(&c.SMTPFrom, fc.SMTPFrom)
	setString(&c.ResetURLBase, fc.ResetURLBase)

	setDuration(&c.NotifyTimeout, fc.NotifyTimeout)
	setDuration(&c.HealthCheckInterval, fc.HealthCheckInterval)
	setDuration(&c.ShutdownTimeout, fc.ShutdownTimeout)

	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.OTLPEndpoint, fc.OTLPEndpoint)
	setString(&c.ServiceName, fc.ServiceName)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
