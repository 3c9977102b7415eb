// Package config loads the coordinator's process configuration from the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the complete set of process settings for cmd/txcoordinatord.
type Config struct {
	CassandraHosts    []string `env:"TXCOORD_CASSANDRA_HOSTS" envSeparator:"," envDefault:"127.0.0.1:9042"`
	CassandraKeyspace string   `env:"TXCOORD_CASSANDRA_KEYSPACE" envDefault:"txcoord"`

	RedisAddress  string `env:"TXCOORD_REDIS_ADDRESS" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"TXCOORD_REDIS_PASSWORD"`
	RedisDB       int    `env:"TXCOORD_REDIS_DB" envDefault:"0"`

	TxTimeout      time.Duration `env:"TXCOORD_TX_TIMEOUT" envDefault:"30s"`
	GCInterval     time.Duration `env:"TXCOORD_GC_INTERVAL" envDefault:"30s"`
	MaxGroupsForXG int           `env:"TXCOORD_MAX_GROUPS_FOR_XG" envDefault:"5"`
	CallDeadline   time.Duration `env:"TXCOORD_CALL_DEADLINE" envDefault:"3s"`

	// GCPolicyExpr is an optional CEL boolean expression overriding the
	// default GC eligibility rule. Empty disables the override.
	GCPolicyExpr string `env:"TXCOORD_GC_POLICY_EXPR"`

	HTTPListenAddress string `env:"TXCOORD_HTTP_LISTEN_ADDRESS" envDefault:"localhost:8080"`
	OktaDomain        string `env:"OKTA_DOMAIN"`
	OktaClientID      string `env:"OKTA_CLIENT_ID"`
	// Env set to "DEV" bypasses Okta verification entirely; "QA" bypasses it
	// for callers presenting QAToken.
	Env     string `env:"TXCOORD_ENV" envDefault:"PROD"`
	QAToken string `env:"TXCOORD_QA_TOKEN"`

	// S3Bucket enables the blacklist audit archiver when non-empty.
	S3Bucket      string `env:"TXCOORD_S3_BUCKET"`
	S3Region      string `env:"TXCOORD_S3_REGION" envDefault:"us-east-1"`
	S3EndpointURL string `env:"TXCOORD_S3_ENDPOINT_URL"`
	S3Username    string `env:"TXCOORD_S3_USERNAME"`
	S3Password    string `env:"TXCOORD_S3_PASSWORD"`

	LogLevel string `env:"TXCOORD_LOG_LEVEL" envDefault:"INFO"`
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
