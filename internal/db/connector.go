package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// Connection pool configuration constants
const (
	// DefaultMaxConns limits concurrent connections; the wrapper drives one
	// connection per logical caller.
	DefaultMaxConns = 4

	// DefaultMinConns maintains at least one connection in the pool.
	DefaultMinConns = 1

	// DefaultMaxConnIdleTime closes connections left idle between runs.
	DefaultMaxConnIdleTime = 5 * time.Minute
)

// AuthMethod selects how the connector authenticates.
type AuthMethod string

const (
	AuthMethodStandard     AuthMethod = "standard"
	AuthMethodAWSIAM       AuthMethod = "aws-iam"
	AuthMethodGoogleIAM    AuthMethod = "google-iam"
	AuthMethodAzureEntraID AuthMethod = "azure-entra"
)

// ParseAuthMethod accepts the method names above; empty means standard.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch m := AuthMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return AuthMethodStandard, nil
	case AuthMethodStandard, AuthMethodAWSIAM, AuthMethodGoogleIAM, AuthMethodAzureEntraID:
		return m, nil
	}
	return "", fmt.Errorf("auth method %q: %w", s, txwrap.ErrUnsupportedAuthMethod)
}

// ConnectionConfig describes how to reach the database.
type ConnectionConfig struct {
	// ConnString is a PostgreSQL URI or keyword/value connection string.
	ConnString string
	AuthMethod AuthMethod

	AWSRegion         string
	GoogleInstance    string
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string
}

// Connector opens a connection pool.
type Connector interface {
	Connect(ctx context.Context) (*pgxpool.Pool, error)
}

// NewConnector is a factory function that creates the appropriate Connector
// based on the ConnectionConfig's AuthMethod.
func NewConnector(config *ConnectionConfig) (Connector, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("connection string is required: %w", txwrap.ErrInvalidConfig)
	}

	switch config.AuthMethod {
	case AuthMethodStandard, "":
		return &StandardConnector{config: config}, nil
	case AuthMethodAWSIAM:
		return &TokenConnector{config: config, providerName: "AWS IAM", newProvider: newAWSProvider}, nil
	case AuthMethodAzureEntraID:
		return &TokenConnector{config: config, providerName: "Azure", newProvider: newAzureProvider}, nil
	case AuthMethodGoogleIAM:
		c, err := NewGoogleCloudSQLConnector(config)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported auth method %v: %w", config.AuthMethod, txwrap.ErrUnsupportedAuthMethod)
	}
}

// StandardConnector connects with the credentials in the connection string
// (or the usual PG* environment variables and ~/.pgpass, as pgx resolves them).
type StandardConnector struct {
	config *ConnectionConfig
}

func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := parsePoolConfig(c.config.ConnString)
	if err != nil {
		return nil, err
	}
	return openPool(ctx, poolConfig)
}

// TokenConnector uses a short-lived cloud token as the password. A fresh token is
// fetched before every new physical connection.
type TokenConnector struct {
	config       *ConnectionConfig
	providerName string
	newProvider  func(config *ConnectionConfig, poolConfig *pgxpool.Config) (TokenProvider, error)
}

func (c *TokenConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := parsePoolConfig(c.config.ConnString)
	if err != nil {
		return nil, err
	}

	provider, err := c.newProvider(c.config, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s token provider: %w", c.providerName, err)
	}

	poolConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, _, err := provider.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire %s token: %w", c.providerName, err)
		}
		cc.Password = token
		return nil
	}

	return openPool(ctx, poolConfig)
}

func parsePoolConfig(connString string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w: %w", txwrap.ErrInvalidConfig, err)
	}
	poolConfig.MaxConns = DefaultMaxConns
	poolConfig.MinConns = DefaultMinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	return poolConfig, nil
}

func openPool(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", txwrap.ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w to %s:%d: %w", txwrap.ErrConnectionFailed,
			poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Port, err)
	}
	return pool, nil
}
