package db

import (
	"context"
	"fmt"
	"net"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// GoogleCloudSQLConnector connects to Cloud SQL with IAM database authentication
// through the Cloud SQL Go Connector.
//
// Implements io.Closer; call Close() after the pool is closed to release the dialer.
type GoogleCloudSQLConnector struct {
	config *ConnectionConfig
	dialer *cloudsqlconn.Dialer
}

// NewGoogleCloudSQLConnector requires config.GoogleInstance (project:region:instance).
func NewGoogleCloudSQLConnector(config *ConnectionConfig) (*GoogleCloudSQLConnector, error) {
	if config.GoogleInstance == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires --google-instance (project:region:instance): %w", txwrap.ErrInvalidConfig)
	}
	return &GoogleCloudSQLConnector{config: config}, nil
}

func (c *GoogleCloudSQLConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := parsePoolConfig(c.config.ConnString)
	if err != nil {
		return nil, err
	}

	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud SQL dialer: %w", err)
	}

	instance := c.config.GoogleInstance
	poolConfig.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, instance)
	}

	pool, err := openPool(ctx, poolConfig)
	if err != nil {
		dialer.Close()
		return nil, err
	}
	c.dialer = dialer
	return pool, nil
}

// Close releases the Cloud SQL dialer.
func (c *GoogleCloudSQLConnector) Close() error {
	if c.dialer != nil {
		c.dialer.Close()
		c.dialer = nil
	}
	return nil
}
