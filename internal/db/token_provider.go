package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// TokenProvider abstracts cloud token acquisition for database authentication.
// The token is used as the password when connecting to cloud-hosted PostgreSQL.
type TokenProvider interface {
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)
}

// AzurePostgreSQLScope is the OAuth scope for Azure Database for PostgreSQL.
const AzurePostgreSQLScope = "https://ossrdbms-aad.database.windows.net/.default"

// AWSIAMTokenProvider builds RDS IAM authentication tokens from the default
// AWS credential chain.
type AWSIAMTokenProvider struct {
	endpoint string // host:port
	region   string
	username string
}

func newAWSProvider(config *ConnectionConfig, poolConfig *pgxpool.Config) (TokenProvider, error) {
	cc := poolConfig.ConnConfig
	if config.AWSRegion == "" {
		return nil, fmt.Errorf("AWS IAM auth requires a region (use --aws-region or $AWS_REGION): %w", txwrap.ErrInvalidConfig)
	}
	if cc.User == "" {
		return nil, fmt.Errorf("AWS IAM auth requires a database username: %w", txwrap.ErrInvalidConfig)
	}
	return &AWSIAMTokenProvider{
		endpoint: fmt.Sprintf("%s:%d", cc.Host, cc.Port),
		region:   config.AWSRegion,
		username: cc.User,
	}, nil
}

// GetToken builds a token valid for 15 minutes.
func (p *AWSIAMTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	token, err := auth.BuildAuthToken(ctx, p.endpoint, p.region, p.username, cfg.Credentials)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build RDS auth token: %w", err)
	}
	return token, time.Now().Add(15 * time.Minute), nil
}

// AzureTokenProvider acquires Entra ID tokens, from a service principal when
// tenant, client and secret are all set and from DefaultAzureCredential otherwise.
type AzureTokenProvider struct {
	credential azcore.TokenCredential
}

func newAzureProvider(config *ConnectionConfig, _ *pgxpool.Config) (TokenProvider, error) {
	var cred azcore.TokenCredential
	var err error
	if config.AzureTenantID != "" && config.AzureClientID != "" && config.AzureClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(config.AzureTenantID, config.AzureClientID, config.AzureClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return &AzureTokenProvider{credential: cred}, nil
}

func (p *AzureTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	token, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{AzurePostgreSQLScope},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("azure token acquisition failed: %w", err)
	}
	return token.Token, token.ExpiresOn, nil
}
