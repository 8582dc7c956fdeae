package fulfillment

import (
	"errors"
	"strconv"

	"github.com/connorward/mycoshop/internal/pkg/env"
)

// Config holds S3 delivery configuration
type Config struct {
	AccessKeyID      string
	SecretAccessKey  string
	Region           string
	BucketName       string
	EndpointURL      string // Optional for S3-compatible services
	URLExpirySeconds int
	DeploymentPrefix string // prod/dev key prefix for customer artifacts
	SupportEmail     string
}

const defaultURLExpirySeconds = 172800 // 2 days

// LoadConfig loads delivery configuration from environment variables
func LoadConfig() (*Config, error) {
	expiry := defaultURLExpirySeconds
	if v := env.GetEnv("S3_URL_EXPIRATION_SECONDS", ""); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, errors.New("S3_URL_EXPIRATION_SECONDS must be a positive integer")
		}
		expiry = parsed
	}

	prefix := "prod"
	if env.IsDev() {
		prefix = "dev"
	}

	config := &Config{
		AccessKeyID:      env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey:  env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:           env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:       env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:      env.GetEnv("S3_ENDPOINT_URL", ""),
		URLExpirySeconds: expiry,
		DeploymentPrefix: prefix,
		SupportEmail:     env.GetEnv("SUPPORT_EMAIL", ""),
	}

	if config.AccessKeyID == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID is required")
	}
	if config.SecretAccessKey == "" {
		return nil, errors.New("S3_SECRET_ACCESS_KEY is required")
	}
	if config.BucketName == "" {
		return nil, errors.New("S3_BUCKET_NAME is required")
	}

	return config, nil
}

// URLExpiryDays returns the link lifetime rounded down to whole days.
func (c *Config) URLExpiryDays() int {
	return c.URLExpirySeconds / 86400
}
