package fulfillment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/connorward/mycoshop/internal/pkg/catalog"
)

// S3Client wraps the S3 client with order-delivery functionality
type S3Client struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	config        *Config

	lifecycleOnce sync.Once
}

// NewS3Client creates a new S3 delivery client
func NewS3Client(cfg *Config) (*S3Client, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		config:        cfg,
	}, nil
}

// CustomerKey builds the per-order object key for one product file. The
// email is hashed so keys stay opaque and URL-safe.
func (c *S3Client) CustomerKey(email, orderID, productID, productFile string) string {
	emailHash := md5.Sum([]byte(email))
	return fmt.Sprintf("%s/%s/customers/%s/%s/%s",
		c.config.DeploymentPrefix, productID, hex.EncodeToString(emailHash[:]), orderID, productFile)
}

// CreatePresignedURLs copies each product file to a customer-scoped key and
// returns presigned GET URLs with the configured expiry. The bucket
// lifecycle rule that expires customer copies is installed on first use.
func (c *S3Client) CreatePresignedURLs(ctx context.Context, email, orderID string, product *catalog.Product) ([]string, error) {
	bucket := c.config.BucketName
	urls := make([]string, 0, len(product.FileList))

	for _, productFile := range product.FileList {
		customerKey := c.CustomerKey(email, orderID, product.ID, productFile)

		_, err := c.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(bucket),
			CopySource: aws.String(bucket + "/" + productFile),
			Key:        aws.String(customerKey),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", productFile, err)
		}

		presigned, err := c.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(customerKey),
		}, s3.WithPresignExpires(time.Duration(c.config.URLExpirySeconds)*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to presign %s: %w", customerKey, err)
		}

		log.Infof("created presigned URL that expires in %d seconds for email=%s order_id=%s (customer_file=%s)",
			c.config.URLExpirySeconds, email, orderID, customerKey)
		urls = append(urls, presigned.URL)
	}

	c.lifecycleOnce.Do(func() {
		if err := c.ensureLifecycleRule(ctx, product.ID); err != nil {
			log.Errorf("failed to configure customer-artifact lifecycle rule: %v", err)
		}
	})

	return urls, nil
}

// ensureLifecycleRule expires customer copies one day after the presigned
// URLs themselves expire, so the bucket does not accumulate per-order blobs.
func (c *S3Client) ensureLifecycleRule(ctx context.Context, productID string) error {
	prefix := fmt.Sprintf("%s/%s/customers/", c.config.DeploymentPrefix, productID)
	expiryDays := int32(c.config.URLExpiryDays() + 1)

	_, err := c.s3Client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(c.config.BucketName),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{
			Rules: []types.LifecycleRule{
				{
					ID:         aws.String("expire-customer-artifacts"),
					Status:     types.ExpirationStatusEnabled,
					Filter:     &types.LifecycleRuleFilter{Prefix: aws.String(prefix)},
					Expiration: &types.LifecycleExpiration{Days: aws.Int32(expiryDays)},
				},
			},
		},
	})
	return err
}
