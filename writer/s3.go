package writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	appconfig "eurexflow/config"
	"eurexflow/logger"
)

// s3Uploader pushes finished parquet partitions to S3. Uploads are throttled
// so a large backfill does not saturate the bucket's request quota.
type s3Uploader struct {
	client  *s3.Client
	bucket  string
	limiter *rate.Limiter
	log     *logger.Log
}

func newS3Uploader(cfg *appconfig.Config) (*s3Uploader, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	// Configure AWS options
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_uploader").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	// Validate credentials
	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	perSec := cfg.Storage.S3.UploadsPerSec
	if perSec <= 0 {
		perSec = 5
	}

	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 uploader initialized")

	return &s3Uploader{
		client:  client,
		bucket:  cfg.Storage.S3.Bucket,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		log:     log,
	}, nil
}

// Upload writes one object, waiting on the rate limiter first.
func (u *s3Uploader) Upload(ctx context.Context, key string, data []byte) error {
	if err := u.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"s3_key": key,
		"bytes":  len(data),
	}).Debug("uploaded partition")
	return nil
}
