package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds the S3-compatible bucket that keeps raw webhook deliveries
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible providers
}

// PutObjectAPI is the part of the S3 client the archive needs
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// EventArchive stores each verified delivery body for replay and audits
type EventArchive struct {
	client PutObjectAPI
	bucket string
}

// NewS3Client builds a client from static credentials, falling back to the default chain
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.Endpoint != "" {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}), nil
	}
	return s3.NewFromConfig(awsCfg), nil
}

func NewEventArchive(client PutObjectAPI, bucket string) *EventArchive {
	return &EventArchive{client: client, bucket: bucket}
}

// Key is webhooks/<event type>/<yyyy>/<mm>/<dd>/<message id>.json
func Key(eventType, messageID string, at time.Time) string {
	at = at.UTC()
	return path.Join("webhooks", eventType, at.Format("2006"), at.Format("01"), at.Format("02"), messageID+".json")
}

func (a *EventArchive) Store(ctx context.Context, eventType, messageID string, body []byte, at time.Time) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(Key(eventType, messageID, at)),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("archive %s to %s: %w", messageID, a.bucket, err)
	}
	return nil
}
