// Package objstore deletes recording objects from cloud object storage once
// they have been reconciled onto a device. Deletion is best effort; a
// leftover object costs storage, not correctness.
package objstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Remover deletes a single object from a bucket.
type Remover interface {
	RemoveObject(ctx context.Context, bucket, objectPath string) error
}

// Config holds the object-storage connection settings.
type Config struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// S3Remover implements Remover against S3-compatible storage (AWS or MinIO).
type S3Remover struct {
	client *s3.Client
}

func NewS3Remover(ctx context.Context, cfg Config) (*S3Remover, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	return &S3Remover{client: client}, nil
}

func (r *S3Remover) RemoveObject(ctx context.Context, bucket, objectPath string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectPath),
	})
	return err
}

// NopRemover ignores every delete. Used when the device has no direct
// object-store credentials.
type NopRemover struct{}

func (NopRemover) RemoveObject(ctx context.Context, bucket, objectPath string) error { return nil }
