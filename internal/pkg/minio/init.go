package minio

import (
	"Huddle/internal/api/config"
	"context"
	"fmt"
	log "log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// Client is the shared MinIO client.
	Client *minio.Client
	// AttachmentBucket holds uploaded message attachments.
	AttachmentBucket string
)

// Init connects the client and makes sure the attachment bucket exists.
func Init(cfg config.MinIOConfig) error {
	var endpoint string
	var useSSL bool
	if cfg.InternalEndpoint != "" {
		endpoint = cfg.InternalEndpoint
		useSSL = cfg.InternalUseSSL
	} else {
		endpoint = cfg.ExternalEndpoint
		useSSL = true
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.AttachmentBucket)
	if err != nil {
		return fmt.Errorf("failed to connect to minio server: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.AttachmentBucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create attachment bucket: %w", err)
		}
		log.Info("attachment bucket created", "bucket", cfg.AttachmentBucket)
	}

	if cfg.UsePublicLink {
		// public links skip presigning, so objects must be anonymously readable
		if err := client.SetBucketPolicy(ctx, cfg.AttachmentBucket, publicReadPolicy(cfg.AttachmentBucket)); err != nil {
			return fmt.Errorf("failed to set attachment bucket policy: %w", err)
		}
	}

	Client = client
	AttachmentBucket = cfg.AttachmentBucket
	return nil
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
