package minio

import (
	"Huddle/internal/api/config"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// UploadAttachment stores an attachment and returns its object key.
func UploadAttachment(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	if Client == nil {
		return "", fmt.Errorf("minio client is not initialized")
	}

	uploadInfo, err := Client.PutObject(ctx, AttachmentBucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return uploadInfo.Key, nil
}

func DeleteAttachment(ctx context.Context, objectName string) error {
	if Client == nil {
		return fmt.Errorf("minio client is not initialized")
	}
	err := Client.RemoveObject(ctx, AttachmentBucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// PublicURL builds the direct link of an object behind the external endpoint.
func PublicURL(cfg config.MinIOConfig, objectName string) string {
	return fmt.Sprintf("https://%s/%s/%s", cfg.ExternalEndpoint, cfg.AttachmentBucket, objectName)
}

// AttachmentResolver turns stored attachment references into URLs a
// browser can load. Absolute URLs pass through untouched.
type AttachmentResolver struct {
	client *minio.Client
	cfg    config.MinIOConfig
}

func NewAttachmentResolver(client *minio.Client, cfg config.MinIOConfig) *AttachmentResolver {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = time.Hour
	}
	return &AttachmentResolver{client: client, cfg: cfg}
}

func (r *AttachmentResolver) ResolveAttachment(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	ref = strings.TrimPrefix(ref, "/")
	if r.cfg.UsePublicLink || r.client == nil {
		return PublicURL(r.cfg, ref), nil
	}
	u, err := r.client.PresignedGetObject(ctx, r.cfg.AttachmentBucket, ref, r.cfg.PresignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign attachment: %w", err)
	}
	return u.String(), nil
}
