// Package avatar stores profile pictures in S3-compatible object storage
// (AWS S3, Cloudflare R2, MinIO).
package avatar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/xid"

	"github.com/sakif/waypoint/internal/apperror"
)

// MaxSize is the largest accepted upload.
const MaxSize = 5 << 20

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Uploader stores one avatar per user and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, userID string, body io.Reader) (string, error)
}

// objectPutter is the part of *s3.Client the uploader calls.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config describes the bucket.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // empty for AWS; the account endpoint for R2 or MinIO
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string // base URL objects are served from
}

// S3Uploader writes avatars to "avatars/{userID}".
type S3Uploader struct {
	client    objectPutter
	bucket    string
	publicURL string
}

var _ Uploader = (*S3Uploader)(nil)

// NewS3Uploader builds an S3 client from static credentials.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("avatar: loading S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Uploader(client, cfg.Bucket, cfg.PublicURL), nil
}

func newS3Uploader(client objectPutter, bucket, publicURL string) *S3Uploader {
	return &S3Uploader{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Key is the object key of userID's avatar.
func Key(userID string) string {
	return "avatars/" + userID
}

// Upload sniffs the content type, rejects non-images and oversize bodies,
// and overwrites the user's previous avatar. The returned URL carries a
// version parameter so clients do not keep showing a cached old image.
func (u *S3Uploader) Upload(ctx context.Context, userID string, body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("avatar: reading upload: %w", err)
	}
	if len(data) == 0 {
		return "", apperror.ValidationFailed("avatar", "image is empty")
	}
	if len(data) > MaxSize {
		return "", apperror.ValidationFailed("avatar", fmt.Sprintf("image must be %d MB or smaller", MaxSize>>20))
	}
	contentType := http.DetectContentType(data)
	if !allowedTypes[contentType] {
		return "", apperror.ValidationFailed("avatar", fmt.Sprintf("unsupported image type %s", contentType))
	}

	key := Key(userID)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", fmt.Errorf("avatar: uploading %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s?v=%s", u.publicURL, key, xid.New().String()), nil
}
