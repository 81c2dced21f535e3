package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// S3Config holds the settings for an S3 (or S3-compatible) store.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible services
	// (MinIO, Cloudflare R2). Empty means real AWS.
	Endpoint string
	// AccessKey/SecretKey select static credentials; when empty the default
	// AWS credential chain applies.
	AccessKey string
	SecretKey string
	// PublicBaseURL overrides the computed public URL prefix. Empty means
	// the standard virtual-hosted AWS form.
	PublicBaseURL string
}

// S3 implements Store backed by the AWS SDK.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	region  string
	baseURL string
}

var _ Store = (*S3)(nil)

// NewS3 builds an S3 store from the configuration. It does not contact the
// service; credential or endpoint problems surface on first use.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		baseURL: baseURL,
	}, nil
}

func (s *S3) Enabled() bool { return true }

// Put validates the upload and stores it under a fresh UUID filename that
// preserves the original extension.
func (s *S3) Put(ctx context.Context, up Upload) (string, error) {
	if len(up.Data) == 0 {
		return "", ErrEmptyFile
	}
	if !strings.HasPrefix(up.ContentType, imagePrefix) {
		return "", ErrNotImage
	}

	key := up.Folder + "/" + uuid.New().String() + path.Ext(up.Filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(up.Data),
		ContentType: aws.String(up.ContentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "put object %s", key)
	}

	return s.baseURL + "/" + key, nil
}

// Get downloads the object at key.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get object %s", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read object %s", key)
	}
	return data, nil
}

// Delete removes the object behind a public URL. URLs that do not belong to
// this store are ignored.
func (s *S3) Delete(ctx context.Context, url string) error {
	key := s.keyFromURL(url)
	if key == "" {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "delete object %s", key)
	}
	return nil
}

// Presign returns a temporary GET URL for key.
func (s *S3) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", errors.Wrapf(err, "presign object %s", key)
	}
	return req.URL, nil
}

// keyFromURL extracts the object key from a public URL produced by Put.
func (s *S3) keyFromURL(url string) string {
	if rest, ok := strings.CutPrefix(url, s.baseURL+"/"); ok {
		return rest
	}
	// Standard AWS form, tolerated even when a custom base URL is set.
	if _, rest, ok := strings.Cut(url, ".amazonaws.com/"); ok {
		return rest
	}
	return ""
}
