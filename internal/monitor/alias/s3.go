package alias

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/stepguard/pkg/log"
	"github.com/autopeer-io/stepguard/pkg/options"
)

var _ Backend = (*S3Backend)(nil)

// S3Backend stores the alias document as a single object in an S3 bucket.
type S3Backend struct {
	client *minio.Client
	bucket string
	key    string
}

// NewS3Backend creates the backend and makes sure the bucket exists.
func NewS3Backend(ctx context.Context, opts *options.S3Options, key string) (*S3Backend, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	b := &S3Backend{client: client, bucket: opts.BucketName, key: key}
	if err := b.ensureBucket(ctx, opts.Region); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *S3Backend) ensureBucket(ctx context.Context, region string) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	log.Info("Bucket does not exist, creating...", "bucket", b.bucket)
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (b *S3Backend) Load(ctx context.Context) (map[string]string, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", b.bucket, b.key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s/%s: %w", b.bucket, b.key, err)
	}
	return decode(data)
}

func (b *S3Backend) Save(ctx context.Context, names map[string]string) error {
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}

	_, err = b.client.PutObject(ctx, b.bucket, b.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
