package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/docurag/docurag/internal/config"
	"github.com/docurag/docurag/internal/core"
)

// S3ContentStore is a content-addressed blob store on S3. Keys derive from
// the content checksum, so the same bytes always land on the same key and
// a re-put of known content is skipped entirely.
type S3ContentStore struct {
	client *s3.Client
	bucket string
}

var _ core.ContentStore = (*S3ContentStore)(nil)

func NewS3ContentStore(ctx context.Context, cfg *cfg.Config) (*S3ContentStore, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.AwsRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	log.Println("content: connected to S3")

	return &S3ContentStore{client: client, bucket: cfg.BucketName}, nil
}

// ContentKey maps a checksum like "sha256:<hex>" onto the blob key layout.
func ContentKey(checksum string) string {
	algo, hex, ok := strings.Cut(checksum, ":")
	if !ok {
		algo, hex = "sha256", checksum
	}
	return path.Join("blobs", algo, hex)
}

// Put uploads data under its checksum-derived key. Putting bytes that are
// already stored is a no-op returning the same key, which keeps uploads of
// duplicate content free of a second write.
func (s *S3ContentStore) Put(ctx context.Context, checksum string, data []byte, contentType string) (string, error) {
	key := ContentKey(checksum)

	headCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := s.client.HeadObject(headCtx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return key, nil
	}
	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return "", fmt.Errorf("s3 head %q: %w", key, core.ErrStorageUnavailable)
	}

	uploader := manager.NewUploader(s.client)
	upCtx, cancelUp := context.WithTimeout(ctx, 2*time.Minute)
	defer cancelUp()

	_, err = uploader.Upload(upCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %q: %w", key, core.ErrStorageUnavailable)
	}
	return key, nil
}

func (s *S3ContentStore) Get(ctx context.Context, contentKey string) ([]byte, error) {
	getCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.GetObject(getCtx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(contentKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3 object %q: %w", contentKey, core.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get %q: %w", contentKey, core.ErrStorageUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (s *S3ContentStore) Delete(ctx context.Context, contentKey string) error {
	delCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.DeleteObject(delCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(contentKey),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %q: %w", contentKey, core.ErrStorageUnavailable)
	}
	return nil
}
