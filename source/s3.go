package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const numHeadRetries = 3

// ErrObjectNotFound is returned when the S3 object does not exist.
var ErrObjectNotFound = errors.New("object not found in s3 bucket")

// S3Params ...
type S3Params struct {
	Bucket          string
	Key             string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3API is the subset of the S3 client used by S3 sources.
type S3API interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ParseS3URL splits s3://bucket/key into its bucket and key.
func ParseS3URL(s3URL string) (string, string, error) {
	rest, ok := strings.CutPrefix(s3URL, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%s is not an s3:// URL", s3URL)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%s must have the form s3://bucket/key", s3URL)
	}
	return bucket, key, nil
}

// OpenS3 returns a Source reading the object described by params.
func OpenS3(ctx context.Context, params S3Params, logger log.Logger) (*Source, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}
	if params.Key == "" {
		return nil, fmt.Errorf("key must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	return OpenS3Object(ctx, s3.NewFromConfig(*cfg), params.Bucket, params.Key)
}

// OpenS3Object returns a Source reading bucket/key through client.
// Every Read downloads exactly the requested range.
func OpenS3Object(ctx context.Context, client S3API, bucket, key string) (*Source, error) {
	size, err := objectSize(ctx, client, bucket, key)
	if err != nil {
		return nil, err
	}

	return New(&s3ObjectReader{
		ctx:        ctx,
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		key:        key,
		size:       size,
	}, size), nil
}

func objectSize(ctx context.Context, client S3API, bucket, key string) (int64, error) {
	var size int64
	err := retry.Times(numHeadRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					return fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound), true
				}
			}
			return fmt.Errorf("head object: %w", err), false
		}

		size = aws.ToInt64(out.ContentLength)
		return nil, true
	})

	return size, err
}

// s3ObjectReader is an io.ReadSeeker over an S3 object.
type s3ObjectReader struct {
	ctx        context.Context
	downloader *manager.Downloader
	bucket     string
	key        string
	size       int64
	pos        int64
}

func (r *s3ObjectReader) Read(p []byte) (int, error) {
	if r.pos >= r.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	end := r.pos + int64(len(p)) - 1
	if end >= r.size {
		end = r.size - 1
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, end-r.pos+1))
	n, err := r.downloader.Download(r.ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", r.pos, end)),
	})
	if err != nil {
		return 0, fmt.Errorf("download range %d-%d: %w", r.pos, end, err)
	}

	copied := copy(p, buf.Bytes()[:n])
	r.pos += int64(copied)
	return copied, nil
}

func (r *s3ObjectReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	r.pos = abs
	return abs, nil
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
