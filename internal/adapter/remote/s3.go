package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/semmidev/folderbak/internal/config"
	"github.com/semmidev/folderbak/internal/domain"
)

// deleteBatch is the DeleteObjects per-request key limit.
const deleteBatch = 1000

type s3API interface {
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Dialer treats "directories" as key prefixes under REMOTE_ROOT.
type S3Dialer struct {
	remote config.RemoteConfig
	cfg    config.S3Config
	logger Logger

	// newClient is replaced in tests.
	newClient func(ctx context.Context) (s3API, s3Uploader, error)
}

func NewS3(remote config.RemoteConfig, cfg config.S3Config, logger Logger) *S3Dialer {
	d := &S3Dialer{remote: remote, cfg: cfg, logger: logger}
	d.newClient = d.awsClient
	return d
}

func (d *S3Dialer) awsClient(ctx context.Context) (s3API, s3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if d.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(d.cfg.Region))
	}
	if d.cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.cfg.AccessKey, d.cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(d.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, s3manager.NewUploader(client), nil
}

func (d *S3Dialer) Connect(ctx context.Context) (domain.Session, error) {
	client, uploader, err := d.newClient(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.ErrConnection, "s3 client", "", err)
	}

	headCtx := ctx
	if d.remote.Timeout > 0 {
		var cancel context.CancelFunc
		headCtx, cancel = context.WithTimeout(ctx, d.remote.Timeout)
		defer cancel()
	}

	d.logger.Debugf("Checking access to s3://%s", d.cfg.Bucket)
	if _, err := client.HeadBucket(headCtx, &s3.HeadBucketInput{Bucket: aws.String(d.cfg.Bucket)}); err != nil {
		return nil, domain.Wrap(domain.ErrConnection, "head bucket "+d.cfg.Bucket, "", err)
	}

	return &s3Session{
		client:   client,
		uploader: uploader,
		bucket:   d.cfg.Bucket,
		prefix:   keyPrefix(d.remote.Root),
	}, nil
}

type s3Session struct {
	client   s3API
	uploader s3Uploader
	bucket   string
	prefix   string
}

func (s *s3Session) key(p string) string {
	return s.prefix + strings.Trim(p, "/")
}

func (s *s3Session) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})

	var entries []domain.RemoteEntry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			if name != "" {
				entries = append(entries, domain.RemoteEntry{Name: name, Kind: domain.EntryDir})
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if name != "" {
				entries = append(entries, domain.RemoteEntry{Name: name, Kind: domain.EntryFile})
			}
		}
	}

	return entries, nil
}

// EnsureDir is a no-op: prefixes exist as soon as an object is written.
func (s *s3Session) EnsureDir(ctx context.Context, p string) error {
	return ctx.Err()
}

func (s *s3Session) RemoveDirRecursive(ctx context.Context, p string) error {
	dirPrefix := s.key(p) + "/"
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dirPrefix),
	})

	var batch []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dirPrefix, err)
		}
		for _, obj := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == deleteBatch {
				if err := s.deleteObjects(ctx, batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
	}

	if len(batch) > 0 {
		return s.deleteObjects(ctx, batch)
	}
	return nil
}

func (s *s3Session) deleteObjects(ctx context.Context, objects []types.ObjectIdentifier) error {
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("failed to delete %d object(s) from S3, first %s: %s",
			len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
	}
	return nil
}

func (s *s3Session) Upload(ctx context.Context, localPath, remotePath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(remotePath)),
		Body:        file,
		ContentType: aws.String(contentType(remotePath)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

func (s *s3Session) Close() error {
	return nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".gz":
		return "application/gzip"
	case ".zst":
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}
