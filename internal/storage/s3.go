package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	pkgerrors "github.com/pkg/errors"
)

// S3Options are the settings carried in an s3:// connection string:
//
//	s3://?region=us-east-1&endpoint=http://localhost:4566&path_style=true&access_key=K&secret_key=S
//
// Containers map onto buckets.
type S3Options struct {
	Region    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string
	Profile   string
}

// ParseS3Connection extracts S3Options from an s3:// connection string.
func ParseS3Connection(connection string) (S3Options, error) {
	u, err := url.Parse(connection)
	if err != nil {
		return S3Options{}, pkgerrors.Wrap(err, "s3: parse connection")
	}
	q := u.Query()
	opts := S3Options{
		Region:    q.Get("region"),
		Endpoint:  q.Get("endpoint"),
		AccessKey: q.Get("access_key"),
		SecretKey: q.Get("secret_key"),
		Profile:   q.Get("profile"),
	}
	if v := q.Get("path_style"); v != "" {
		opts.PathStyle, err = strconv.ParseBool(v)
		if err != nil {
			return S3Options{}, pkgerrors.Wrapf(err, "s3: invalid path_style %q", v)
		}
	}
	if (opts.AccessKey == "") != (opts.SecretKey == "") {
		return S3Options{}, pkgerrors.New("s3: access_key and secret_key must be set together")
	}
	return opts, nil
}

// S3Backend is a Backend over Amazon S3 or an S3-compatible store.
type S3Backend struct {
	client *s3.Client
	region string
}

// NewS3Backend loads AWS configuration for the options in connection.
// Credentials fall back to the default chain when no keys are given.
func NewS3Backend(ctx context.Context, connection string) (*S3Backend, error) {
	opts, err := ParseS3Connection(connection)
	if err != nil {
		return nil, err
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "s3: load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Backend{client: client, region: awsCfg.Region}, nil
}

func (s *S3Backend) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(container)})
	if err == nil {
		return nil
	}
	if !isS3NotFound(err) {
		return pkgerrors.Wrapf(err, "s3: head bucket %s", container)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(container)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if pkgerrors.As(err, &owned) {
			return nil
		}
		return pkgerrors.Wrapf(err, "s3: create bucket %s", container)
	}
	return nil
}

func (s *S3Backend) UploadFile(ctx context.Context, container, name string, f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return pkgerrors.Wrap(err, "s3: stat source file")
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(container),
		Key:           aws.String(name),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "s3: put %s/%s", container, name)
	}
	return nil
}

func (s *S3Backend) DownloadFile(ctx context.Context, container, name string, f *os.File) (int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		if isS3NotFound(err) {
			return 0, pkgerrors.Wrapf(ErrNotFound, "s3: get %s/%s", container, name)
		}
		return 0, pkgerrors.Wrapf(err, "s3: get %s/%s", container, name)
	}
	defer out.Body.Close()

	n, err := io.Copy(f, out.Body)
	if err != nil {
		return n, pkgerrors.Wrapf(err, "s3: read body of %s/%s", container, name)
	}
	return n, nil
}

func (s *S3Backend) Stat(ctx context.Context, container, name string) (*BlobInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, pkgerrors.Wrapf(ErrNotFound, "s3: head %s/%s", container, name)
		}
		return nil, pkgerrors.Wrapf(err, "s3: head %s/%s", container, name)
	}

	info := &BlobInfo{Container: container, Name: name}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.LastModified = out.LastModified.UTC()
	}
	return info, nil
}

// Delete removes the object. S3 reports success for absent keys, so absence
// is only detected when the bucket itself is missing.
func (s *S3Backend) Delete(ctx context.Context, container, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		if isS3NotFound(err) {
			return pkgerrors.Wrapf(ErrNotFound, "s3: delete %s/%s", container, name)
		}
		return pkgerrors.Wrapf(err, "s3: delete %s/%s", container, name)
	}
	return nil
}

func (s *S3Backend) Close() error { return nil }

// isS3NotFound covers the typed errors and the bare status codes that
// S3-compatible stores return for HEAD requests.
func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if pkgerrors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if pkgerrors.As(err, &nsb) {
		return true
	}
	var notFound *types.NotFound
	if pkgerrors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if pkgerrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return true
		}
	}
	return false
}

var _ Backend = (*S3Backend)(nil)
