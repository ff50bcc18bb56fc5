package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store stores every logical path as a single object under one bucket
// and key prefix. Client construction uses config.LoadDefaultConfig
// plus endpoint/region/profile overrides via functional options. Unlike
// a presigned-redirect store, this one performs real gets/puts and
// streams bytes to clients directly rather than redirecting them to a
// presigned URL.
type S3Store struct {
	bucket string
	prefix string
	client *s3.Client
}

func NewS3Store(ctx context.Context, bucket, prefix string, optFns ...func(*config.LoadOptions) error) (*S3Store, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, err
	}
	return &S3Store{
		bucket: bucket,
		prefix: prefix,
		client: s3.NewFromConfig(awsConfig),
	}, nil
}

func (s *S3Store) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func isNotFound(err error) bool {
	var responseErr *awshttp.ResponseError
	if errors.As(err, &responseErr) {
		return responseErr.ResponseError.HTTPStatusCode() == http.StatusNotFound
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: aws(s.key(path))})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *S3Store) GetContent(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws(s.key(path))})
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) PutContent(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    aws(s.key(path)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3Store) StreamRead(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws(s.key(path))})
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// StreamWrite consumes r to completion before the object becomes
// visible, matching the adapter's contract that partial writes are
// never observable. The S3 PutObject API requires either a seekable
// body or a known length, so unlike the filesystem backend we must
// buffer the full stream before issuing the request.
func (s *S3Store) StreamWrite(ctx context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return s.PutContent(ctx, path, data)
}

func (s *S3Store) GetSize(ctx context.Context, path string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: aws(s.key(path))})
	if isNotFound(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if out.ContentLength == nil {
		return 0, errors.New("S3 HeadObject response missing ContentLength")
	}
	return *out.ContentLength, nil
}

func (s *S3Store) Remove(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: aws(s.key(path))})
	// S3 DeleteObject is already idempotent: deleting a missing key
	// succeeds rather than erroring.
	return err
}

func (s *S3Store) IsPrivate(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func aws(s string) *string { return &s }
