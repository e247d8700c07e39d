package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/yakrover/agent-registry/interfaces"
)

// S3Store stores capability documents in an S3 bucket or a compatible
// object store. Objects are keyed by content address under a prefix.
type S3Store struct {
	client      *s3.S3
	bucket      string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Store creates an S3-backed content store. If accessKey and secretKey
// are empty the store relies on the ambient credential chain, which also
// covers public read-only buckets.
func NewS3Store(bucket, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Store, error) {
	cfg := aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucket, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	return &S3Store{
		client:      s3.New(sess),
		bucket:      bucket,
		prefix:      prefix,
		log:         log,
		locationURI: uri,
	}, nil
}

// Put uploads document bytes under their content address. Re-putting
// identical bytes overwrites the object with identical content.
func (s *S3Store) Put(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	addr := interfaces.ComputeContentAddress(data)

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(addr)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store document in S3: %w", err)
	}

	s.log.Debug("stored document in S3",
		slog.String("address", addr.String()),
		slog.Int("size", len(data)))
	return addr, nil
}

// Get downloads document bytes by content address.
func (s *S3Store) Get(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(addr)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, addr)
		}
		return nil, fmt.Errorf("failed to fetch document from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document from S3: %w", err)
	}
	return data, nil
}

// Available checks whether the bucket is reachable.
func (s *S3Store) Available(ctx context.Context) bool {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err == nil
}

// Name returns a unique identifier for this backend.
func (s *S3Store) Name() string {
	return fmt.Sprintf("s3-%s", s.bucket)
}

// LocationURI returns the URI this backend was constructed from.
func (s *S3Store) LocationURI() string {
	return s.locationURI
}

func (s *S3Store) objectKey(addr interfaces.ContentAddress) string {
	return path.Join(s.prefix, "documents", addr.String())
}
