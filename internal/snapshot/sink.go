package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"mdstore/internal/domain"
)

// Sink stores the bytes of one snapshot.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	// Read returns a *domain.NotFoundError when nothing has been written yet.
	Read(ctx context.Context) ([]byte, error)
	String() string
}

// FileSink writes snapshots to a local file. Writes go to a temporary file in
// the same directory which is then renamed over the target.
type FileSink struct {
	Path string
}

// NewFileSink creates a sink for path.
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

func (s *FileSink) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (s *FileSink) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound("snapshot %q does not exist", s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

func (s *FileSink) String() string { return s.Path }

// S3API is the subset of the S3 client the sink uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures the client built by ParseLocation for s3:// locations.
type S3Options struct {
	Region   string
	KeyID    string
	Secret   string
	Endpoint string // host, without scheme; empty for AWS
}

// S3Sink writes snapshots to one object in an S3-compatible bucket.
type S3Sink struct {
	client S3API
	bucket string
	key    string
}

// NewS3Sink creates a sink for bucket/key on client.
func NewS3Sink(client S3API, bucket, key string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, key: key}
}

// DefaultS3Region is used when S3Options leaves the region empty.
const DefaultS3Region = "us-east-1"

// NewS3Client builds a path-style client for S3-compatible storage. Requests
// are always signed with the static key pair, which must be set.
func NewS3Client(opts S3Options) (*s3.Client, error) {
	if opts.KeyID == "" || opts.Secret == "" {
		return nil, domain.ErrValidation("s3 snapshot locations need an access key id and secret")
	}
	region := opts.Region
	if region == "" {
		region = DefaultS3Region
	}
	o := s3.Options{
		Region:       region,
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(opts.KeyID, opts.Secret, ""),
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		o.BaseEndpoint = aws.String(endpoint)
	}
	return s3.New(o), nil
}

func (s *S3Sink) Write(ctx context.Context, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", s, err)
	}
	return nil
}

func (s *S3Sink) Read(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, domain.ErrNotFound("snapshot %s does not exist", s)
		}
		return nil, fmt.Errorf("get snapshot %s: %w", s, err)
	}
	defer out.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s, err)
	}
	return data, nil
}

func (s *S3Sink) String() string { return "s3://" + s.bucket + "/" + s.key }

// ParseLocation returns the sink for raw: s3://bucket/key goes to S3, and
// anything else (optionally file://) is a local path.
func ParseLocation(raw string, s3opts S3Options) (Sink, error) {
	if raw == "" {
		return nil, &domain.NoStoreLocationError{}
	}
	if !strings.Contains(raw, "://") {
		return NewFileSink(raw), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot location %q: %w", raw, err)
	}
	switch u.Scheme {
	case "file":
		return NewFileSink(u.Host + u.Path), nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, domain.ErrValidation("s3 location %q needs a bucket and a key", raw)
		}
		client, err := NewS3Client(s3opts)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(client, u.Host, key), nil
	default:
		return nil, domain.ErrValidation("unsupported snapshot location scheme %q", u.Scheme)
	}
}

// Save encodes doc with the encoding matching the sink's location and writes it.
func Save(ctx context.Context, sink Sink, doc *Document) error {
	data, err := Marshal(doc, EncodingFor(sink.String()))
	if err != nil {
		return err
	}
	return sink.Write(ctx, data)
}

// Read loads and validates the document held by sink.
func Read(ctx context.Context, sink Sink) (*Document, error) {
	data, err := sink.Read(ctx)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data, EncodingFor(sink.String()))
}
