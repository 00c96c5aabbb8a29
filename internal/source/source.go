// Package source turns a `process` argument into a local file the ingestion
// engine can read. Local paths pass through; s3://bucket/key objects are
// downloaded to a temp file that keeps the object's base name.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const s3Scheme = "s3://"

// ObjectGetter is the part of *s3.Client the fetcher uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// File is a readable local copy of an input.
type File struct {
	// Path is where the engine reads from.
	Path string
	// SourcePath is what jobs and the ledger record.
	SourcePath string

	cleanup func() error
}

// Close removes any temp copy. It is safe to call on local files.
func (f *File) Close() error {
	if f == nil || f.cleanup == nil {
		return nil
	}
	return f.cleanup()
}

// Fetcher resolves input references.
type Fetcher struct {
	s3      ObjectGetter
	tempDir string
	maxSize int64
	logger  *slog.Logger
}

type Option func(*Fetcher)

// WithS3 enables s3:// inputs.
func WithS3(client ObjectGetter) Option {
	return func(f *Fetcher) { f.s3 = client }
}

// WithTempDir sets where downloads are written. Defaults to os.TempDir.
func WithTempDir(dir string) Option {
	return func(f *Fetcher) { f.tempDir = dir }
}

// WithMaxSize stops a download one byte past n so the engine's size check
// rejects it without pulling the whole object.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) { f.maxSize = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsS3URI reports whether ref names an S3 object.
func IsS3URI(ref string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ref)), s3Scheme)
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(ref string) (bucket, key string, err error) {
	ref = strings.TrimSpace(ref)
	if !IsS3URI(ref) {
		return "", "", fmt.Errorf("not an s3 uri: %q", ref)
	}
	rest := ref[len(s3Scheme):]
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 uri %q must be s3://bucket/key", ref)
	}
	return bucket, key, nil
}

// Fetch returns a local file for ref. The caller must Close it.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*File, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &core.ValidationError{Err: core.ErrNoFile}
	}
	if !IsS3URI(ref) {
		return &File{Path: ref, SourcePath: ref}, nil
	}
	return f.fetchS3(ctx, ref)
}

func (f *Fetcher) fetchS3(ctx context.Context, ref string) (*File, error) {
	if f.s3 == nil {
		return nil, fmt.Errorf("fetch %s: s3 is not configured", ref)
	}

	bucket, key, err := ParseS3URI(ref)
	if err != nil {
		return nil, &core.ValidationError{Input: ref, Err: err}
	}

	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var noSuchBucket *types.NoSuchBucket
		if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
			return nil, &core.ValidationError{Input: ref, Err: core.ErrFileNotFound}
		}
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	defer out.Body.Close()

	dir, err := os.MkdirTemp(f.tempDir, "ingest-s3-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	local := filepath.Join(dir, path.Base(key))
	dst, err := os.Create(local)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	var body io.Reader = out.Body
	if f.maxSize > 0 {
		body = io.LimitReader(out.Body, f.maxSize+1)
	}

	n, err := io.Copy(dst, body)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("download %s: %w", ref, err)
	}

	f.logger.Info("downloaded s3 object",
		"bucket", bucket,
		"key", key,
		"bytes", n,
	)

	return &File{Path: local, SourcePath: ref, cleanup: cleanup}, nil
}
