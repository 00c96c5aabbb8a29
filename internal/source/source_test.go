package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	err     error
	gets    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.gets = append(f.gets, key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		input      string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"s3://exports/2024/03/orders.csv", "exports", "2024/03/orders.csv", false},
		{" S3://exports/orders.csv ", "exports", "orders.csv", false},
		{"s3://exports", "", "", true},
		{"s3://exports/", "", "", true},
		{"s3:///orders.csv", "", "", true},
		{"s3://exports/dir/", "", "", true},
		{"/tmp/orders.csv", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestFetch_LocalPassesThrough(t *testing.T) {
	f := NewFetcher()
	file, err := f.Fetch(context.Background(), " /data/orders.csv ")
	require.NoError(t, err)
	assert.Equal(t, "/data/orders.csv", file.Path)
	assert.Equal(t, "/data/orders.csv", file.SourcePath)
	assert.NoError(t, file.Close())
}

func TestFetch_Empty(t *testing.T) {
	_, err := NewFetcher().Fetch(context.Background(), "  ")
	assert.ErrorIs(t, err, core.ErrNoFile)
}

func TestFetch_S3Download(t *testing.T) {
	s3c := &fakeS3{objects: map[string]string{
		"exports/2024/orders.csv": "Order ID\nA-1\n",
	}}
	f := NewFetcher(WithS3(s3c), WithTempDir(t.TempDir()))

	file, err := f.Fetch(context.Background(), "s3://exports/2024/orders.csv")
	require.NoError(t, err)

	assert.Equal(t, "s3://exports/2024/orders.csv", file.SourcePath)
	assert.Equal(t, "orders.csv", filepath.Base(file.Path), "temp copy keeps the .csv name")

	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "Order ID\nA-1\n", string(data))

	require.NoError(t, file.Close())
	_, err = os.Stat(file.Path)
	assert.True(t, os.IsNotExist(err), "Close removes the temp copy")
}

func TestFetch_S3MaxSize(t *testing.T) {
	s3c := &fakeS3{objects: map[string]string{"b/big.csv": strings.Repeat("x", 100)}}
	f := NewFetcher(WithS3(s3c), WithTempDir(t.TempDir()), WithMaxSize(10))

	file, err := f.Fetch(context.Background(), "s3://b/big.csv")
	require.NoError(t, err)
	defer file.Close()

	info, err := os.Stat(file.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size())
}

func TestFetch_S3Errors(t *testing.T) {
	t.Run("missing object", func(t *testing.T) {
		f := NewFetcher(WithS3(&fakeS3{}))
		_, err := f.Fetch(context.Background(), "s3://b/missing.csv")
		assert.ErrorIs(t, err, core.ErrFileNotFound)
		var ve *core.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("transport failure", func(t *testing.T) {
		f := NewFetcher(WithS3(&fakeS3{err: errors.New("dial tcp: i/o timeout")}))
		_, err := f.Fetch(context.Background(), "s3://b/orders.csv")
		assert.ErrorContains(t, err, "i/o timeout")
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewFetcher().Fetch(context.Background(), "s3://b/orders.csv")
		assert.ErrorContains(t, err, "s3 is not configured")
	})

	t.Run("bad uri", func(t *testing.T) {
		s3c := &fakeS3{}
		_, err := NewFetcher(WithS3(s3c)).Fetch(context.Background(), "s3://bucket-only")
		var ve *core.ValidationError
		assert.True(t, errors.As(err, &ve))
		assert.Empty(t, s3c.gets)
	})
}

func TestNewS3Client(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3Config{
		Endpoint:     "localhost:9000",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	opts := client.Options()
	assert.Equal(t, "us-east-1", opts.Region)
	assert.True(t, opts.UsePathStyle)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "https://localhost:9000", *opts.BaseEndpoint)
}
