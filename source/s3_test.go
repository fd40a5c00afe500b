package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	ranges  []string
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	rng := aws.ToString(params.Range)
	f.ranges = append(f.ranges, rng)

	var start, end int64
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
		return nil, fmt.Errorf("unexpected range %q", rng)
	}
	part := data[start : end+1]

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(part)),
		ContentLength: aws.Int64(int64(len(part))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(data))),
	}, nil
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		url        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{url: "s3://artifacts/builds/app.ipa", wantBucket: "artifacts", wantKey: "builds/app.ipa"},
		{url: "s3://artifacts/app.ipa", wantBucket: "artifacts", wantKey: "app.ipa"},
		{url: "s3://artifacts", wantErr: true},
		{url: "s3://artifacts/", wantErr: true},
		{url: "https://artifacts/app.ipa", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			bucket, key, err := ParseS3URL(tt.url)
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

func TestOpenS3Object(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{"builds/app.ipa": []byte("0123456789")}}

	src, err := OpenS3Object(context.Background(), client, "artifacts", "builds/app.ipa")
	require.NoError(t, err)
	assert.Equal(t, int64(10), src.Size())

	buf := make([]byte, 4)
	n, eof, err := src.Read(buf)
	require.NoError(t, err)
	assert.False(t, eof)
	assert.Equal(t, "0123", string(buf[:n]))

	require.NoError(t, src.SeekTo(7))
	n, eof, err = src.Read(buf)
	require.NoError(t, err)
	assert.True(t, eof)
	assert.Equal(t, "789", string(buf[:n]))

	assert.Equal(t, []string{"bytes=0-3", "bytes=7-9"}, client.ranges)
}

func TestOpenS3Object_NotFound(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}

	_, err := OpenS3Object(context.Background(), client, "artifacts", "missing.ipa")

	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestOpenS3_InvalidParams(t *testing.T) {
	_, err := OpenS3(context.Background(), S3Params{Key: "app.ipa", Region: "us-east-1"}, nil)
	assert.Error(t, err)

	_, err = OpenS3(context.Background(), S3Params{Bucket: "artifacts", Region: "us-east-1"}, nil)
	assert.Error(t, err)
}
