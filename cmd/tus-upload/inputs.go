package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-tusclient/source"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

const (
	uploadURLKey        = "TUS_UPLOAD_URL"
	sourceKey           = "TUS_SOURCE"
	compressKey         = "TUS_COMPRESS"
	compressionLevelKey = "TUS_COMPRESSION_LEVEL"
	awsRegionKey        = "AWS_REGION"
	awsAccessKeyIDKey   = "AWS_ACCESS_KEY_ID"
	awsSecretKeyKey     = "AWS_SECRET_ACCESS_KEY"
)

type inputs struct {
	UploadURL        string
	Source           string
	Compress         bool
	CompressionLevel int
	AWSRegion        string
	AWSAccessKeyID   string
	AWSSecretKey     string
}

func parseInputs(envRepo env.Repository) (inputs, error) {
	in := inputs{
		UploadURL:      strings.TrimSpace(envRepo.Get(uploadURLKey)),
		Source:         strings.TrimSpace(envRepo.Get(sourceKey)),
		AWSRegion:      envRepo.Get(awsRegionKey),
		AWSAccessKeyID: envRepo.Get(awsAccessKeyIDKey),
		AWSSecretKey:   envRepo.Get(awsSecretKeyKey),
	}
	if in.UploadURL == "" {
		return inputs{}, fmt.Errorf("%s must be set", uploadURLKey)
	}
	if in.Source == "" {
		return inputs{}, fmt.Errorf("%s must be set", sourceKey)
	}

	if v := envRepo.Get(compressKey); v != "" {
		compress, err := strconv.ParseBool(v)
		if err != nil {
			return inputs{}, fmt.Errorf("parse %s: %w", compressKey, err)
		}
		in.Compress = compress
	}
	if v := envRepo.Get(compressionLevelKey); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return inputs{}, fmt.Errorf("parse %s: %w", compressionLevelKey, err)
		}
		in.CompressionLevel = level
	}

	if in.Compress && isRemote(in.Source) {
		return inputs{}, fmt.Errorf("%s is only supported for local files", compressKey)
	}

	return in, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "s3://")
}

func openSource(ctx context.Context, in inputs, logger log.Logger) (*source.Source, error) {
	switch {
	case strings.HasPrefix(in.Source, "s3://"):
		bucket, key, err := source.ParseS3URL(in.Source)
		if err != nil {
			return nil, err
		}
		return source.OpenS3(ctx, source.S3Params{
			Bucket:          bucket,
			Key:             key,
			Region:          in.AWSRegion,
			AccessKeyID:     in.AWSAccessKeyID,
			SecretAccessKey: in.AWSSecretKey,
		}, logger)
	case isRemote(in.Source):
		return source.Download(ctx, in.Source, nil, logger)
	}

	path, err := source.Resolve(in.Source)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Resolved %s to %s", in.Source, path)

	if in.Compress {
		return source.OpenCompressed(path, in.CompressionLevel, logger)
	}
	return source.Open(path)
}
