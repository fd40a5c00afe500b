// Command tus-upload sends one file to an existing tus upload URL, continuing
// from the offset the server already holds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrise-io/go-tusclient/analytics"
	"github.com/bitrise-io/go-tusclient/export"
	"github.com/bitrise-io/go-tusclient/source"
	"github.com/bitrise-io/go-tusclient/tus"
	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

type resultExporter interface {
	ExportUploadResult(result export.Result) error
}

func main() {
	logger := log.NewLogger()
	envRepo := env.NewRepository()
	exporter := export.NewExporter(command.NewFactory(envRepo))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, envRepo, logger, exporter); err != nil {
		logger.Errorf("%s", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, envRepo env.Repository, logger log.Logger, exporter resultExporter) error {
	config, err := tus.ConfigFromEnv(envRepo)
	if err != nil {
		return err
	}
	logger.EnableDebugLog(config.Verbose)

	in, err := parseInputs(envRepo)
	if err != nil {
		return err
	}

	src, err := openSource(ctx, in, logger)
	if err != nil {
		return fmt.Errorf("open source %s: %w", in.Source, err)
	}

	upload, err := tus.NewUpload(in.UploadURL, src.Size(), func() {
		logger.Donef("Upload of %s finished", units.HumanSize(float64(src.Size())))
	})
	if err != nil {
		_ = src.Close()
		return err
	}

	var target tus.Target = upload
	tracker, err := analytics.NewDefaultUploadTracker(envRepo, logger)
	if err != nil {
		logger.Debugf("Upload analytics disabled: %s", err)
	} else {
		trackedTarget := analytics.NewTarget(upload, in.UploadURL, tracker)
		defer trackedTarget.Wait()
		target = trackedTarget
	}

	result, uploadErr := uploadSource(ctx, tus.NewClient(config, logger), target, in.UploadURL, src, logger)
	if result != nil {
		if err := exporter.ExportUploadResult(*result); err != nil {
			logger.Warnf("Failed to export outputs: %s", err)
		}
	}
	return uploadErr
}

// uploadSource returns a nil result if the upload could not be started.
func uploadSource(ctx context.Context, client *tus.Client, target tus.Target, url string, src *source.Source, logger log.Logger) (*export.Result, error) {
	uploader, err := client.ResumeUploader(ctx, target, url, src)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("resume upload: %w", err)
	}

	size := float64(target.Size())
	if uploader.Offset() > 0 {
		logger.Infof("Resuming upload at %s of %s", units.HumanSize(float64(uploader.Offset())), units.HumanSize(size))
	} else {
		logger.Infof("Uploading %s to %s", units.HumanSize(size), url)
	}

	it := uploader.Chunks(ctx)
	for it.Next() {
		logger.Printf("Uploaded %s of %s", units.HumanSize(float64(uploader.Offset())), units.HumanSize(size))
	}
	uploadErr := it.Err()

	if err := uploader.Finish(true); err != nil {
		logger.Warnf("%s", err)
	}

	stats := uploader.Stats()
	logger.Debugf("%d requests, %s sent, average request time %s",
		stats.RequestCount(), units.HumanSize(float64(stats.BytesSent())), stats.Average())

	result := &export.Result{
		URL:    url,
		Offset: uploader.ConfirmedOffset(),
		Size:   target.Size(),
	}
	if uploadErr != nil {
		return result, fmt.Errorf("upload stopped at confirmed offset %d: %w", uploader.ConfirmedOffset(), uploadErr)
	}
	return result, nil
}
