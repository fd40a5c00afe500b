package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/melbahja/got"
)

// Download fetches the file at rawURL into a temporary directory and returns a
// Source reading it. The temporary directory is removed when the Source is closed.
func Download(ctx context.Context, rawURL string, client *http.Client, logger log.Logger) (*Source, error) {
	fileName, err := fileNameFromURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract filename from URL %s: %w", rawURL, err)
	}

	tmpDir, err := pathutil.NewPathProvider().CreateTempDir("tus-source")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	localPath := filepath.Join(tmpDir, fileName)
	logger.Debugf("Downloading %s to %s", rawURL, localPath)

	downloader := got.New()
	if client != nil {
		downloader.Client = client
	}
	if err := downloader.Do(got.NewDownload(ctx, rawURL, localPath)); err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to download file from %s: %w", rawURL, err)
	}

	src, err := Open(localPath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, err
	}
	src.onClose(func() error {
		return os.RemoveAll(tmpDir)
	})

	return src, nil
}

func fileNameFromURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	name := filepath.Base(parsedURL.Path)
	if name == "." || name == "/" || name == "" {
		return "download", nil
	}
	return name, nil
}
