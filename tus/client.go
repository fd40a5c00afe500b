package tus

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Client creates uploaders that share a configuration and a transport.
type Client struct {
	config    Config
	transport Transport
	logger    log.Logger
}

// NewClient creates a new Client with the given configuration.
func NewClient(config Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewLogger()
	}
	logger.EnableDebugLog(config.Verbose)

	transport := config.Transport
	if transport == nil {
		transport = NewHTTPTransport(config, logger)
	}

	return &Client{
		config:    config,
		transport: transport,
		logger:    logger,
	}
}

// NewUploader returns an uploader that continues the upload at url from offset.
func (c *Client) NewUploader(target Target, url string, source DataSource, offset int64) (*Uploader, error) {
	uploader, err := NewUploader(Params{
		Target:    target,
		URL:       url,
		Source:    source,
		Offset:    offset,
		Transport: c.transport,
		Logger:    c.logger,
	})
	if err != nil {
		return nil, err
	}

	if c.config.ChunkSize > 0 {
		if err := uploader.SetChunkSize(c.config.ChunkSize); err != nil {
			return nil, err
		}
	}
	if c.config.PayloadSize > 0 {
		if err := uploader.SetPayloadSize(c.config.PayloadSize); err != nil {
			return nil, err
		}
	}

	return uploader, nil
}

// ServerOffset asks the server how many bytes of the upload at url it holds.
// If the server does not know the upload, the error is ErrUploadNotFound.
func (c *Client) ServerOffset(ctx context.Context, url string) (int64, error) {
	offset, _, err := c.uploadState(ctx, url)
	return offset, err
}

// uploadState returns the Upload-Offset and Upload-Length the server reports,
// length is -1 if the server did not send it.
func (c *Client) uploadState(ctx context.Context, url string) (int64, int64, error) {
	req := c.transport.NewRequest(http.MethodHead, url, nil)

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return 0, -1, fmt.Errorf("query upload offset: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return 0, -1, fmt.Errorf("%s: %w", url, ErrUploadNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return 0, -1, newStatusError("querying upload offset", resp.StatusCode, -1)
	}

	offset, ok := parseOffset(resp.Header.Get(HeaderUploadOffset))
	if !ok {
		return 0, -1, newMissingOffsetError(resp.StatusCode, -1)
	}

	length, ok := parseOffset(resp.Header.Get(HeaderUploadLength))
	if !ok {
		return offset, -1, nil
	}
	if offset > length {
		c.logger.Warnf("Server reports offset %d beyond upload length %d", offset, length)
	}

	return offset, length, nil
}

// ResumeUploader creates an uploader that continues from the offset the server reports.
// If the server reports an Upload-Length other than target.Size(), the local data is not
// the data the upload was started with and the error is ErrSizeMismatch.
func (c *Client) ResumeUploader(ctx context.Context, target Target, url string, source DataSource) (*Uploader, error) {
	offset, length, err := c.uploadState(ctx, url)
	if err != nil {
		return nil, err
	}
	if length >= 0 && length != target.Size() {
		return nil, fmt.Errorf("server expects %d bytes, source has %d: %w", length, target.Size(), ErrSizeMismatch)
	}
	c.logger.Debugf("Resuming upload at offset %d of %d", offset, target.Size())

	return c.NewUploader(target, url, source, offset)
}
