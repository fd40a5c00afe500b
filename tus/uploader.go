package tus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Params are the arguments of NewUploader.
type Params struct {
	Target    Target
	URL       string
	Source    DataSource
	Offset    int64
	Transport Transport
	Logger    log.Logger
}

// Uploader transfers a data source to an upload URL, one chunk per UploadChunk call.
//
// Usage:
//  1. Call UploadChunk until it returns io.EOF, or drive Chunks / UploadAll.
//  2. Use Offset together with the target size to report progress.
//  3. Call Finish, also to pause an upload before the source is exhausted.
//
// Every chunk is sent as its own PATCH request. The server reported offset is
// verified once per request window of PayloadSize bytes and at the end of the
// source. An Uploader must not be used from multiple goroutines.
type Uploader struct {
	target    Target
	url       string
	source    DataSource
	transport Transport
	logger    log.Logger
	stats     *Stats

	offset          int64
	confirmedOffset int64
	buffer          []byte
	payloadSize     int64
	windowRemaining int64
	windowSent      int64
	state           State

	finished bool
	closed   bool
}

// NewUploader positions the source at params.Offset and returns an uploader that
// continues the upload from there.
func NewUploader(params Params) (*Uploader, error) {
	if params.Target == nil {
		return nil, fmt.Errorf("target must not be nil")
	}
	if params.Source == nil {
		return nil, fmt.Errorf("source must not be nil")
	}
	if params.Transport == nil {
		return nil, fmt.Errorf("transport must not be nil")
	}
	if params.URL == "" {
		return nil, fmt.Errorf("upload URL must not be empty")
	}
	if params.Offset < 0 || params.Offset > params.Target.Size() {
		return nil, fmt.Errorf("offset %d is out of range [0, %d]", params.Offset, params.Target.Size())
	}

	logger := params.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	if err := params.Source.SeekTo(params.Offset); err != nil {
		return nil, fmt.Errorf("seek source to offset %d: %w", params.Offset, err)
	}

	return &Uploader{
		target:          params.Target,
		url:             params.URL,
		source:          params.Source,
		transport:       params.Transport,
		logger:          logger,
		stats:           NewStats(),
		offset:          params.Offset,
		confirmedOffset: params.Offset,
		buffer:          make([]byte, DefaultChunkSize),
		payloadSize:     DefaultPayloadSize,
		windowRemaining: DefaultPayloadSize,
		state:           StateIdle,
	}, nil
}

// SetChunkSize replaces the read buffer with one of the given size.
// It must not be called while a chunk is being uploaded.
func (u *Uploader) SetChunkSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	u.buffer = make([]byte, size)
	return nil
}

// ChunkSize returns the current chunk size.
func (u *Uploader) ChunkSize() int {
	return len(u.buffer)
}

// SetPayloadSize sets the number of bytes sent before the server offset is
// verified. It applies from the next request window on, and fails with
// ErrInvalidState while a request is in flight.
func (u *Uploader) SetPayloadSize(size int64) error {
	if u.state == StateInFlight {
		return fmt.Errorf("payload size must not be modified while a request is in flight: %w", ErrInvalidState)
	}
	if size <= 0 {
		return fmt.Errorf("payload size must be positive, got %d", size)
	}

	if u.windowSent == 0 {
		// Nothing was sent in the current window yet, so it starts with the new size.
		u.windowRemaining = size
	}
	u.payloadSize = size
	return nil
}

// PayloadSize returns the current payload size.
func (u *Uploader) PayloadSize() int64 {
	return u.payloadSize
}

// State returns whether a request is currently in flight.
func (u *Uploader) State() State {
	return u.state
}

// Offset returns the number of bytes sent in total, in all requests of this and
// earlier sessions. After a *ProtocolError it includes bytes the server did not
// confirm; use ConfirmedOffset or query the server before resuming.
func (u *Uploader) Offset() int64 {
	return u.offset
}

// ConfirmedOffset returns the last offset verified against the server, or the
// starting offset if no request window was verified yet.
func (u *Uploader) ConfirmedOffset() int64 {
	return u.confirmedOffset
}

// URL returns the upload URL.
func (u *Uploader) URL() string {
	return u.url
}

// Stats returns the request statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// UploadChunk reads up to ChunkSize bytes from the source and sends them in a
// PATCH request. It returns the number of bytes sent, or io.EOF when the source
// has no more data, in which case nothing is sent and the offset is unchanged.
func (u *Uploader) UploadChunk(ctx context.Context) (int, error) {
	u.state = StateInFlight
	defer func() {
		u.state = StateIdle
	}()

	toRead := int64(len(u.buffer))
	if u.windowRemaining < toRead {
		toRead = u.windowRemaining
	}

	n, eof, err := u.source.Read(u.buffer[:toRead])
	if err != nil {
		return 0, fmt.Errorf("read source at offset %d: %w", u.offset, err)
	}
	if n == 0 && eof {
		return 0, io.EOF
	}

	req := u.transport.NewRequest(http.MethodPatch, u.url, u.buffer[:n])
	req.Header.Set(HeaderUploadOffset, strconv.FormatInt(u.offset, 10))
	req.Header.Set(HeaderContentType, ContentTypeOffsetOctetStream)
	req.Header.Set(HeaderExpect, "100-continue")

	u.logger.Debugf("Uploading %d bytes at offset %d", n, u.offset)

	start := time.Now()
	resp, err := u.transport.Do(ctx, req)
	if err != nil {
		if seekErr := u.source.SeekTo(u.offset); seekErr != nil {
			return 0, fmt.Errorf("upload chunk at offset %d: %w (rewind source: %s)", u.offset, err, seekErr)
		}
		return 0, fmt.Errorf("upload chunk at offset %d: %w", u.offset, err)
	}
	u.stats.Update(time.Since(start), n)

	u.offset += int64(n)
	u.windowRemaining -= int64(n)
	u.windowSent += int64(n)

	if u.windowRemaining <= 0 || eof {
		u.windowRemaining = u.payloadSize
		u.windowSent = 0
		if err := u.verifyWindow(resp); err != nil {
			return n, err
		}
	}

	return n, nil
}

// verifyWindow checks the response that ends a request window.
func (u *Uploader) verifyWindow(resp *Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError("uploading chunk", resp.StatusCode, u.offset)
	}

	serverOffset, ok := parseOffset(resp.Header.Get(HeaderUploadOffset))
	if !ok {
		return newMissingOffsetError(resp.StatusCode, u.offset)
	}
	if serverOffset != u.offset {
		return newOffsetMismatchError(resp.StatusCode, serverOffset, u.offset)
	}

	u.confirmedOffset = u.offset
	u.stats.windowVerified()
	u.logger.Debugf("Server confirmed offset %d", serverOffset)
	return nil
}

// Finish ends the upload session. If every byte of the target was sent, the
// target is notified, once. With closeSource the source is closed afterwards.
// Finish may be called before the source is exhausted to pause the upload.
func (u *Uploader) Finish(closeSource bool) error {
	if !u.finished && u.offset == u.target.Size() {
		u.finished = true
		u.logger.Debugf("Upload of %d bytes finished", u.offset)
		u.target.UploadFinished()
	}

	// The source is closed only after the result was evaluated.
	if closeSource && !u.closed {
		u.closed = true
		if err := u.source.Close(); err != nil {
			return fmt.Errorf("close source: %w", err)
		}
	}

	return nil
}

// Chunks returns an iterator that uploads one chunk per Next call.
func (u *Uploader) Chunks(ctx context.Context) *ChunkIterator {
	return &ChunkIterator{ctx: ctx, uploader: u}
}

// UploadAll uploads chunks until the source is exhausted and returns the number of bytes sent.
func (u *Uploader) UploadAll(ctx context.Context) (int64, error) {
	var total int64
	it := u.Chunks(ctx)
	for it.Next() {
		total += int64(it.Transferred())
	}
	return total, it.Err()
}

func parseOffset(value string) (int64, bool) {
	if value == "" {
		return -1, false
	}
	offset, err := strconv.ParseInt(value, 10, 64)
	if err != nil || offset < 0 {
		return -1, false
	}
	return offset, true
}

// ChunkIterator yields the byte count of every uploaded chunk, in offset order.
//
//	it := uploader.Chunks(ctx)
//	for it.Next() {
//		progress(uploader.Offset())
//	}
//	if err := it.Err(); err != nil { ... }
type ChunkIterator struct {
	ctx         context.Context
	uploader    *Uploader
	transferred int
	err         error
	done        bool
}

// Next uploads the next chunk. It returns false once the source is exhausted or an error occurred.
func (it *ChunkIterator) Next() bool {
	if it.done {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		it.done = true
		return false
	}

	n, err := it.uploader.UploadChunk(it.ctx)
	// Compared directly: a wrapped io.EOF from the transport is a failure, not the end of the source.
	if err == io.EOF { //nolint:errorlint
		it.done = true
		return false
	}
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.transferred = n
	return true
}

// Transferred returns the byte count of the chunk uploaded by the last Next call.
func (it *ChunkIterator) Transferred() int {
	return it.transferred
}

// Err returns the first error, nil if the source was uploaded completely.
func (it *ChunkIterator) Err() error {
	return it.err
}
