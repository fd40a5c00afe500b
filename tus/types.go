// Package tus provides the client side of the tus resumable upload protocol: an uploader
// that sends a seekable source to an existing upload resource in bounded PATCH requests,
// verifying every request window against the offset reported by the server.
package tus

import (
	"context"
	"fmt"
	"net/http"
)

const (
	// ProtocolVersion is sent in the Tus-Resumable header of every request.
	ProtocolVersion = "1.0.0"

	HeaderUploadOffset = "Upload-Offset"
	HeaderUploadLength = "Upload-Length"
	HeaderResumable    = "Tus-Resumable"
	HeaderContentType  = "Content-Type"
	HeaderExpect       = "Expect"

	// ContentTypeOffsetOctetStream marks a PATCH body as raw bytes addressed by Upload-Offset.
	ContentTypeOffsetOctetStream = "application/offset+octet-stream"
)

// Target is the upload being transferred.
type Target interface {
	// Size returns the total number of bytes of the upload.
	Size() int64

	// UploadFinished is called once the uploader has sent Size() bytes and is finished.
	UploadFinished()
}

// Upload is a Target bound to a remote upload URL.
type Upload struct {
	url        string
	size       int64
	onFinished func()
}

// NewUpload returns an Upload of the given size. onFinished may be nil.
func NewUpload(url string, size int64, onFinished func()) (*Upload, error) {
	if size < 0 {
		return nil, fmt.Errorf("upload size must not be negative, got %d", size)
	}
	return &Upload{url: url, size: size, onFinished: onFinished}, nil
}

// URL ...
func (u *Upload) URL() string {
	return u.url
}

// Size ...
func (u *Upload) Size() int64 {
	return u.size
}

// UploadFinished ...
func (u *Upload) UploadFinished() {
	if u.onFinished != nil {
		u.onFinished()
	}
}

// DataSource is a seekable source of upload data.
// Implementations can read from files, memory buffers or remote objects.
type DataSource interface {
	// SeekTo positions the source so the next Read starts at offset.
	SeekTo(offset int64) error

	// Read fills p as far as the source allows. eof is true when the end of the
	// source was reached during this call; n may still be positive in that case.
	// The last request window is only verified if eof comes with the last bytes.
	Read(p []byte) (n int, eof bool, err error)

	// Close releases the source. Calling it more than once must not fail.
	Close() error
}

// Request is an outgoing protocol request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is what the uploader needs to know about a server reply.
type Response struct {
	StatusCode int
	Header     http.Header
}

// Transport builds and executes protocol requests.
type Transport interface {
	// NewRequest returns a request carrying the headers every request needs.
	NewRequest(method, url string, body []byte) *Request

	// Do executes the request and blocks until the response headers arrive.
	// A non-2xx status is not an error at this level.
	Do(ctx context.Context, req *Request) (*Response, error)
}

// State of an Uploader.
type State int

const (
	// StateIdle means no request is being built or sent.
	StateIdle State = iota
	// StateInFlight means a segment request is being built or sent.
	StateInFlight
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in-flight"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
