package tus

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is matched by every *ProtocolError.
	ErrProtocol = errors.New("tus protocol error")

	// ErrInvalidState is returned when the uploader configuration is changed while a request is in flight.
	ErrInvalidState = errors.New("invalid uploader state")

	// ErrUploadNotFound is returned when the server does not know the upload URL (404 or 410).
	ErrUploadNotFound = errors.New("upload not found on server")

	// ErrSizeMismatch is returned when resuming an upload whose Upload-Length differs from the local size.
	ErrSizeMismatch = errors.New("upload length does not match source size")
)

// ProtocolError describes a server response that does not satisfy the protocol.
type ProtocolError struct {
	// StatusCode of the offending response.
	StatusCode int
	// ServerOffset is the Upload-Offset reported by the server, -1 if it was missing or invalid.
	ServerOffset int64
	// LocalOffset is the offset the client expected the server to report.
	LocalOffset int64

	msg string
}

func (e *ProtocolError) Error() string {
	return "tus: " + e.msg
}

// Is reports whether target is ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func newStatusError(action string, status int, localOffset int64) *ProtocolError {
	return &ProtocolError{
		StatusCode:   status,
		ServerOffset: -1,
		LocalOffset:  localOffset,
		msg:          fmt.Sprintf("unexpected status code (%d) while %s", status, action),
	}
}

func newMissingOffsetError(status int, localOffset int64) *ProtocolError {
	return &ProtocolError{
		StatusCode:   status,
		ServerOffset: -1,
		LocalOffset:  localOffset,
		msg:          "response contains no or invalid " + HeaderUploadOffset + " header",
	}
}

func newOffsetMismatchError(status int, serverOffset, localOffset int64) *ProtocolError {
	return &ProtocolError{
		StatusCode:   status,
		ServerOffset: serverOffset,
		LocalOffset:  localOffset,
		msg: fmt.Sprintf("response contains different %s value (%d) than expected (%d)",
			HeaderUploadOffset, serverOffset, localOffset),
	}
}
