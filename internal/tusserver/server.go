// Package tusserver is an in-memory tus server for exercising the client in tests.
package tusserver

import (
	"io"
	"net/http"
	"path"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerUploadOffset = "Upload-Offset"
	headerUploadLength = "Upload-Length"
	headerResumable    = "Tus-Resumable"
	headerContentType  = "Content-Type"
	headerCacheControl = "Cache-Control"

	contentTypeOffsetOctetStream = "application/offset+octet-stream"

	// BasePath is the path uploads are served under.
	BasePath = "/files"
)

// PatchRecord describes a PATCH request the server received.
type PatchRecord struct {
	UploadID     string
	UploadOffset string
	ContentType  string
	Expect       string
	Resumable    string
	BodyLength   int
	Header       http.Header
}

type upload struct {
	size int64
	data []byte
}

type fault struct {
	status       int
	offsetSkew   int64
	dropOffset   bool
	skipBodyRead bool
}

// Server keeps uploads in memory.
type Server struct {
	mu      sync.Mutex
	uploads map[string]*upload
	patches []PatchRecord
	faults  []fault
	router  *gin.Engine
}

// New returns a server with no uploads.
func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{uploads: map[string]*upload{}}

	router := gin.New()
	router.HEAD(BasePath+"/:id", s.head)
	router.PATCH(BasePath+"/:id", s.patch)
	s.router = router

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Create registers an upload of size bytes and returns its path.
func (s *Server) Create(size int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.uploads[id] = &upload{size: size}
	return BasePath + "/" + id
}

// Data returns the bytes received for the upload at uploadPath, which may be a full URL.
func (s *Server) Data(uploadPath string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[idFromPath(uploadPath)]
	if !ok {
		return nil
	}
	return append([]byte(nil), u.data...)
}

// Patches returns every PATCH request received so far.
func (s *Server) Patches() []PatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PatchRecord(nil), s.patches...)
}

// FailNext makes the next PATCH request fail with status without storing its body.
func (s *Server) FailNext(status int) {
	s.addFault(fault{status: status, skipBodyRead: true})
}

// SkewOffset stores the next PATCH request but reports an offset off by delta.
func (s *Server) SkewOffset(delta int64) {
	s.addFault(fault{offsetSkew: delta})
}

// DropOffsetHeader stores the next PATCH request but omits Upload-Offset from the response.
func (s *Server) DropOffsetHeader() {
	s.addFault(fault{dropOffset: true})
}

func (s *Server) addFault(f fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, f)
}

func (s *Server) nextFault() (fault, bool) {
	if len(s.faults) == 0 {
		return fault{}, false
	}
	f := s.faults[0]
	s.faults = s.faults[1:]
	return f, true
}

func (s *Server) head(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Header(headerResumable, "1.0.0")
	c.Header(headerCacheControl, "no-store")

	u, ok := s.uploads[c.Param("id")]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header(headerUploadOffset, strconv.FormatInt(int64(len(u.data)), 10))
	c.Header(headerUploadLength, strconv.FormatInt(u.size, 10))
	c.Status(http.StatusOK)
}

func (s *Server) patch(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Param("id")
	record := PatchRecord{
		UploadID:     id,
		UploadOffset: c.GetHeader(headerUploadOffset),
		ContentType:  c.GetHeader(headerContentType),
		Expect:       c.GetHeader("Expect"),
		Resumable:    c.GetHeader(headerResumable),
		Header:       c.Request.Header.Clone(),
	}

	c.Header(headerResumable, "1.0.0")

	f, faulty := s.nextFault()
	if faulty && f.skipBodyRead {
		s.patches = append(s.patches, record)
		c.Status(f.status)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	record.BodyLength = len(body)
	s.patches = append(s.patches, record)

	u, ok := s.uploads[id]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	if record.ContentType != contentTypeOffsetOctetStream {
		c.Status(http.StatusUnsupportedMediaType)
		return
	}
	offset, err := strconv.ParseInt(record.UploadOffset, 10, 64)
	if err != nil || offset != int64(len(u.data)) {
		c.Status(http.StatusConflict)
		return
	}
	if offset+int64(len(body)) > u.size {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}

	u.data = append(u.data, body...)

	reported := int64(len(u.data))
	if faulty {
		reported += f.offsetSkew
	}
	if !faulty || !f.dropOffset {
		c.Header(headerUploadOffset, strconv.FormatInt(reported, 10))
	}
	c.Status(http.StatusNoContent)
}

func idFromPath(p string) string {
	return path.Base(p)
}
