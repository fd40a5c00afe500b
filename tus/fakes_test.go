package tus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

// fakeTransport behaves like a well-behaved server unless handler is set.
type fakeTransport struct {
	requests     []*Request
	serverOffset int64
	handler      func(req *Request) (*Response, error)
}

func (f *fakeTransport) NewRequest(method, url string, body []byte) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: http.Header{HeaderResumable: []string{ProtocolVersion}},
		Body:   body,
	}
}

func (f *fakeTransport) Do(_ context.Context, req *Request) (*Response, error) {
	// The uploader reuses its buffer, keep a copy.
	recorded := *req
	recorded.Header = req.Header.Clone()
	recorded.Body = append([]byte(nil), req.Body...)
	f.requests = append(f.requests, &recorded)

	if f.handler != nil {
		return f.handler(req)
	}
	return f.accept(req), nil
}

func (f *fakeTransport) accept(req *Request) *Response {
	f.serverOffset += int64(len(req.Body))
	return offsetResponse(http.StatusNoContent, strconv.FormatInt(f.serverOffset, 10))
}

func offsetResponse(status int, offset string) *Response {
	header := http.Header{}
	if offset != "" {
		header.Set(HeaderUploadOffset, offset)
	}
	return &Response{StatusCode: status, Header: header}
}

type countingTarget struct {
	size     int64
	finished int
}

func (t *countingTarget) Size() int64 {
	return t.size
}

func (t *countingTarget) UploadFinished() {
	t.finished++
}

var errBrokenSource = errors.New("broken source")

// failingSource fails every operation after the first failAfter successful reads.
type failingSource struct {
	seekErr   error
	reads     int
	failAfter int
	seeks     []int64
}

func (s *failingSource) SeekTo(offset int64) error {
	s.seeks = append(s.seeks, offset)
	return s.seekErr
}

func (s *failingSource) Read(p []byte) (int, bool, error) {
	if s.reads >= s.failAfter {
		return 0, false, errBrokenSource
	}
	s.reads++
	return len(p), false, nil
}

func (s *failingSource) Close() error {
	return nil
}
