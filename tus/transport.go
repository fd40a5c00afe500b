package tus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPTransport sends protocol requests with a retryable HTTP client.
// Only requests that failed to get any response are retried; every response,
// successful or not, is handed back to the caller.
type HTTPTransport struct {
	httpClient *retryablehttp.Client
	headers    map[string]string
	logger     log.Logger
}

// NewHTTPTransport creates a transport from the HTTP related fields of config.
func NewHTTPTransport(config Config, logger log.Logger) *HTTPTransport {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}

	client := retryhttp.NewClient(logger)
	client.HTTPClient = httpClient
	client.RetryMax = config.MaxRetries
	client.CheckRetry = connectionErrorRetryPolicy(logger)

	headers := make(map[string]string, len(config.Headers)+1)
	for k, v := range config.Headers {
		headers[k] = v
	}
	headers[HeaderResumable] = ProtocolVersion

	return &HTTPTransport{
		httpClient: client,
		headers:    headers,
		logger:     logger,
	}
}

// connectionErrorRetryPolicy never retries based on the response status: the
// uploader has to see every status to keep its offset bookkeeping honest.
func connectionErrorRetryPolicy(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil {
			return false, nil
		}
		retry, policyErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, policyErr, err)
		return retry, policyErr
	}
}

// NewRequest ...
func (t *HTTPTransport) NewRequest(method, url string, body []byte) *Request {
	header := make(http.Header, len(t.headers))
	for k, v := range t.headers {
		header.Set(k, v)
	}
	return &Request{
		Method: method,
		URL:    url,
		Header: header,
		Body:   body,
	}
}

// Do ...
func (t *HTTPTransport) Do(ctx context.Context, r *Request) (*Response, error) {
	var body interface{}
	if r.Body != nil {
		body = r.Body
	}

	req, err := retryablehttp.NewRequest(r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)

	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.ContentLength = int64(len(r.Body))

	dump, err := httputil.DumpRequest(req.Request, false)
	if err != nil {
		t.logger.Warnf("error while dumping request: %s", err)
	}
	t.logger.Debugf("Request dump: %s", string(dump))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func(body io.ReadCloser) {
		// Drain so the connection can be reused.
		if _, err := io.Copy(io.Discard, body); err != nil {
			t.logger.Debugf("drain response body: %s", err)
		}
		if err := body.Close(); err != nil {
			t.logger.Printf(err.Error())
		}
	}(resp.Body)

	dump, err = httputil.DumpResponse(resp, false)
	if err != nil {
		t.logger.Warnf("error while dumping response: %s", err)
	}
	t.logger.Debugf("Response dump: %s", string(bytes.TrimSpace(dump)))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}, nil
}
