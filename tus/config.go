package tus

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/docker/go-units"
)

const (
	// DefaultChunkSize is the size of a single read from the data source.
	DefaultChunkSize = 2 * 1024 * 1024
	// DefaultPayloadSize is the maximum number of bytes sent before a request window is verified.
	DefaultPayloadSize = 10 * 1024 * 1024
)

// Environment keys read by ConfigFromEnv.
const (
	ChunkSizeEnvKey   = "TUS_CHUNK_SIZE"
	PayloadSizeEnvKey = "TUS_PAYLOAD_SIZE"
	MaxRetriesEnvKey  = "TUS_MAX_RETRIES"
	HeadersEnvKey     = "TUS_HEADERS"
	VerboseEnvKey     = "TUS_VERBOSE"
)

// Config holds configuration for the client and the uploaders it creates.
type Config struct {
	// ChunkSize is the number of bytes read from the source per UploadChunk call.
	// Default: 2 MiB
	ChunkSize int

	// PayloadSize is the number of bytes after which the uploader verifies the
	// server offset and starts a new request window.
	// Default: 10 MiB
	PayloadSize int64

	// Headers are added to every request, on top of Tus-Resumable.
	Headers map[string]string

	// MaxRetries is the number of times the transport retries a request that failed
	// to reach the server. Responses are never retried.
	// Default: 0
	MaxRetries int

	// Verbose enables debug logging.
	Verbose bool

	// HTTPClient is the HTTP client used by the default transport.
	// If nil, DefaultHTTPClient is used.
	HTTPClient *http.Client

	// Transport replaces the default HTTP transport when set.
	Transport Transport
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   DefaultChunkSize,
		PayloadSize: DefaultPayloadSize,
		Headers:     map[string]string{},
		MaxRetries:  0,
		HTTPClient:  nil, // Will be created by NewHTTPTransport
	}
}

// DefaultHTTPClient creates an HTTP client that honors Expect: 100-continue.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - deadlines come from the request context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:          10,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			Proxy:                 http.ProxyFromEnvironment,
		},
	}
}

// ConfigFromEnv returns DefaultConfig overridden by the TUS_* variables of envRepo.
// Sizes accept human readable values such as "512KiB" or "4MB".
func ConfigFromEnv(envRepo env.Repository) (Config, error) {
	config := DefaultConfig()

	if v := envRepo.Get(ChunkSizeEnvKey); v != "" {
		size, err := parseSize(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", ChunkSizeEnvKey, err)
		}
		config.ChunkSize = int(size)
	}

	if v := envRepo.Get(PayloadSizeEnvKey); v != "" {
		size, err := parseSize(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", PayloadSizeEnvKey, err)
		}
		config.PayloadSize = size
	}

	if v := envRepo.Get(MaxRetriesEnvKey); v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil || retries < 0 {
			return Config{}, fmt.Errorf("parse %s: invalid retry count %q", MaxRetriesEnvKey, v)
		}
		config.MaxRetries = retries
	}

	if v := envRepo.Get(HeadersEnvKey); v != "" {
		headers, err := parseHeaders(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", HeadersEnvKey, err)
		}
		config.Headers = headers
	}

	if v := envRepo.Get(VerboseEnvKey); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", VerboseEnvKey, err)
		}
		config.Verbose = verbose
	}

	return config, nil
}

func parseSize(s string) (int64, error) {
	size, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, fmt.Errorf("size must be positive, got %d", size)
	}
	return size, nil
}

// parseHeaders parses "Name=value|Other=value".
func parseHeaders(s string) (map[string]string, error) {
	headers := map[string]string{}
	for _, pair := range strings.Split(s, "|") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected Name=value", pair)
		}
		headers[http.CanonicalHeaderKey(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return headers, nil
}
