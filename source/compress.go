package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/klauspost/compress/zstd"
)

// DefaultCompressionLevel is the zstd level used when 0 is passed to OpenCompressed.
const DefaultCompressionLevel = 3

// Compressor produces zstd compressed copies of files.
//
// The output only depends on the input and the level, so an upload of a
// compressed file can be resumed by compressing the file again.
type Compressor struct {
	logger log.Logger
}

// NewCompressor ...
func NewCompressor(logger log.Logger) *Compressor {
	return &Compressor{logger: logger}
}

// OpenCompressed compresses the file at path and returns a Source reading the
// compressed data.
func OpenCompressed(path string, level int, logger log.Logger) (*Source, error) {
	return NewCompressor(logger).Open(path, level)
}

// Open compresses the file at path into a temporary file and returns a Source
// reading it. Valid levels are 1 to 19, 0 selects DefaultCompressionLevel.
// The temporary file is removed when the Source is closed.
func (c *Compressor) Open(path string, level int) (*Source, error) {
	if level == 0 {
		level = DefaultCompressionLevel
	}
	if level < 1 || level > 19 {
		return nil, fmt.Errorf("compression level must be between 1 and 19, got %d", level)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("compress %s: %w", path, err)
	}

	tmpDir, err := pathutil.NewPathProvider().CreateTempDir("tus-compressed")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	archivePath := filepath.Join(tmpDir, filepath.Base(path)+".zst")

	if err := compress(path, archivePath, level); err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("compress %s: %w", path, err)
	}

	src, err := Open(archivePath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, err
	}
	src.onClose(func() error {
		return os.RemoveAll(tmpDir)
	})

	c.logger.Debugf("Compressed %s to %d bytes (level %d)", path, src.Size(), level)
	return src, nil
}

// encoderOptions pins everything that affects the encoded bytes. A single
// encoder goroutine keeps block boundaries independent of the CPU count.
func encoderOptions(level int) []zstd.EOption {
	return []zstd.EOption{
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderCRC(true),
	}
}

func compress(srcPath, dstPath string, level int) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	zw, err := zstd.NewWriter(out, encoderOptions(level)...)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("create zstd writer: %w", err)
	}

	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return out.Close()
}
