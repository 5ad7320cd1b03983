// Package transport opens the remote extract the pipeline stages locally.
//
// Two sources exist: a filesystem path (usually an SMB share mounted on the
// host) and an S3-compatible object. Both only read; the producer owns the
// remote file.
package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/onhand/internal/config"
)

// Source is a readable remote extract.
type Source interface {
	// Open returns a reader over the current remote content.
	Open(ctx context.Context) (io.ReadCloser, error)
	// String describes the source for logs.
	String() string
}

// FileSource reads the extract from a filesystem path.
type FileSource struct {
	Path string
}

// Open implements Source.
func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	return f, nil
}

func (s FileSource) String() string { return s.Path }

// FromConfig builds the Source selected by SOURCE_DRIVER.
func FromConfig(ctx context.Context, cfg config.SourceConfig) (Source, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "file":
		return FileSource{Path: cfg.Path}, nil
	case "s3":
		return NewS3Source(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Key:       cfg.S3Key,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,

			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Driver)
	}
}
