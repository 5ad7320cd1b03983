package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/onhand/internal/transport"
)

// Stager copies the remote extract to the fixed local working path.
//
// The copy is written to <local>.part and renamed over the final path once
// complete, so the local path only ever holds a whole copy. The previous copy
// is replaced at the moment of the rename.
type Stager struct {
	Source    transport.Source
	LocalPath string
}

// Stage performs the copy and returns the number of bytes written.
func (s *Stager) Stage(ctx context.Context) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(s.LocalPath), 0o755); err != nil {
		return 0, stageErr(StageTransport, ErrTransport, "XFER002", s.LocalPath,
			fmt.Errorf("create local dir: %w", err))
	}

	src, err := s.Source.Open(ctx)
	if err != nil {
		return 0, stageErr(StageTransport, ErrTransport, "XFER001", s.Source.String(), err)
	}
	defer src.Close()

	tmp := s.LocalPath + ".part"
	n, err := writeFile(tmp, src)
	if err != nil {
		_ = os.Remove(tmp)
		return n, stageErr(StageTransport, ErrTransport, "XFER002", s.LocalPath,
			fmt.Errorf("copy from %s: %w", s.Source, err))
	}

	if err := os.Rename(tmp, s.LocalPath); err != nil {
		_ = os.Remove(tmp)
		return n, stageErr(StageTransport, ErrTransport, "XFER002", s.LocalPath,
			fmt.Errorf("replace local copy: %w", err))
	}
	return n, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}
