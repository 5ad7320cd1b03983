package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DailyFile is an append-only io.Writer that keeps one file per calendar day,
// named <dir>/<prefix>_YYYY-MM-DD.log. The file is reopened when the local
// date changes between writes; older files are never touched again.
type DailyFile struct {
	dir    string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDailyFile creates dir if needed and returns a writer for it.
// The first file is opened lazily on the first write.
func NewDailyFile(dir, prefix string) (*DailyFile, error) {
	if prefix == "" {
		prefix = "onhand"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	return &DailyFile{dir: dir, prefix: prefix, now: time.Now}, nil
}

// Write implements io.Writer.
func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().Format("2006-01-02")
	if d.file == nil || day != d.day {
		if err := d.rotate(day); err != nil {
			return 0, err
		}
	}
	return d.file.Write(p)
}

func (d *DailyFile) rotate(day string) error {
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
	f, err := os.OpenFile(d.pathFor(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	d.file = f
	d.day = day
	return nil
}

func (d *DailyFile) pathFor(day string) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s_%s.log", d.prefix, day))
}

// Path returns the file the next write goes to.
func (d *DailyFile) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pathFor(d.now().Format("2006-01-02"))
}

// Close closes the current file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
