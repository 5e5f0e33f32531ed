package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// FileWriter appends to dir/YYYY-MM-DD.jsonl, switching files at midnight
// and keeping a "latest" symlink pointed at the current one.
type FileWriter struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	file *os.File
	day  string
}

// NewFileWriter creates dir if needed and opens today's file.
func NewFileWriter(dir string) (*FileWriter, error) {
	return newFileWriter(dir, time.Now)
}

func newFileWriter(dir string, now func() time.Time) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}
	fw := &FileWriter{dir: dir, now: now}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.openLocked(now().Format(dayLayout)); err != nil {
		return nil, err
	}
	return fw, nil
}

// Write implements io.Writer.
func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if day := fw.now().Format(dayLayout); day != fw.day {
		if err := fw.openLocked(day); err != nil {
			return 0, err
		}
	}
	if fw.file == nil {
		return 0, os.ErrClosed
	}
	return fw.file.Write(p)
}

// Close closes the current file. Later writes fail.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}

func (fw *FileWriter) openLocked(day string) error {
	if fw.file != nil {
		fw.file.Close()
		fw.file = nil
	}

	name := day + ".jsonl"
	f, err := os.OpenFile(filepath.Join(fw.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	fw.file = f
	fw.day = day
	fw.link(name)
	return nil
}

// link repoints "latest" at name. Failures are ignored.
func (fw *FileWriter) link(name string) {
	latest := filepath.Join(fw.dir, "latest")
	tmp := latest + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(name, tmp); err != nil {
		return
	}
	_ = os.Rename(tmp, latest)
}

var dayFile = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.jsonl$`)

// Cleanup removes debug files older than retentionDays and returns how many
// were removed.
func Cleanup(dir string, retentionDays int) int {
	return cleanup(dir, retentionDays, time.Now())
}

func cleanup(dir string, retentionDays int, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !dayFile.MatchString(e.Name()) {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, e.Name()[:len(dayLayout)], now.Location())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}
