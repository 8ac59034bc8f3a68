package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("journal: closed")

// DailyFile is an append-only JSON-lines writer partitioned by UTC calendar
// day: <dir>/<prefix><YYYY-MM-DD>.json. Each Append writes one complete line
// under the mutex, so concurrent callers never interleave partial records.
type DailyFile struct {
	mu     sync.Mutex
	dir    string
	prefix string
	now    func() time.Time

	file      partition
	day       string
	sizeBytes int64
	closed    bool
}

// partition is the open file for the current day.
type partition interface {
	io.WriteCloser
	Truncate(size int64) error
	Name() string
}

// NewDailyFile does not touch the filesystem; the directory and the day's
// partition are created on first Append.
func NewDailyFile(dir, prefix string) *DailyFile {
	return &DailyFile{
		dir:    dir,
		prefix: prefix,
		now:    time.Now,
	}
}

// PathFor returns the partition path that holds lines written at t.
func (d *DailyFile) PathFor(t time.Time) string {
	return filepath.Join(d.dir, d.prefix+t.UTC().Format(time.DateOnly)+".json")
}

func (d *DailyFile) Append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("journal marshal: %w", err)
	}
	b = append(b, '\n')

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := d.rotateLocked(d.now()); err != nil {
		return err
	}

	name := d.file.Name()
	n, err := d.file.Write(b)
	if err != nil {
		if n > 0 {
			d.discardPartialLocked()
		}
		return fmt.Errorf("journal write %s: %w", name, err)
	}
	d.sizeBytes += int64(n)
	return nil
}

// discardPartialLocked cuts a torn line back off the partition. If that
// fails the handle is dropped and the next Append reopens the file.
func (d *DailyFile) discardPartialLocked() {
	if err := d.file.Truncate(d.sizeBytes); err == nil {
		return
	}
	_ = d.file.Close()
	d.file = nil
	d.day = ""
}

func (d *DailyFile) rotateLocked(t time.Time) error {
	day := t.UTC().Format(time.DateOnly)
	if d.file != nil && d.day == day {
		return nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("journal mkdir %s: %w", d.dir, err)
	}
	path := d.PathFor(t)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal open %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("journal stat %s: %w", path, err)
	}
	size := stat.Size()
	if size > 0 {
		if err := terminateLine(f, size); err != nil {
			_ = f.Close()
			return fmt.Errorf("journal repair %s: %w", path, err)
		}
		size, err = f.Seek(0, io.SeekEnd)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("journal seek %s: %w", path, err)
		}
	}
	if d.file != nil {
		_ = d.file.Close()
	}
	d.file = f
	d.day = day
	d.sizeBytes = size
	return nil
}

// terminateLine appends a newline when a previous writer left the last line
// unfinished, so new lines never join a torn one.
func terminateLine(f *os.File, size int64) error {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err := f.Write([]byte{'\n'})
	return err
}

// SizeBytes reports the size of the current day's partition.
func (d *DailyFile) SizeBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sizeBytes
}

func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
