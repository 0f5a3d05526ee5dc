package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// Destination is where summaries and reports are written. File destinations
// are opened for append and every Write holds an exclusive advisory lock, so
// several kvcrank processes can share one results file without interleaving.
type Destination struct {
	mu   sync.Mutex
	w    io.Writer
	file *os.File
	lock *flock.Flock
}

// OpenDestination opens path for appending. An empty path or "-" selects
// stdout.
func OpenDestination(path string) (*Destination, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return &Destination{w: os.Stdout}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return &Destination{
		w:    file,
		file: file,
		lock: flock.New(path + ".lock"),
	}, nil
}

// NewWriterDestination wraps an arbitrary writer without file locking.
func NewWriterDestination(w io.Writer) *Destination {
	return &Destination{w: w}
}

func (d *Destination) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lock == nil {
		return d.w.Write(p)
	}
	if err := d.lock.Lock(); err != nil {
		return 0, fmt.Errorf("lock output: %w", err)
	}
	defer d.lock.Unlock()
	return d.w.Write(p)
}

// Path returns the destination file name, or "" for stream destinations.
func (d *Destination) Path() string {
	if d.file == nil {
		return ""
	}
	return d.file.Name()
}

// Close releases the file and its lock. The lock file itself is left in
// place for other writers. Stream destinations are left open.
func (d *Destination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	if d.lock != nil {
		_ = d.lock.Close()
	}
	d.file = nil
	return err
}
