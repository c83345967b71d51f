// Package artifact opens and validates the on-disk model file and provisions
// it from a bundled copy when working storage does not have it yet.
package artifact

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultMinSize is the smallest file accepted as a real model. It is a
	// placeholder/truncation heuristic, not an integrity check.
	DefaultMinSize int64 = 100 << 20

	// fingerprintWindow is how much of the file head feeds the fingerprint.
	fingerprintWindow = 1 << 20
)

var (
	ErrMissing = errors.New("artifact: missing")
	ErrInvalid = errors.New("artifact: invalid")
)

// Info describes an opened artifact.
type Info struct {
	Path        string
	Size        int64
	Fingerprint uint64
	Mapped      bool
}

// File is an opened model artifact. When the platform allows it the whole
// file is memory mapped read-only; otherwise only the fingerprint window is
// read. Close is idempotent.
type File struct {
	mu     sync.Mutex
	info   Info
	data   []byte
	closed bool
}

// Open validates that path is a regular file of at least minSize bytes and
// opens it. A non-positive minSize means DefaultMinSize.
func Open(path string, minSize int64) (*File, error) {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrMissing)
	}

	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", ErrInvalid, path, err)
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrInvalid, path)
	}
	size := st.Size()
	if size < minSize {
		return nil, fmt.Errorf("%w: %s is %s, below the %s minimum", ErrInvalid, path, FormatSize(size), FormatSize(minSize))
	}
	if size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s is too large to address", ErrInvalid, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrInvalid, path, err)
	}
	defer func() { _ = f.Close() }()

	af := &File{info: Info{Path: path, Size: size}}

	// Prefer mmap where available; the head window is enough otherwise.
	var head []byte
	if data, err := mapFile(f, int(size)); err == nil {
		af.data = data
		af.info.Mapped = true
		head = data[:min(len(data), fingerprintWindow)]
	} else {
		head = make([]byte, min(size, fingerprintWindow))
		if _, err := io.ReadFull(f, head); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrInvalid, path, err)
		}
	}
	af.info.Fingerprint = fingerprint(head, size)
	return af, nil
}

func fingerprint(head []byte, size int64) uint64 {
	d := xxhash.New()
	_, _ = d.Write(head)
	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], uint64(size))
	_, _ = d.Write(sz[:])
	return d.Sum64()
}

// Info returns the artifact description. It stays valid after Close.
func (f *File) Info() Info {
	if f == nil {
		return Info{}
	}
	return f.info
}

// Bytes returns the mapped contents, or nil when the file is not mapped or
// has been closed. The slice must not be used after Close.
func (f *File) Bytes() []byte {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	return f.data
}

// Closed reports whether Close has been called.
func (f *File) Closed() bool {
	if f == nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close releases the mapping.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	data := f.data
	f.data = nil
	if data != nil {
		return unmapFile(data)
	}
	return nil
}

// FormatSize renders a byte count as "%.1f %s" with B, KB, MB or GB units.
func FormatSize(bytes int64) string {
	units := [...]string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", size, units[unit])
}
