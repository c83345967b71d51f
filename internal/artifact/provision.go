package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samcharles93/pocketlm/internal/logger"
)

const copyBufferSize = 8 << 10

// ProgressFunc receives the number of bytes written so far and the total, or
// -1 when the total is unknown.
type ProgressFunc func(written, total int64)

// Provisioner materializes the model file in working storage from a bundled
// copy. Source and Name locate the bundled copy; a nil Source means there is
// nothing to provision from.
type Provisioner struct {
	Source   fs.FS
	Name     string
	Progress ProgressFunc
	// Prune removes other files from dest's directory after a fresh copy.
	// Names in Keep survive.
	Prune bool
	Keep  []string
	Log   logger.Logger
}

// Ensure makes dest hold a file of at least minSize bytes. An existing valid
// file is left alone. Otherwise the bundled copy is streamed into a temporary
// file next to dest and renamed over it, so a cancelled or failed copy never
// leaves a partial artifact at dest.
func (p *Provisioner) Ensure(ctx context.Context, dest string, minSize int64) (Info, error) {
	log := logger.Component(p.Log, "artifact")
	if minSize <= 0 {
		minSize = DefaultMinSize
	}

	if st, err := os.Stat(dest); err == nil && st.Mode().IsRegular() && st.Size() >= minSize {
		log.Debug("artifact present", "path", dest, "size", FormatSize(st.Size()))
		return Info{Path: dest, Size: st.Size()}, nil
	}
	if p.Source == nil || p.Name == "" {
		return Info{}, fmt.Errorf("%w: %s and no bundled copy configured", ErrMissing, dest)
	}

	src, err := p.Source.Open(p.Name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%w: bundled %s", ErrMissing, p.Name)
		}
		return Info{}, fmt.Errorf("open bundled %s: %w", p.Name, err)
	}
	defer func() { _ = src.Close() }()

	total := int64(-1)
	if st, err := src.Stat(); err == nil {
		total = st.Size()
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Info{}, fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return Info{}, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	log.Info("provisioning artifact", "from", p.Name, "to", dest, "size", FormatSize(max(total, 0)))
	written, err := copyWithProgress(ctx, tmp, src, total, p.Progress)
	if err != nil {
		return Info{}, fmt.Errorf("copy bundled %s: %w", p.Name, err)
	}
	if err := tmp.Sync(); err != nil {
		return Info{}, fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return Info{}, fmt.Errorf("install artifact: %w", err)
	}
	committed = true

	log.Info("artifact provisioned", "path", dest, "bytes", written)
	if p.Prune {
		removed, err := CleanupOld(filepath.Dir(dest), append([]string{filepath.Base(dest)}, p.Keep...)...)
		if len(removed) > 0 {
			log.Info("removed stale artifacts", "files", removed)
		}
		if err != nil {
			log.Warn("pruning stale artifacts", "error", err)
		}
	}
	if written < minSize {
		return Info{Path: dest, Size: written}, fmt.Errorf("%w: bundled copy is %s, below the %s minimum", ErrInvalid, FormatSize(written), FormatSize(minSize))
	}
	return Info{Path: dest, Size: written}, nil
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// CreatePlaceholder writes a sparse file of the given size at path. A
// placeholder smaller than the minimum makes Open fail with ErrInvalid, which
// is how development setups without a real model surface.
func CreatePlaceholder(path string, size int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// CleanupOld removes every regular file in dir whose name is not in keep and
// returns the removed names. A missing dir is not an error.
func CleanupOld(dir string, keep ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}

	var removed []string
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := keepSet[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, errors.Join(errs...)
}
