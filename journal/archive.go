package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/ulikunitz/xz"
)

var rotatedName = regexp.MustCompile(`^[a-z]+_(\d{4}-\d{2}-\d{2})\.csv$`)

// Archive compresses day-rotated CSV files in dir dated before the given
// day into <name>.csv.xz and removes the originals. It returns the
// archives written.
func Archive(dir string, before time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	cutoff := before.UTC().Truncate(24 * time.Hour)

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := rotatedName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		day, err := time.Parse("2006-01-02", m[1])
		if err != nil || !day.Before(cutoff) {
			continue
		}

		src := filepath.Join(dir, e.Name())
		dst := src + ".xz"
		if err := compressFile(src, dst); err != nil {
			return out, err
		}
		if err := os.Remove(src); err != nil {
			return out, fmt.Errorf("archive: %w", err)
		}
		out = append(out, dst)
	}
	sort.Strings(out)
	return out, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	w, err := xz.NewWriter(fh)
	if err != nil {
		fh.Close()
		os.Remove(tmp)
		return fmt.Errorf("archive %s: %w", src, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		fh.Close()
		os.Remove(tmp)
		return fmt.Errorf("archive %s: %w", src, err)
	}
	if err := w.Close(); err != nil {
		fh.Close()
		os.Remove(tmp)
		return fmt.Errorf("archive %s: %w", src, err)
	}
	if err := fh.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive %s: %w", src, err)
	}
	return os.Rename(tmp, dst)
}

// OpenArchived returns a reader over the CSV inside an .xz archive.
func OpenArchived(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := xz.NewReader(fh)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{r, fh}, nil
}
