package watcher

import (
	"crypto/sha256"
	"fmt"
	"os"
)

// ChangeDetector remembers the digest of a file's last seen contents so a
// save that leaves the bytes untouched does not trigger a reload
type ChangeDetector struct {
	path string
	last [sha256.Size]byte
	seen bool
}

func NewChangeDetector(path string) *ChangeDetector {
	return &ChangeDetector{path: path}
}

// Changed reads the file and reports whether its contents differ from the
// previous call. The first call always reports a change.
func (d *ChangeDetector) Changed() (bool, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", d.path, err)
	}
	sum := sha256.Sum256(data)
	if d.seen && sum == d.last {
		return false, nil
	}
	d.last, d.seen = sum, true
	return true, nil
}
