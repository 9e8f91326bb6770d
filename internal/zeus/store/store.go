// Package store implements the atomic filesystem primitives every
// other bus component builds on: write-then-rename for crash-safe
// writes, rename-based claims for exclusive ownership, and sorted
// directory listings. The one writer of bus state above this package
// that opens files directly is the processed ledger's append log
// (package ledger).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zeusmux/zeus/internal/zeus/errkind"
)

// ErrNotFound is returned by ReadJSON when the path does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrCorrupt is returned by ReadJSON when the file exists but does not
// decode as valid JSON for the requested shape.
var ErrCorrupt = errors.New("store: corrupt")

// WriteJSONAtomic marshals value and writes it to path via
// write-to-temp, fsync, rename within the same directory. The rename
// is the atomic commit point (I3): no reader ever observes a
// partially written file. On any failure the temp file is removed and
// an errkind.IO error is returned.
func WriteJSONAtomic(path string, value any) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errkind.Wrap(errkind.IO, fmt.Sprintf("marshal %s: %v", path, err))
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d-%d",
		filepath.Base(path), os.Getpid(), time.Now().UnixNano(), randSuffix()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errkind.Wrap(errkind.IO, fmt.Sprintf("create temp for %s: %v", path, err))
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errkind.Wrap(errkind.IO, fmt.Sprintf("write temp for %s: %v", path, err))
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errkind.Wrap(errkind.IO, fmt.Sprintf("fsync temp for %s: %v", path, err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errkind.Wrap(errkind.IO, fmt.Sprintf("close temp for %s: %v", path, err))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errkind.Wrap(errkind.IO, fmt.Sprintf("rename temp for %s: %v", path, err))
	}

	// Best-effort parent fsync so the rename survives a crash on
	// filesystems that require it; failure here is not fatal.
	if pf, err := os.Open(dir); err == nil {
		_ = pf.Sync()
		_ = pf.Close()
	}

	return nil
}

// ReadJSON reads and unmarshals path into value.
func ReadJSON(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return errkind.Wrap(errkind.IO, fmt.Sprintf("read %s: %v", path, err))
	}
	if err := json.Unmarshal(data, value); err != nil {
		return ErrCorrupt
	}
	return nil
}

// ClaimMove renames src to dst, establishing exclusive ownership of
// the item at dst. It returns true iff the rename succeeded; false
// means src had already vanished (another claimant won the race). Any
// other failure is returned as an errkind.IO error.
func ClaimMove(src, dst string) (bool, error) {
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return false, err
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errkind.Wrap(errkind.IO, fmt.Sprintf("claim %s -> %s: %v", src, dst, err))
	}
	return true, nil
}

// ListSorted returns the names (not full paths) of entries in dir
// whose name has the given suffix, in ascending lexical order. A
// missing directory returns an empty slice, not an error. Names MUST
// be chosen by the caller so that lexical order matches creation
// order (e.g. a monotonic, time-prefixed id).
func ListSorted(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.IO, fmt.Sprintf("list %s: %v", dir, err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if suffix == "" || hasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// EnsureDir recursively creates path if missing; it is idempotent.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errkind.Wrap(errkind.IO, fmt.Sprintf("mkdir %s: %v", path, err))
	}
	return nil
}

// Unlink removes path; a missing file is not an error.
func Unlink(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errkind.Wrap(errkind.IO, fmt.Sprintf("unlink %s: %v", path, err))
	}
	return nil
}

// Exists reports whether path exists. Errors other than "not exist"
// are treated as "does not exist" — read errors must never be fatal
// for a gating check.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func hasSuffix(name, suffix string) bool {
	if len(suffix) > len(name) {
		return false
	}
	return name[len(name)-len(suffix):] == suffix
}

var (
	randMu    sync.Mutex
	randState = time.Now().UnixNano()
)

// randSuffix is a cheap, dependency-free disambiguator for temp file
// names; it does not need to be cryptographically random, only
// distinct across concurrent writers in the same process within the
// same nanosecond.
func randSuffix() int64 {
	randMu.Lock()
	defer randMu.Unlock()
	randState = randState*6364136223846793005 + 1442695040888963407
	if randState < 0 {
		randState = -randState
	}
	return randState % 1_000_000
}
