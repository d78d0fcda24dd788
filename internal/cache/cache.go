// Package cache implements the fingerprint cache file: a JSON array of
// {time, hash} objects alongside the source audio file, bypassing the
// fingerprinter stage when present and readable.
//
// Store is a small interface plus a single file-backed implementation,
// deliberately scoped to a single cache file per audio path rather than
// a relational corpus store.
package cache

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/media-luna/clipfinder/internal/eurekaerr"
	"github.com/media-luna/clipfinder/internal/fingerprint"
)

// Store reads and writes a fingerprint list for an audio file.
type Store interface {
	Load(audioPath string) ([]fingerprint.Fingerprint, bool, error)
	Save(audioPath string, fps []fingerprint.Fingerprint) error
}

// record is the on-disk JSON shape of one cached fingerprint.
type record struct {
	Time float64 `json:"time"`
	Hash int64   `json:"hash"`
}

// FileStore is the sole Store implementation: one JSON file per audio
// path, named "<audio_path>.fingerprints.json".
type FileStore struct{}

// NewFileStore creates a FileStore.
func NewFileStore() FileStore { return FileStore{} }

func cachePath(audioPath string) string {
	return audioPath + ".fingerprints.json"
}

// Load reads the cache file for audioPath. A missing file is reported
// as (nil, false, nil) — not an error, the caller should fingerprint
// normally. A present-but-corrupt file is eurekaerr.ErrMalformedCache:
// recoverable, the caller should ignore it and recompute.
func (FileStore) Load(audioPath string) ([]fingerprint.Fingerprint, bool, error) {
	data, err := os.ReadFile(cachePath(audioPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(eurekaerr.ErrInputUnavailable, "read cache for %s: %v", audioPath, err)
	}

	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false, errors.Wrapf(eurekaerr.ErrMalformedCache, "parse cache for %s: %v", audioPath, err)
	}

	fps := make([]fingerprint.Fingerprint, len(recs))
	for i, r := range recs {
		fps[i] = fingerprint.Fingerprint{TimeMs: r.Time, Hash: r.Hash}
	}
	return fps, true, nil
}

// Save writes the cache file for audioPath, overwriting any existing
// contents. Called on successful completion of a fingerprinting
// stream; a partial or failed run never writes a cache file.
func (FileStore) Save(audioPath string, fps []fingerprint.Fingerprint) error {
	recs := make([]record, len(fps))
	for i, fp := range fps {
		recs[i] = record{Time: fp.TimeMs, Hash: fp.Hash}
	}

	data, err := json.Marshal(recs)
	if err != nil {
		return errors.Wrap(err, "marshal fingerprint cache")
	}

	if err := os.WriteFile(cachePath(audioPath), data, 0o644); err != nil {
		return errors.Wrapf(eurekaerr.ErrInputUnavailable, "write cache for %s: %v", audioPath, err)
	}
	return nil
}

// Discard removes a malformed cache file so the next run recomputes
// and writes a fresh one, instead of tripping over it again.
func Discard(audioPath string) error {
	err := os.Remove(cachePath(audioPath))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "discard cache for %s", audioPath)
	}
	return nil
}

// IsCachePath reports whether p is itself a fingerprint cache file,
// so callers walking a directory of audio files don't try to decode
// their own cache sidecars.
func IsCachePath(p string) bool {
	return strings.HasSuffix(p, ".fingerprints.json")
}
