package output

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dhcgn/mailstore-extract/state"
)

// BlobKey is the storage key of attachment content, relative to the output
// prefix. Identical content shares one key.
func BlobKey(hash string) string {
	shard := "00"
	if len(hash) >= 2 {
		shard = hash[:2]
	}
	return path.Join(BlobDir, shard, hash)
}

// BlobStore writes attachment content once per hash below an output directory.
type BlobStore struct {
	dir     string
	tracker state.Tracker
}

func NewBlobStore(dir string, tracker state.Tracker) *BlobStore {
	return &BlobStore{dir: dir, tracker: tracker}
}

// Put stores data under its hash unless it is already present. It reports
// whether a new blob was written.
func (b *BlobStore) Put(hash, attachmentID string, data []byte) (bool, error) {
	target := filepath.Join(b.dir, filepath.FromSlash(BlobKey(hash)))

	if _, known := b.tracker.Owner(hash); known {
		if _, err := os.Stat(target); err == nil {
			return false, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("stat blob %s: %w", hash, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("create blob dir: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, fmt.Errorf("write blob %s: %w", hash, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return false, fmt.Errorf("rename blob %s: %w", hash, err)
	}

	if _, err := b.tracker.Claim(hash, attachmentID); err != nil {
		return false, err
	}
	return true, nil
}
