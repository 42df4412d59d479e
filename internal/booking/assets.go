package booking

import (
	"errors"
	"io/fs"
	"os"
)

// AssetRemover deletes a stored binary asset. The booking service only ever
// calls it after the owning transaction has committed.
type AssetRemover interface {
	Remove(path string) error
}

// DiskAssetRemover removes assets from the local filesystem. A file that is
// already gone counts as removed.
type DiskAssetRemover struct{}

func (DiskAssetRemover) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
