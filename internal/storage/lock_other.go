//go:build !unix

package storage

import (
	"os"
	"path/filepath"
)

// lockDirectory only creates the lock file on platforms without flock.
func lockDirectory(dir string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0644)
}

func unlockDirectory(f *os.File) {
	f.Close()
}
