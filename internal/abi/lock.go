package abi

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agilira/go-errors"

	"github.com/goplus/abiguard/internal/errcode"
)

const lockFileName = ".abiguard.lock"

// lockBuildRoot takes an exclusive lock on dir. It fails at once when
// another run holds the lock.
func lockBuildRoot(dir string) (unlock func(), err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create build root: %w", err)
	}
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, errors.Wrap(err, errcode.BuildRootLocked, "build root is used by another run").
			WithContext("path", dir)
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
