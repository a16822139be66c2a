package workbook

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	apperrors "aquaexport/internal/errors"
)

// OwnerFilePrefix is the prefix of the owner file a spreadsheet application
// keeps next to a workbook it has open.
const OwnerFilePrefix = "~$"

// CheckWritable is a best-effort test that path is not held open by another
// program. A missing file is writable.
func CheckWritable(path string) error {
	owner := filepath.Join(filepath.Dir(path), OwnerFilePrefix+filepath.Base(path))
	if _, err := os.Stat(owner); err == nil {
		return apperrors.NewWorkbookAccessError(path, apperrors.ErrFileLocked).
			WithContext("owner_file", owner)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return apperrors.NewWorkbookAccessError(path, errors.Join(apperrors.ErrFileLocked, err))
	}
	return f.Close()
}

// keyedMutex serialises work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex of key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// workbookLocks is shared by every merger in the process.
var workbookLocks = newKeyedMutex()
