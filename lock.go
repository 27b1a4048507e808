package levelhash

import (
	"errors"
	"os"
	"syscall"
)

// fileLock holds an exclusive, non-blocking advisory lock on a sidecar
// ".lock" file, following the single-writer model: a second Open of the
// same index directory+name fails fast rather than queueing. There is
// no in-process registry or reader/writer split layered on top, since
// the engine never supports concurrent readers sharing one Handle.
type fileLock struct {
	file *os.File
	path string
}

// acquireLock creates (if needed) and locks path with LOCK_EX|LOCK_NB.
// It returns errWouldBlock if another process already holds the lock.
func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, errWouldBlock
		}
		return nil, err
	}

	return &fileLock{file: f, path: path}, nil
}

// release unlocks and closes the sidecar file. Idempotent.
func (l *fileLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
