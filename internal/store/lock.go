package store

import (
	"fmt"
	"os"
	"syscall"
)

// dirLock is an advisory flock on the store directory. It keeps two
// processes from snapshotting into the same data dir; each orchestrator
// instance needs its own storage handle.
type dirLock struct {
	path string
	file *os.File
}

func newDirLock(path string) *dirLock {
	return &dirLock{path: path}
}

func (l *dirLock) TryLock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("acquire store lock (another sentinel may be using %s): %w", l.path, err)
	}

	if err := f.Truncate(0); err != nil {
		l.drop(f)
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		l.drop(f)
		return fmt.Errorf("write pid to lock file: %w", err)
	}

	l.file = f
	return nil
}

func (l *dirLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("release store lock: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	os.Remove(l.path)
	l.file = nil
	return nil
}

func (l *dirLock) drop(f *os.File) {
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
}
