//go:build !windows

package utils

import "syscall"

/**
 * Acquire the advisory lock, blocking until available
 * @returns {error} Returns error if the lock file cannot be opened or flocked
 */
func (l *FileLock) Lock() error {
	if l.file == nil {
		if err := l.open(); err != nil {
			return err
		}
	}
	return syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX)
}

// Unlock releases the lock and closes the file.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
	return err
}
