package utils

import (
	"os"
	"path/filepath"
)

// FileLock is an advisory lock serializing concurrent keeper processes
// around the scrape-document read-modify-write and the unit install/reload
// sequence. A single lock file guards both shared resources.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) open() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}
