package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

/**
 * Install a file to its target location
 * @param {string} src - Source file path
 * @param {string} dst - Target file path
 * @param {os.FileMode} mode - Target permission bits (0755 for executables)
 * @returns {error} Returns error if copy or chmod fails, nil on success
 * @description
 * - Creates the target directory when missing
 * - Copies instead of renaming so src may live on another filesystem
 * - Removes a pre-existing target first so a running binary is replaced
 *   via unlink rather than overwritten in place
 */
func InstallFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create directory for '%s': %w", dst, err)
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing '%s': %w", dst, err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy '%s' to '%s': %w", src, dst, err)
	}
	return os.Chmod(dst, mode)
}

/**
 * Write a file atomically via a same-directory temp file and rename
 * @param {string} path - Target path
 * @param {[]byte} data - File content
 * @param {os.FileMode} mode - Permission bits
 * @returns {error} Returns error if write or rename fails, nil on success
 */
func AtomicWriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
