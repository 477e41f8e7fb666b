package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// DefaultMaxFileSize is used when a rotating file is given no limit.
const DefaultMaxFileSize = 10 * 1024 * 1024

// RotatingFile is a zapcore.WriteSyncer that appends to a file and, once
// the file reaches its size limit, renames it to <path>.old and starts a
// new one. Only one previous generation is kept.
type RotatingFile struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	size    int64
}

// NewRotatingFile opens path for appending, creating parent directories.
func NewRotatingFile(path string, maxBytes int64) (*RotatingFile, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	r := &RotatingFile{path: path, maxSize: maxBytes}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// Write appends p, rotating first if p would push the file over its limit.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, os.ErrClosed
	}
	var rotateErr error
	if r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		rotateErr = r.rotate()
		if r.file == nil {
			return 0, rotateErr
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	if err == nil {
		err = rotateErr
	}
	return n, err
}

// rotate moves the live file to <path>.old and reopens path. When the move
// fails the original file is reopened, so writes keep landing there.
func (r *RotatingFile) rotate() error {
	err := r.file.Close()
	if err == nil {
		err = r.shift()
	}
	if openErr := r.open(); openErr != nil {
		r.file = nil
		return errors.Join(err, openErr)
	}
	if err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return nil
}

func (r *RotatingFile) shift() error {
	old := r.path + ".old"
	if err := os.Remove(old); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(r.path, old)
}

// Sync flushes the current file.
func (r *RotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// Close closes the current file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
