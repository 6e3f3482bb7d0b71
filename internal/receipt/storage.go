package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for storing the original uploaded files
type Storage interface {
	// Save stores a file and returns the name to retrieve it by
	Save(filename string, data []byte) (string, error)

	// Get retrieves a file by name
	Get(name string) ([]byte, error)

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(name string) error
}

// LocalStorage implements Storage on a local directory
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the storage directory if needed
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Save writes a file into the storage directory
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	// Uploaded names are caller-sanitized, but never trust them with path
	// separators
	name := filepath.Base(filename)
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get reads a file from the storage directory
func (l *LocalStorage) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from the storage directory
func (l *LocalStorage) Delete(name string) error {
	err := os.Remove(filepath.Join(l.dir, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
