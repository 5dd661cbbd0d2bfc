package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"fwblock/internal/domain"
)

// File keeps the record list as a JSON array on disk.
type File struct {
	Path string
}

func NewFile(path string) *File {
	return &File{Path: path}
}

// Load reads the record list. A missing file yields an empty list.
func (f *File) Load(_ context.Context) ([]domain.BlockRecord, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Block list file not found, starting empty", "path", f.Path)
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	records, err := DecodeRecords(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return records, nil
}

// Save replaces the file with the given list through a temporary file and a
// rename, so a crash never leaves a truncated list behind.
func (f *File) Save(_ context.Context, records []domain.BlockRecord) error {
	if records == nil {
		records = []domain.BlockRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	data = append(data, '\n')

	return WriteAtomic(f.Path, bytes.NewReader(data), 0o644)
}

// DecodeRecords parses a JSON array of records, rejecting unknown fields.
func DecodeRecords(r io.Reader) ([]domain.BlockRecord, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var records []domain.BlockRecord
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// WriteAtomic writes data to destPath via a synced temporary file in the same
// directory followed by a rename.
func WriteAtomic(destPath string, data io.Reader, perm os.FileMode) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(destPath)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("copy data: %w", err)
	}

	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	return nil
}
