package wallet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const idSuffix = ".id"

// FileStore keeps one <label>.id file per identity in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create wallet dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(label string) (string, error) {
	if label == "" || strings.ContainsAny(label, `/\`) || label == "." || label == ".." {
		return "", fmt.Errorf("invalid identity label %q", label)
	}
	return filepath.Join(s.dir, label+idSuffix), nil
}

func (s *FileStore) Get(label string) (*Identity, error) {
	p, err := s.path(label)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("read identity %s: %w", label, err)
	}
	return Decode(data)
}

func (s *FileStore) Put(label string, id *Identity) error {
	p, err := s.path(label)
	if err != nil {
		return err
	}
	data, err := Encode(id)
	if err != nil {
		return err
	}
	// write-then-rename so a crashed import never leaves a torn file
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write identity %s: %w", label, err)
	}
	return os.Rename(tmp, p)
}

func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list wallet: %w", err)
	}
	var labels []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), idSuffix) {
			continue
		}
		labels = append(labels, strings.TrimSuffix(e.Name(), idSuffix))
	}
	sort.Strings(labels)
	return labels, nil
}

var _ Store = (*FileStore)(nil)
