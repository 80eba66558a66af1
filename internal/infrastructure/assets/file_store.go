package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

// FileStore writes assets under root at qr/<first two chars>/<ticket>.png.
// Writes go to a temp file and are renamed into place, so readers never see a
// partial image and the last writer wins.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Path returns the slash-separated path relative to the store root.
func (s *FileStore) Path(ticketNumber string) string {
	shard := ticketNumber
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join("qr", strings.ToLower(shard), ticketNumber+".png")
}

func (s *FileStore) Put(_ context.Context, ticketNumber string, data []byte) (string, error) {
	if err := checkTicket(ticketNumber); err != nil {
		return "", err
	}

	rel := s.Path(ticketNumber)
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp asset: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close asset: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("publish asset: %w", err)
	}
	return rel, nil
}

func (s *FileStore) Open(_ context.Context, ticketNumber string) (io.ReadCloser, error) {
	if err := checkTicket(ticketNumber); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(s.Path(ticketNumber))))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrAssetPending
		}
		return nil, fmt.Errorf("open asset: %w: %v", domain.ErrUnavailable, err)
	}
	return f, nil
}

// Ping checks the root is still a writable directory.
func (s *FileStore) Ping() error {
	f, err := os.CreateTemp(s.root, ".ping-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// checkTicket keeps ticket numbers from escaping the store root.
func checkTicket(ticketNumber string) error {
	if len(ticketNumber) < 2 || strings.ContainsAny(ticketNumber, `/\.`) {
		return fmt.Errorf("%w: invalid ticket number %q", domain.ErrNotFound, ticketNumber)
	}
	return nil
}
