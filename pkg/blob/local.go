package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// LocalStore writes blobs to the local filesystem under
// baseDir/<organization_id>/<file_id>. It stands in for the production
// object store in single-node deployments and development.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a filesystem-backed blob store rooted at baseDir
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Put stores the blob, creating the per-organization directory as needed.
func (s *LocalStore) Put(ctx context.Context, orgID, fileID uuid.UUID, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.baseDir, orgID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create organization blob directory: %w", err)
	}
	path := filepath.Join(dir, fileID.String())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", fileID, err)
	}
	return nil
}

// MemoryStore is an in-memory blob store used in tests.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory blob store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores the blob under (orgID, fileID).
func (s *MemoryStore) Put(ctx context.Context, orgID, fileID uuid.UUID, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[orgID.String()+"/"+fileID.String()] = append([]byte(nil), data...)
	return nil
}

// Get returns a stored blob, or nil when absent.
func (s *MemoryStore) Get(orgID, fileID uuid.UUID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[orgID.String()+"/"+fileID.String()]
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
