// Package artifacts stores step screenshots outside the event stream.
package artifacts

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Object is one artifact to store.
type Object struct {
	RunID       string
	StepID      string
	Name        string
	ContentType string
	Data        []byte
}

// Key returns the storage key <runID>/<stepID>-<name>.
func (o Object) Key() string {
	name := o.Name
	if name == "" {
		name = "screenshot.png"
	}
	if o.StepID == "" {
		return o.RunID + "/" + name
	}
	return o.RunID + "/" + o.StepID + "-" + name
}

// Ref locates a stored artifact.
type Ref struct {
	URI    string `json:"uri"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Store persists artifacts.
type Store interface {
	Put(ctx context.Context, obj Object) (Ref, error)
}

// Digest returns the hex SHA256 of data.
func Digest(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func checkObject(obj Object) error {
	if strings.TrimSpace(obj.RunID) == "" {
		return fmt.Errorf("artifact run id is required")
	}
	for _, part := range []string{obj.RunID, obj.StepID, obj.Name} {
		if strings.Contains(part, "..") || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("invalid artifact path component %q", part)
		}
	}
	return nil
}

// FileStore writes artifacts under a root directory.
type FileStore struct {
	Root string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{Root: dir}, nil
}

func (s *FileStore) Put(ctx context.Context, obj Object) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	if err := checkObject(obj); err != nil {
		return Ref{}, err
	}
	path := filepath.Join(s.Root, filepath.FromSlash(obj.Key()))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Ref{}, fmt.Errorf("create run dir: %w", err)
	}
	if err := os.WriteFile(path, obj.Data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("write artifact: %w", err)
	}
	return Ref{URI: path, SHA256: Digest(obj.Data), Size: int64(len(obj.Data))}, nil
}

// Memory keeps artifacts in memory.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, obj Object) (Ref, error) {
	if err := checkObject(obj); err != nil {
		return Ref{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := obj.Key()
	m.objects[key] = append([]byte(nil), obj.Data...)
	return Ref{URI: "mem://" + key, SHA256: Digest(obj.Data), Size: int64(len(obj.Data))}, nil
}

// Get returns a stored object by key.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
