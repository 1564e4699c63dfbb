package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is a serializable snapshot of an agent's run state.
type Checkpoint struct {
	ID        string    `json:"id"`
	AgentName string    `json:"agent_name"`
	CreatedAt time.Time `json:"created_at"`
	State     *State    `json:"state"`
}

// Snapshot captures the current state. The copy is independent of the
// live state.
func (a *Agent) Snapshot() *Checkpoint {
	return &Checkpoint{
		ID:        uuid.New().String(),
		AgentName: a.name,
		CreatedAt: time.Now(),
		State:     a.state.Clone(),
	}
}

// Restore replaces the agent's state with the checkpointed one.
func (a *Agent) Restore(cp *Checkpoint) error {
	if cp == nil || cp.State == nil {
		return fmt.Errorf("restore: empty checkpoint")
	}
	if cp.State.Status == StatusRunning {
		return fmt.Errorf("restore: checkpoint captured mid-run")
	}
	a.state = cp.State.Clone()
	return nil
}

// CheckpointStore persists checkpoints.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, id string) (*Checkpoint, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// MemoryCheckpointStore keeps checkpoints in process memory.
type MemoryCheckpointStore struct {
	mu  sync.RWMutex
	all map[string]*Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{all: make(map[string]*Checkpoint)}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.ID == "" {
		return fmt.Errorf("save checkpoint: missing id")
	}
	s.mu.Lock()
	s.all[cp.ID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	cp, ok := s.all[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("checkpoint %q not found", id)
	}
	return cp, nil
}

func (s *MemoryCheckpointStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.all))
	for id := range s.all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryCheckpointStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.all, id)
	s.mu.Unlock()
	return nil
}

// FileCheckpointStore writes one JSON file per checkpoint under a
// directory. Writes go through a temp file plus rename.
type FileCheckpointStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileCheckpointStore{dir: dir}, nil
}

func (s *FileCheckpointStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.ID == "" {
		return fmt.Errorf("save checkpoint: missing id")
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path(cp.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, s.path(cp.ID))
}

func (s *FileCheckpointStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path(id))
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint %q not found", id)
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %q: %w", id, err)
	}
	return &cp, nil
}

func (s *FileCheckpointStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".json"); ok {
			ids = append(ids, name)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileCheckpointStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
