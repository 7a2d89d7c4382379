package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/karmen87/Crypto-Alarm/internal/service/monitor"
)

// fileStore keeps the snapshot as one JSON document. Writes go to a
// temporary file first and replace the old snapshot with an atomic rename,
// an interrupted write cannot corrupt the previous copy.
type fileStore struct {
	path string
}

func NewFileStore(path string) monitor.Persistence {
	return &fileStore{
		path: path,
	}
}

func (s *fileStore) Save(ctx context.Context, state monitor.State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err = os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *fileStore) Load(ctx context.Context) (monitor.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return monitor.State{}, nil
	}
	if err != nil {
		return monitor.State{}, fmt.Errorf("read snapshot: %w", err)
	}

	var state monitor.State
	if err = json.Unmarshal(data, &state); err != nil {
		return monitor.State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, nil
}
