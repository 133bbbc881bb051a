package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type fileCheckpoint struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// FileCheckpointStore persists the checkpoint as a JSON document on disk.
type FileCheckpointStore struct {
	path string
	seed uint64
}

// NewFileCheckpointStore returns a store that reports seed until a checkpoint is saved.
func NewFileCheckpointStore(path string, seed uint64) (*FileCheckpointStore, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint file path is required")
	}
	return &FileCheckpointStore{path: path, seed: seed}, nil
}

func (c *FileCheckpointStore) LoadCheckpoint(_ context.Context) (uint64, error) {
	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c.seed, nil
		}
		return 0, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return 0, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp fileCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return 0, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp.LastProcessedBlock, nil
}

func (c *FileCheckpointStore) SaveCheckpoint(_ context.Context, block uint64) error {
	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(fileCheckpoint{
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// write then rename so a crash never leaves a torn file
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
