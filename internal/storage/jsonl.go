package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"betIndexer/internal/model"
)

// JsonlDecodeErrors appends undecodable payloads to a JSONL file.
type JsonlDecodeErrors struct {
	path string
	mu   sync.Mutex
}

func NewJsonlDecodeErrors(path string) *JsonlDecodeErrors {
	return &JsonlDecodeErrors{path: path}
}

// PutDecodeError appends one decode error as a JSON line.
func (s *JsonlDecodeErrors) PutDecodeError(record model.DecodeError) error {
	if s == nil || s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open decode errors file: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal decode error: %w", err)
	}

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write decode error: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return writer.Flush()
}
