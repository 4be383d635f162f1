package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

// Sink appends one JSON line per finished query to a local file. The
// mutex plus O_APPEND keeps lines whole even with concurrent pipelines
// sharing a sink.
type Sink struct {
	mu   sync.Mutex
	file *os.File
}

func New(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create query log dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open query log: %w", err)
	}
	return &Sink{file: file}, nil
}

func (s *Sink) Record(_ context.Context, record domain.QueryRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal query record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append query record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync query log: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
