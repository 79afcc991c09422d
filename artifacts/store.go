package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store persists artifacts on the local filesystem. Each artifact lives
// under basePath/<id>/ as a data file plus metadata.json; basePath/index.json
// holds the full index.
type Store struct {
	basePath string
	maxSize  int64
	ttl      time.Duration
	logger   *zap.Logger

	mu    sync.RWMutex
	index map[string]*Artifact
}

// Config configures the artifact store.
type Config struct {
	BasePath   string        `json:"base_path" yaml:"base_path"`
	MaxSize    int64         `json:"max_size" yaml:"max_size"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:   "./artifacts",
		MaxSize:    100 * 1024 * 1024, // 100MB
		DefaultTTL: 0,
	}
}

// NewStore creates a store and loads any existing index.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	s := &Store{
		basePath: cfg.BasePath,
		maxSize:  cfg.MaxSize,
		ttl:      cfg.DefaultTTL,
		logger:   logger.With(zap.String("component", "artifact_store")),
		index:    make(map[string]*Artifact),
	}

	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create stores a new artifact and records it in the index.
func (s *Store) Create(ctx context.Context, name string, typ Type, data io.Reader, opts ...CreateOption) (*Artifact, error) {
	options := &createOptions{}
	for _, opt := range opts {
		opt(options)
	}

	buf := new(bytes.Buffer)
	size, err := io.Copy(buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		return nil, fmt.Errorf("artifact %s exceeds max size: %d > %d", name, size, s.maxSize)
	}

	dataBytes := buf.Bytes()
	hash := sha256.Sum256(dataBytes)

	artifact := &Artifact{
		ID:        newArtifactID(),
		Name:      name,
		Type:      typ,
		MimeType:  options.mimeType,
		Size:      size,
		Checksum:  hex.EncodeToString(hash[:]),
		Metadata:  options.metadata,
		Tags:      options.tags,
		CreatedAt: time.Now(),
		RunID:     options.runID,
	}

	ttl := options.ttl
	if ttl == 0 {
		ttl = s.ttl
	}
	if ttl > 0 {
		expiresAt := artifact.CreatedAt.Add(ttl)
		artifact.ExpiresAt = &expiresAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	artifactDir := filepath.Join(s.basePath, artifact.ID)
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	dataPath := filepath.Join(artifactDir, "data")
	if err := os.WriteFile(dataPath, dataBytes, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write data: %w", err)
	}
	artifact.StoragePath = dataPath

	metaPath := filepath.Join(artifactDir, "metadata.json")
	metaData, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaData, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	s.index[artifact.ID] = artifact
	if err := s.saveIndexLocked(); err != nil {
		return nil, err
	}

	s.logger.Info("artifact created",
		zap.String("id", artifact.ID),
		zap.String("name", name),
		zap.String("type", string(typ)),
		zap.Int64("size", size),
	)

	return artifact, nil
}

// Open returns an artifact's metadata together with a reader for its data.
func (s *Store) Open(ctx context.Context, artifactID string) (*Artifact, io.ReadCloser, error) {
	s.mu.RLock()
	artifact, ok := s.index[artifactID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("artifact not found: %s", artifactID)
	}

	file, err := os.Open(artifact.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data: %w", err)
	}
	return artifact, file, nil
}

// GetMetadata retrieves artifact metadata without data.
func (s *Store) GetMetadata(ctx context.Context, artifactID string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.index[artifactID]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}
	return artifact, nil
}

// Delete removes an artifact's directory and updates the index.
func (s *Store) Delete(ctx context.Context, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[artifactID]; !ok {
		return fmt.Errorf("artifact not found: %s", artifactID)
	}

	if err := os.RemoveAll(filepath.Join(s.basePath, artifactID)); err != nil {
		return fmt.Errorf("failed to remove artifact dir: %w", err)
	}

	delete(s.index, artifactID)
	return s.saveIndexLocked()
}

// List returns artifacts matching the query, newest first.
func (s *Store) List(ctx context.Context, query Query) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Artifact
	for _, artifact := range s.index {
		if query.Type != "" && artifact.Type != query.Type {
			continue
		}
		if query.RunID != "" && artifact.RunID != query.RunID {
			continue
		}
		if len(query.Tags) > 0 && !hasAllTags(artifact.Tags, query.Tags) {
			continue
		}
		results = append(results, artifact)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Cleanup removes expired artifacts and reports how many were deleted.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	s.mu.RLock()
	var expired []string
	now := time.Now()
	for id, artifact := range s.index {
		if artifact.ExpiresAt != nil && artifact.ExpiresAt.Before(now) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	deleted := 0
	for _, id := range expired {
		if err := s.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to delete expired artifact",
				zap.String("id", id),
				zap.Error(err),
			)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info("artifact cleanup completed", zap.Int("deleted", deleted))
	}
	return deleted, nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

func (s *Store) indexPath() string {
	return filepath.Join(s.basePath, "index.json")
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read index: %w", err)
	}

	var artifacts []*Artifact
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return fmt.Errorf("failed to parse index: %w", err)
	}

	for _, a := range artifacts {
		s.index[a.ID] = a
	}
	return nil
}

func (s *Store) saveIndexLocked() error {
	artifacts := make([]*Artifact, 0, len(s.index))
	for _, a := range s.index {
		artifacts = append(artifacts, a)
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
	})

	data, err := json.MarshalIndent(artifacts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := os.WriteFile(s.indexPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}
