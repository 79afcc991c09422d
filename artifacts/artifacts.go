// Package artifacts persists the files this toolkit produces: generated
// code, JSON diagnostic reports and annotated images. Every artifact is
// stored as a directory (data file + metadata.json) under a base path,
// with a global index for listing.
package artifacts

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies an artifact.
type Type string

const (
	TypeCode   Type = "code"   // generated source code
	TypeReport Type = "report" // JSON diagnostic report
	TypeImage  Type = "image"  // annotated image
	TypeData   Type = "data"   // anything else
)

// Artifact is the metadata record of a stored artifact.
type Artifact struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        Type           `json:"type"`
	MimeType    string         `json:"mime_type,omitempty"`
	Size        int64          `json:"size"`
	Checksum    string         `json:"checksum"`
	StoragePath string         `json:"storage_path"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	RunID       string         `json:"run_id,omitempty"`
}

// Query filters List results. Zero fields match everything.
type Query struct {
	Type  Type     `json:"type,omitempty"`
	RunID string   `json:"run_id,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// CreateOption configures artifact creation.
type CreateOption func(*createOptions)

type createOptions struct {
	metadata map[string]any
	tags     []string
	mimeType string
	ttl      time.Duration
	runID    string
}

func WithMetadata(metadata map[string]any) CreateOption {
	return func(o *createOptions) { o.metadata = metadata }
}

func WithTags(tags ...string) CreateOption {
	return func(o *createOptions) { o.tags = tags }
}

func WithMimeType(mimeType string) CreateOption {
	return func(o *createOptions) { o.mimeType = mimeType }
}

func WithTTL(ttl time.Duration) CreateOption {
	return func(o *createOptions) { o.ttl = ttl }
}

func WithRunID(runID string) CreateOption {
	return func(o *createOptions) { o.runID = runID }
}

func newArtifactID() string {
	return "art_" + uuid.NewString()
}
