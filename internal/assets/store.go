// Package assets implements the asset store collaborators: the signing
// service for uploads, the store interface with a local SQLite-backed
// implementation and a remote HTTP client, and the smart-crop URL transform
// with its fallback ladder.
package assets

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("assets: asset not found")
	ErrBadSignature = errors.New("assets: upload signature invalid")
	ErrDuplicateID  = errors.New("assets: public id already exists")
)

// Asset is one stored video asset as exposed to the engine.
type Asset struct {
	ID              string  `json:"id"`
	PublicID        string  `json:"public_id"`
	PlayableURL     string  `json:"playable_url"`
	Folder          string  `json:"folder,omitempty"`
	Format          string  `json:"format,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ByteSize        int64   `json:"byte_size,omitempty"`
}

// ListResult is one page of assets.
type ListResult struct {
	Assets     []Asset `json:"assets"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// ProgressFunc observes upload progress in bytes.
type ProgressFunc func(sent, total int64)

// Store is the asset store collaborator surface. Persistence lives entirely
// behind it; the engine core never owns a wire or file format.
type Store interface {
	List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error)
	UploadSigned(ctx context.Context, name string, data []byte, signed SignedParams, progress ProgressFunc) (Asset, error)
	Rename(ctx context.Context, oldPublicID, newPublicID string) (Asset, error)
	Delete(ctx context.Context, id string) error
}
