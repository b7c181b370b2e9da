package assets

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cloudcut/cloudcut-engine/internal/db"
)

// uploadChunk is the granularity at which blob writes report progress.
const uploadChunk = 256 * 1024

// LocalStore is the in-process asset store: blob bytes on disk, records in
// SQLite. Uploads must present parameters signed by the store's signer.
type LocalStore struct {
	conn    *sql.DB
	blobDir string
	signer  *Signer
	logger  *slog.Logger
}

func NewLocalStore(database *db.DB, blobDir string, signer *Signer, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalStore{conn: database.Conn(), blobDir: blobDir, signer: signer, logger: logger}, nil
}

func (s *LocalStore) List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, public_id, folder, format, width, height, duration_seconds, byte_size, blob_path
		FROM assets
		WHERE public_id LIKE ? AND public_id > ?
		ORDER BY public_id
		LIMIT ?`,
		prefix+"%", cursor, limit+1)
	if err != nil {
		return ListResult{}, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out ListResult
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return ListResult{}, err
		}
		out.Assets = append(out.Assets, s.withURL(a))
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("list assets: %w", err)
	}

	if len(out.Assets) > limit {
		out.Assets = out.Assets[:limit]
		out.NextCursor = out.Assets[limit-1].PublicID
	}
	return out, nil
}

func (s *LocalStore) UploadSigned(ctx context.Context, name string, data []byte, signed SignedParams, progress ProgressFunc) (Asset, error) {
	if s.signer == nil || !s.signer.Verify(signed) {
		return Asset{}, ErrBadSignature
	}

	publicID := signed.Params["public_id"]
	if publicID == "" {
		publicID = sanitizePublicID(name)
	}
	if publicID == "" {
		publicID = uuid.NewString()
	}
	format := signed.Params["format"]
	if format == "" {
		format = "webm"
	}

	var exists int
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assets WHERE public_id = ?", publicID).Scan(&exists); err != nil {
		return Asset{}, fmt.Errorf("check public id: %w", err)
	}
	if exists > 0 {
		return Asset{}, ErrDuplicateID
	}

	id := uuid.NewString()
	blobPath := filepath.Join(s.blobDir, id+"."+format)

	f, err := os.Create(blobPath)
	if err != nil {
		return Asset{}, fmt.Errorf("create blob: %w", err)
	}
	total := int64(len(data))
	var sent int64
	for sent < total {
		end := sent + uploadChunk
		if end > total {
			end = total
		}
		if _, err := f.Write(data[sent:end]); err != nil {
			f.Close()
			os.Remove(blobPath)
			return Asset{}, fmt.Errorf("write blob: %w", err)
		}
		sent = end
		if progress != nil {
			progress(sent, total)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(blobPath)
		return Asset{}, fmt.Errorf("close blob: %w", err)
	}

	a := Asset{
		ID:       id,
		PublicID: publicID,
		Folder:   signed.Params["folder"],
		Format:   format,
		ByteSize: total,
	}

	if _, err := s.conn.ExecContext(ctx, `
		INSERT INTO assets (id, public_id, folder, format, byte_size, blob_path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.PublicID, a.Folder, a.Format, a.ByteSize, blobPath); err != nil {
		os.Remove(blobPath)
		return Asset{}, fmt.Errorf("insert asset: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("asset stored", "asset_id", a.ID, "public_id", a.PublicID, "bytes", total)
	}
	return s.withURL(a), nil
}

func (s *LocalStore) Rename(ctx context.Context, oldPublicID, newPublicID string) (Asset, error) {
	newPublicID = sanitizePublicID(newPublicID)
	if newPublicID == "" {
		return Asset{}, fmt.Errorf("assets: empty target name")
	}

	var taken int
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assets WHERE public_id = ?", newPublicID).Scan(&taken); err != nil {
		return Asset{}, fmt.Errorf("check target name: %w", err)
	}
	if taken > 0 && newPublicID != oldPublicID {
		return Asset{}, ErrDuplicateID
	}

	res, err := s.conn.ExecContext(ctx,
		"UPDATE assets SET public_id = ?, updated_at = datetime('now') WHERE public_id = ?",
		newPublicID, oldPublicID)
	if err != nil {
		return Asset{}, fmt.Errorf("rename asset: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return Asset{}, ErrNotFound
	}

	row := s.conn.QueryRowContext(ctx, `
		SELECT id, public_id, folder, format, width, height, duration_seconds, byte_size, blob_path
		FROM assets WHERE public_id = ?`, newPublicID)
	a, err := scanAsset(row)
	if err != nil {
		return Asset{}, err
	}
	return s.withURL(a), nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	var blobPath string
	err := s.conn.QueryRowContext(ctx, "SELECT blob_path FROM assets WHERE id = ?", id).Scan(&blobPath)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup asset: %w", err)
	}

	if _, err := s.conn.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if blobPath != "" {
		// Blob removal is best effort; the record is already gone.
		os.Remove(blobPath)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(r rowScanner) (Asset, error) {
	var a Asset
	var blobPath string
	if err := r.Scan(&a.ID, &a.PublicID, &a.Folder, &a.Format,
		&a.Width, &a.Height, &a.DurationSeconds, &a.ByteSize, &blobPath); err != nil {
		if err == sql.ErrNoRows {
			return Asset{}, ErrNotFound
		}
		return Asset{}, fmt.Errorf("scan asset: %w", err)
	}
	return a, nil
}

func (s *LocalStore) withURL(a Asset) Asset {
	cloud := "local"
	if s.signer != nil && s.signer.cloudName != "" {
		cloud = s.signer.cloudName
	}
	a.PlayableURL = fmt.Sprintf("cloudcut://%s/upload/%s.%s", cloud, a.PublicID, a.Format)
	return a
}

// sanitizePublicID keeps letters, digits, dash, underscore and dots,
// mapping everything else to underscores.
func sanitizePublicID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
