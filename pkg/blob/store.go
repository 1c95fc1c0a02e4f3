package blob

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Container names for the two blob containers the engine writes.
const (
	ContainerIncoming = "orders-incoming"
	ContainerAudit    = "orders-audit"
)

// Well-known audit artifact names.
const (
	ArtifactCanonical        = "canonical.json"
	ArtifactCommitteeVotes   = "committee-votes.json"
	ArtifactCorrections      = "corrections.json"
	ArtifactExternalRequest  = "external-request.json"
	ArtifactExternalResponse = "external-response.json"
)

// indexSchema records every written object for audit queries.
const indexSchema = `
CREATE TABLE IF NOT EXISTS objects (
    uri TEXT PRIMARY KEY,
    container TEXT NOT NULL,
    case_id TEXT NOT NULL,
    name TEXT NOT NULL,
    sha256 TEXT NOT NULL,
    size INTEGER NOT NULL,
    written_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_objects_case ON objects(case_id);
CREATE INDEX IF NOT EXISTS idx_objects_sha ON objects(sha256);
`

// Config contains configuration for the filesystem blob store.
type Config struct {
	// Root is the directory under which containers are created.
	Root string

	// IndexPath is the SQLite object index path. Defaults to
	// <root>/blob-index.db.
	IndexPath string

	// SigningKey signs download URLs. Required for SAS generation.
	SigningKey []byte
}

// WriteOnceError indicates an attempt to overwrite an existing object with
// different content.
type WriteOnceError struct {
	URI string
}

// Error implements the error interface.
func (e *WriteOnceError) Error() string {
	return fmt.Sprintf("blob %q is immutable and already exists with different content", e.URI)
}

// Store is the filesystem-backed evidence store.
type Store struct {
	root   string
	db     *sql.DB
	signer *Signer
	logger *slog.Logger
}

// Open opens the blob store rooted at cfg.Root, creating directories and the
// object index as needed.
func Open(cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Root == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %q: %w", cfg.Root, err)
	}

	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(cfg.Root, "blob-index.db")
	}
	db, err := sql.Open("sqlite", indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blob index schema: %w", err)
	}

	s := &Store{
		root:   cfg.Root,
		db:     db,
		logger: slog.Default().With("component", "blob"),
	}
	if len(cfg.SigningKey) > 0 {
		s.signer = NewSigner(cfg.SigningKey)
	}

	s.logger.Info("blob store opened", "root", cfg.Root)
	return s, nil
}

// URI identifies an object as container/case_id/name.
func URI(container, caseID, name string) string {
	return container + "/" + caseID + "/" + name
}

// Put writes an object and returns its URI and content hash. Writing
// identical bytes to an existing URI is an idempotent no-op; writing
// different bytes fails with WriteOnceError.
func (s *Store) Put(ctx context.Context, container, caseID, name string, data []byte) (uri, sum string, err error) {
	if err := validateSegment(caseID); err != nil {
		return "", "", err
	}
	if err := validateSegment(name); err != nil {
		return "", "", err
	}

	h := sha256.Sum256(data)
	sum = hex.EncodeToString(h[:])
	uri = URI(container, caseID, name)
	path := filepath.Join(s.root, container, caseID, name)

	if existing, err := s.lookupSHA(ctx, uri); err == nil && existing != "" {
		if existing == sum {
			return uri, sum, nil
		}
		return "", "", &WriteOnceError{URI: uri}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create case folder: %w", err)
	}

	// Write through a temp file and rename so partial writes never surface.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", "", fmt.Errorf("failed to publish blob: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO objects (uri, container, case_id, name, sha256, size, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO NOTHING
	`, uri, container, caseID, name, sum, len(data), time.Now().UTC())
	if err != nil {
		return "", "", fmt.Errorf("failed to index blob: %w", err)
	}

	s.logger.Debug("blob written", "uri", uri, "sha256", sum, "size", len(data))
	return uri, sum, nil
}

// Get reads an object by URI.
func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	rel, err := s.relPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q: %w", uri, err)
	}
	return data, nil
}

// Exists reports whether an object with the given URI has been written.
func (s *Store) Exists(ctx context.Context, uri string) (bool, error) {
	sum, err := s.lookupSHA(ctx, uri)
	if err != nil {
		return false, err
	}
	return sum != "", nil
}

// SignedURL returns a time-limited signed download path for an object.
func (s *Store) SignedURL(uri string, expiresAt time.Time) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("blob store has no signing key configured")
	}
	return s.signer.Sign(uri, expiresAt), nil
}

// VerifySignedURL checks a signed download path and returns its object URI.
func (s *Store) VerifySignedURL(signed string, now time.Time) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("blob store has no signing key configured")
	}
	return s.signer.Verify(signed, now)
}

// Close closes the object index.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) lookupSHA(ctx context.Context, uri string) (string, error) {
	var sum string
	err := s.db.QueryRowContext(ctx, `SELECT sha256 FROM objects WHERE uri = ?`, uri).Scan(&sum)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up blob %q: %w", uri, err)
	}
	return sum, nil
}

func (s *Store) relPath(uri string) (string, error) {
	parts := strings.Split(uri, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed blob uri %q", uri)
	}
	for _, p := range parts[1:] {
		if err := validateSegment(p); err != nil {
			return "", err
		}
	}
	return filepath.Join(parts[0], parts[1], parts[2]), nil
}

// validateSegment rejects path traversal in ids and artifact names.
func validateSegment(seg string) error {
	if seg == "" || seg == "." || seg == ".." ||
		strings.ContainsAny(seg, `/\`) {
		return fmt.Errorf("invalid blob path segment %q", seg)
	}
	return nil
}
