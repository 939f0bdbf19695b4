package credfile

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/bnema/procure-cli/internal/domain"
	"github.com/bnema/procure-cli/internal/ports"
)

const (
	storeDirMode    = 0o700
	storeFileMode   = 0o600
	tempFilePattern = ".session-*.toml.tmp"
)

// Store persists the session as a single TOML record shared by every
// process of the same user. Writes are atomic (temp file + rename) so a
// concurrent reader never observes a half-written record.
type Store struct {
	path string
	log  zerolog.Logger

	mu sync.Mutex
	// Fingerprint of the record state this process already accounts for,
	// either because it wrote it or because the watcher delivered it.
	// The watcher suppresses only events that still resolve to this
	// state; any differing content replaces it, so a mark can never
	// swallow more than the echo of the state it was taken from.
	known *string
}

var (
	_ ports.CredentialStore = (*Store)(nil)
	_ ports.CredentialFeed  = (*Store)(nil)
)

func NewStore(path string, log zerolog.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("session file path is empty")
	}
	return &Store{path: filepath.Clean(trimmed), log: log}, nil
}

// Path returns the location of the session record.
func (s *Store) Path() string { return s.path }

// Read deserializes the persisted session. A missing file means no
// session. A corrupt or incomplete record is purged and reported as
// absent; re-login is the recovery, never a crash.
func (s *Store) Read(ctx context.Context) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	session, ok := decodeRecord(data)
	if !ok {
		s.log.Warn().Str("path", s.path).Msg("purging malformed session record")
		s.purgeLocked()
		return nil, nil
	}

	return session, nil
}

// Write serializes and persists the session, replacing any previous
// record. Other processes watching the file observe the change; this
// process's own watcher does not.
func (s *Store) Write(ctx context.Context, session domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := toml.Marshal(recordFromSession(session))
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), storeDirMode); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create session temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(payload); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write session temp file: %w", err)
	}
	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("chmod session temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close session temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replace session file: %w", err)
	}

	s.markKnownLocked(fingerprint(payload))
	return nil
}

// Clear removes the persisted session. Removing an already absent record
// is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}

	s.markKnownLocked(fingerprint(nil))
	return nil
}

// purgeLocked removes a corrupt record and marks the removal as our own
// so the watcher does not report it as an external change.
func (s *Store) purgeLocked() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", s.path).Msg("purge session record")
		return
	}
	s.markKnownLocked(fingerprint(nil))
}

func (s *Store) markKnownLocked(mark string) {
	s.known = &mark
}

func decodeRecord(data []byte) (*domain.Session, bool) {
	var record sessionRecord
	if err := toml.Unmarshal(data, &record); err != nil {
		return nil, false
	}

	session := record.toSession()
	if strings.TrimSpace(session.AccessToken) == "" || session.ExpiresAt.IsZero() {
		return nil, false
	}

	return &session, true
}

func fingerprint(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
