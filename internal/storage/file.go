package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxEntries caps the token document.
const DefaultMaxEntries = 100

// TokenStore merges tokens into the persisted document.
type TokenStore interface {
	Merge(ctx context.Context, token Token) (Outcome, error)
	Load(ctx context.Context) ([]Token, error)
}

// FileStore keeps the newest-first token document in a single JSON file.
//
// Every merge rewrites the whole file. The mutex serialises merges inside one process; it
// does nothing for a second process writing the same file (see AdvisoryLocker).
type FileStore struct {
	path   string
	max    int
	logger zerolog.Logger

	mu sync.Mutex
}

// NewFileStore builds a FileStore for path holding at most max tokens.
func NewFileStore(path string, max int, logger zerolog.Logger) *FileStore {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &FileStore{
		path:   path,
		max:    max,
		logger: logger.With().Str("component", "token_store").Str("path", path).Logger(),
	}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Init writes an empty document when none exists yet, so readers never hit a missing file.
func (s *FileStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat token store: %w", err)
	}

	s.logger.Info().Msg("creating empty token store")
	return s.write([]Token{})
}

// Load returns the stored tokens, newest first. A missing or unparseable document reads as empty.
func (s *FileStore) Load(_ context.Context) ([]Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Merge prepends token unless its ID is already stored, then trims the tail to the cap.
func (s *FileStore) Merge(_ context.Context, token Token) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.read()
	if err != nil {
		return 0, err
	}

	for _, existing := range tokens {
		if existing.ID == token.ID {
			return OutcomeAlreadyPresent, nil
		}
	}

	merged := make([]Token, 0, min(len(tokens)+1, s.max))
	merged = append(merged, token)
	merged = append(merged, tokens...)
	if len(merged) > s.max {
		merged = merged[:s.max]
	}

	if err := s.write(merged); err != nil {
		return 0, err
	}
	return OutcomeInserted, nil
}

func (s *FileStore) read() ([]Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Token{}, nil
		}
		return nil, fmt.Errorf("read token store: %w", err)
	}

	var tokens []Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		s.logger.Warn().Err(err).Msg("token store unreadable; starting from empty")
		return []Token{}, nil
	}
	if tokens == nil {
		tokens = []Token{}
	}
	return tokens, nil
}

// write replaces the document atomically: temp file in the same directory, fsync, rename.
func (s *FileStore) write(tokens []Token) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tokens); err != nil {
		return fmt.Errorf("encode token store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create token store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp token store: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp token store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp token store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp token store: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp token store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace token store: %w", err)
	}
	return nil
}

var _ TokenStore = (*FileStore)(nil)
