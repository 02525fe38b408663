package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultArchiveRetention is how long archived transcripts are kept.
	DefaultArchiveRetention = 7 * 24 * time.Hour

	archiveDirName = "archive"
)

// Archiver moves transcripts of closed sessions out of the live directory
// instead of deleting them, and prunes archives past their retention.
type Archiver struct {
	store     *TranscriptStore
	dir       string
	retention time.Duration
	now       func() time.Time
}

// NewArchiver creates an archiver that keeps archives under <store dir>/archive.
func NewArchiver(store *TranscriptStore, retention time.Duration) (*Archiver, error) {
	if retention <= 0 {
		retention = DefaultArchiveRetention
	}

	dir := filepath.Join(store.Dir(), archiveDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		store:     store,
		dir:       dir,
		retention: retention,
		now:       time.Now,
	}, nil
}

// Archive moves the transcript for id into the archive directory. A missing
// transcript is not an error; the conversation simply never had a turn.
func (a *Archiver) Archive(ctx context.Context, id string) error {
	if err := validateConversationID(id); err != nil {
		return err
	}

	lock := a.store.writeLock(id)
	lock.Lock()
	defer lock.Unlock()

	src := a.store.path(id)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	dst := filepath.Join(a.dir, fmt.Sprintf("%s_%d.jsonl", id, a.now().Unix()))
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to archive transcript: %w", err)
	}

	log.Info().
		Str("conversation_id", id).
		Str("path", dst).
		Msg("Transcript archived")

	return nil
}

// Prune removes archived transcripts older than the retention period and
// returns how many were removed.
func (a *Archiver) Prune(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read archive directory: %w", err)
	}

	cutoff := a.now().Add(-a.retention)
	removed := 0

	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(a.dir, e.Name())); err != nil {
			log.Warn().Str("file", e.Name()).Err(err).Msg("Failed to prune archived transcript")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Pruned archived transcripts")
	}

	return removed, nil
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string {
	return a.dir
}
