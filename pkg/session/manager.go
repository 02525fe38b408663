package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/sidebar/internal/observability"
	"github.com/harun/sidebar/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrInvalidKey is returned for conversation ids that are empty or not path-safe.
var ErrInvalidKey = errors.New("invalid conversation id")

// Turn is a single message of a conversation transcript.
type Turn struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// TranscriptEntry is one JSONL line of a transcript file.
type TranscriptEntry struct {
	ConversationID string `json:"conversation_id"`
	Turn           Turn   `json:"turn"`
}

// TranscriptStore persists conversation history as one JSONL file per
// conversation id. Writes for the same conversation are serialized.
type TranscriptStore struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewTranscriptStore creates a store rooted at dir, creating it if needed.
func NewTranscriptStore(dir string) (*TranscriptStore, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".sidebar", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Transcript store initialized")

	return &TranscriptStore{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

func validateConversationID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}
	return nil
}

func (ts *TranscriptStore) path(id string) string {
	return filepath.Join(ts.dir, id+".jsonl")
}

func (ts *TranscriptStore) writeLock(id string) *sync.Mutex {
	ts.locksMu.Lock()
	defer ts.locksMu.Unlock()

	if lock, ok := ts.writeLocks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	ts.writeLocks[id] = lock
	return lock
}

// Append writes one turn to the end of a conversation transcript.
func (ts *TranscriptStore) Append(ctx context.Context, id string, turn Turn) error {
	ctx = tracing.WithConversationID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "sidebar.session", "transcript.append",
		attribute.String("conversation_id", id),
		attribute.String("role", turn.Role),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordTranscriptSave(time.Since(start))
	}()

	if err := validateConversationID(id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if turn.Role == "" {
		return fmt.Errorf("turn role cannot be empty")
	}
	if turn.Content == "" {
		return fmt.Errorf("turn content cannot be empty")
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	lock := ts.writeLock(id)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(ts.path(id), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(TranscriptEntry{ConversationID: id, Turn: turn})
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write turn: %w", err)
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("role", turn.Role).
		Msg("Turn appended")

	return nil
}

// Load returns the turns of a conversation in order. A missing transcript is
// an empty conversation. When limit > 0 only the most recent limit turns are
// returned.
func (ts *TranscriptStore) Load(ctx context.Context, id string, limit int) ([]Turn, error) {
	ctx = tracing.WithConversationID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "sidebar.session", "transcript.load",
		attribute.String("conversation_id", id),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()
	defer func() {
		observability.RecordTranscriptLoad(time.Since(start))
	}()

	if err := validateConversationID(id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	file, err := os.Open(ts.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return []Turn{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	var turns []Turn
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e TranscriptEntry
		if err := json.Unmarshal(line, &e); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse transcript line, skipping")
			continue
		}
		if e.Turn.Role == "" || e.Turn.Content == "" {
			continue
		}
		turns = append(turns, e.Turn)
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Delete removes a conversation transcript. Deleting a missing transcript is not an error.
func (ts *TranscriptStore) Delete(ctx context.Context, id string) error {
	if err := validateConversationID(id); err != nil {
		return err
	}

	lock := ts.writeLock(id)
	lock.Lock()
	err := os.Remove(ts.path(id))
	lock.Unlock()

	ts.locksMu.Lock()
	delete(ts.writeLocks, id)
	ts.locksMu.Unlock()

	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	logger := tracing.LoggerFromContext(tracing.WithConversationID(ctx, id), log.Logger)
	logger.Debug().Msg("Transcript deleted")
	return nil
}

// List returns the conversation ids that have a transcript on disk.
func (ts *TranscriptStore) List() ([]string, error) {
	entries, err := os.ReadDir(ts.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	ids := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	return ids, nil
}

// Purge deletes every transcript not in keep. Transcripts are tied to live
// sessions, so after a restart all of them are orphans.
func (ts *TranscriptStore) Purge(ctx context.Context, keep map[string]bool) (int, error) {
	ids, err := ts.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if keep[id] {
			continue
		}
		if err := ts.Delete(ctx, id); err != nil {
			log.Warn().Str("conversation_id", id).Err(err).Msg("Failed to purge transcript")
			continue
		}
		removed++
	}
	return removed, nil
}

// Dir returns the directory holding transcript files.
func (ts *TranscriptStore) Dir() string {
	return ts.dir
}
