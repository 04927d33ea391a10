// Package memory defines the long-term memory model used by Animus
// personalities.
//
// Memories are embedded text rows in a pgvector-backed index with
// multi-layered visibility scoping:
//
//   - global — shared by every user of a personality.
//   - personal — visible only to the owning user (recoverable via persona).
//   - session — bound to one ephemeral conversation.
//
// Writes are guarded by a pending-memory outbox: a mirror row is persisted
// before the embedding call and deleted only after the vector insert
// succeeds, so a crash between the two leaves a retryable record instead of
// a lost memory.
//
// All interfaces are public so that external packages can supply alternative
// storage backends without depending on Animus internals. Every
// implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// EmbeddingDimensions is the fixed dimensionality of stored memory vectors.
// It matches the platform embedding model (BGE-small-en-v1.5).
const EmbeddingDimensions = 384

// CanonScope is the visibility class of a memory.
type CanonScope string

const (
	// ScopeGlobal memories are shared by all users of a personality.
	ScopeGlobal CanonScope = "global"

	// ScopePersonal memories belong to a single user's persona.
	ScopePersonal CanonScope = "personal"

	// ScopeSession memories are bound to one ephemeral conversation and
	// require a session id.
	ScopeSession CanonScope = "session"
)

// IsValid reports whether s is a recognised canon scope.
func (s CanonScope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopePersonal, ScopeSession:
		return true
	}
	return false
}

// Memory is one stored long-term memory row.
//
// Invariants: Embedding is 384-dim and L2-normalized, written once and
// immutable thereafter; ScopeSession rows carry a SessionID; the chunking
// fields (ChunkGroupID, ChunkIndex, TotalChunks) are all set or all unset.
type Memory struct {
	// ID is the unique identifier for this memory (a UUID).
	ID string

	// PersonaID identifies the owning user's persona. The user id is
	// recoverable through it for personal-scope access checks.
	PersonaID string

	// PersonalityID identifies the personality this memory belongs to.
	PersonalityID string

	// Content is the memory text.
	Content string

	// Embedding is the L2-normalized vector representation of Content.
	Embedding []float32

	// CanonScope is the visibility class.
	CanonScope CanonScope

	// SummaryType labels how the content was produced (e.g., "turn",
	// "summary", "import").
	SummaryType string

	// ChannelID / GuildID / SessionID locate where the memory was formed.
	ChannelID string
	GuildID   string
	SessionID string

	// Senders lists the display names involved in the remembered exchange.
	Senders []string

	// MessageIDs lists the platform message ids the memory was built from.
	MessageIDs []string

	// CreatedAt is when the memory was inserted.
	CreatedAt time.Time

	// Chunking fields, set only for multi-chunk imports.
	ChunkGroupID string
	ChunkIndex   *int
	TotalChunks  *int

	// PersonaName and PersonalityName are display names joined in at query
	// time. Never persisted on the memory row itself.
	PersonaName     string
	PersonalityName string
}

// PendingMemory mirrors a memory row before its embedding is written. It is
// created before the embedding call, deleted on success, and updated with
// attempt accounting on failure so a background task can retry it.
type PendingMemory struct {
	ID            string
	PersonaID     string
	PersonalityID string
	Content       string
	CanonScope    CanonScope
	SummaryType   string
	ChannelID     string
	GuildID       string
	SessionID     string
	Senders       []string
	MessageIDs    []string
	CreatedAt     time.Time

	// Attempts counts embed-and-insert tries so far.
	Attempts int

	// LastAttemptAt is when the most recent try happened.
	LastAttemptAt time.Time

	// LastError is the message of the most recent failure.
	LastError string
}

// ScoredMemory pairs a retrieved memory with its cosine distance from the
// query embedding. Lower Distance means higher similarity.
type ScoredMemory struct {
	Memory   Memory
	Distance float64
}

// QueryOptions narrows a similarity query.
type QueryOptions struct {
	// PersonaID is the requesting user's persona. Required: personal-scope
	// rows are only returned when they belong to it.
	PersonaID string

	// PersonalityID restricts results to one personality when set.
	PersonalityID string

	// Limit caps the number of results. Zero means the default of 10.
	Limit int

	// ScoreThreshold is the minimum cosine similarity in [0, 1]. Zero means
	// the default of 0.85 (cosine distance < 0.15).
	ScoreThreshold float64

	// ExcludeNewerThan drops rows created after this instant, so memories
	// already covered by the conversation-history horizon are not repeated.
	// A zero Time disables the bound.
	ExcludeNewerThan time.Time

	// ExcludeIDs drops rows already returned by earlier queries in a
	// waterfall (growing exclude-list deduplication).
	ExcludeIDs []string

	// ChannelIDs restricts results to the given channels when non-empty.
	ChannelIDs []string

	// Scopes lists the permitted canon scopes. Empty means all three.
	Scopes []CanonScope

	// SessionID is the active session; required when ScopeSession is
	// permitted.
	SessionID string
}

// DefaultLimit and DefaultScoreThreshold back the zero values of
// [QueryOptions].
const (
	DefaultLimit          = 10
	DefaultScoreThreshold = 0.85
)

// Store is the persistence abstraction for memory rows.
//
// Implementations must be safe for concurrent use; each insert is its own
// transaction.
type Store interface {
	// Insert writes a fully populated memory row, embedding included.
	Insert(ctx context.Context, mem Memory) error

	// Query returns the memories most similar to embedding, filtered by
	// opts, ordered by ascending distance. Returns an empty (non-nil) slice
	// when nothing matches.
	Query(ctx context.Context, embedding []float32, opts QueryOptions) ([]ScoredMemory, error)

	// DeleteSessionMemories removes every session-scope row for the given
	// personality and session, returning the number of rows removed.
	// Deleting an unknown session is not an error.
	DeleteSessionMemories(ctx context.Context, personalityID, sessionID string) (int64, error)
}

// Outbox is the pending-memory write-ahead table.
//
// The outbox row is deleted in a separate transaction from the vector
// insert. A crash in between leaves a visible memory with a surviving outbox
// row; the retry drain tolerates this because inserts are idempotent on ID.
type Outbox interface {
	// Create persists a pending row before the embedding call.
	Create(ctx context.Context, pending PendingMemory) error

	// Delete removes a pending row after a successful insert. Deleting a
	// missing row is not an error.
	Delete(ctx context.Context, id string) error

	// MarkFailed increments the attempt counter and records the failure.
	MarkFailed(ctx context.Context, id string, attemptErr error) error

	// ListDue returns up to limit pending rows ordered oldest first.
	ListDue(ctx context.Context, limit int) ([]PendingMemory, error)
}
