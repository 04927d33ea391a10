package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/pkg/memory"
)

// maxChunkChars bounds the content length of one imported memory chunk.
// Longer archive entries are split into a chunk group so each row stays
// within a useful embedding length.
const maxChunkChars = 2000

// MemoryArchive is the exported-archive format accepted by import jobs.
type MemoryArchive struct {
	Memories []ArchivedMemory `json:"memories"`
}

// ArchivedMemory is one entry of a memory archive.
type ArchivedMemory struct {
	Content   string    `json:"content"`
	ChannelID string    `json:"channelId,omitempty"`
	GuildID   string    `json:"guildId,omitempty"`
	Senders   []string  `json:"senders,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ImportTracker persists import-job lifecycle state. *jobs.ImportStore is the
// production implementation.
type ImportTracker interface {
	Start(ctx context.Context, id string, totalMemories int) error
	Complete(ctx context.Context, id string, imported int) error
	Fail(ctx context.Context, id, errMsg string, imported int) error
}

// ImportWorker ingests exported memory archives into the vector store. Each
// archive entry becomes one memory, or a chunk group when its content exceeds
// [maxChunkChars]. Entries that fail to embed are skipped, not fatal; the job
// fails only when the archive is unreadable or nothing could be imported.
type ImportWorker struct {
	tracker   ImportTracker
	directory PersonaDirectory
	memories  *memory.Service
	fetcher   Fetcher
	log       *slog.Logger
}

// NewImportWorker wires an ImportWorker. logger may be nil.
func NewImportWorker(tracker ImportTracker, directory PersonaDirectory, memories *memory.Service, fetcher Fetcher, logger *slog.Logger) *ImportWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportWorker{
		tracker:   tracker,
		directory: directory,
		memories:  memories,
		fetcher:   fetcher,
		log:       logger.With("component", "import-worker"),
	}
}

// Process runs one import job end to end.
func (w *ImportWorker) Process(ctx context.Context, env jobs.Envelope) error {
	id := env.Job.ID
	log := w.log.With("importId", id, "requestId", env.Request.RequestID)

	if len(env.Job.Attachments) != 1 {
		return w.fail(ctx, id, fmt.Sprintf("import job carries %d attachments, want 1", len(env.Job.Attachments)), 0, log)
	}

	body, err := w.fetcher.Fetch(ctx, env.Job.Attachments[0].URL)
	if err != nil {
		return w.fail(ctx, id, fmt.Sprintf("fetch archive: %v", err), 0, log)
	}
	var archive MemoryArchive
	if err := json.Unmarshal(body, &archive); err != nil {
		return w.fail(ctx, id, fmt.Sprintf("parse archive: %v", err), 0, log)
	}

	persona, err := w.directory.ByUserID(ctx, env.Request.Context.UserID)
	if err != nil {
		return w.fail(ctx, id, fmt.Sprintf("resolve persona: %v", err), 0, log)
	}

	if err := w.tracker.Start(ctx, id, len(archive.Memories)); err != nil {
		return err
	}

	imported := 0
	for i, entry := range archive.Memories {
		if strings.TrimSpace(entry.Content) == "" {
			continue
		}
		if err := w.importEntry(ctx, env.Request.Personality.ID, persona.ID, entry); err != nil {
			log.Warn("archive entry skipped", "index", i, "error", err)
			continue
		}
		imported++
	}

	if imported == 0 && len(archive.Memories) > 0 {
		return w.fail(ctx, id, "no memories imported", 0, log)
	}
	if err := w.tracker.Complete(ctx, id, imported); err != nil {
		return err
	}
	log.Info("archive imported", "total", len(archive.Memories), "imported", imported)
	return nil
}

// importEntry stores one archive entry, chunking oversized content.
func (w *ImportWorker) importEntry(ctx context.Context, personalityID, personaID string, entry ArchivedMemory) error {
	chunks := chunkContent(entry.Content, maxChunkChars)

	var groupID string
	var total *int
	if len(chunks) > 1 {
		groupID = uuid.NewString()
		n := len(chunks)
		total = &n
	}

	for i, chunk := range chunks {
		mem := memory.Memory{
			PersonaID:     personaID,
			PersonalityID: personalityID,
			Content:       chunk,
			CanonScope:    memory.ScopePersonal,
			SummaryType:   "imported",
			ChannelID:     entry.ChannelID,
			GuildID:       entry.GuildID,
			Senders:       entry.Senders,
			CreatedAt:     entry.CreatedAt,
		}
		if groupID != "" {
			idx := i
			mem.ChunkGroupID = groupID
			mem.ChunkIndex = &idx
			mem.TotalChunks = total
		}
		if _, err := w.memories.Remember(ctx, mem); err != nil {
			return err
		}
	}
	return nil
}

func (w *ImportWorker) fail(ctx context.Context, id, msg string, imported int, log *slog.Logger) error {
	log.Error("import failed", "error", msg)
	if err := w.tracker.Fail(ctx, id, msg, imported); err != nil {
		return err
	}
	return fmt.Errorf("worker: import %s: %s", id, msg)
}

// chunkContent splits content into pieces of at most max characters,
// preferring whitespace boundaries so no word is cut mid-way.
func chunkContent(content string, max int) []string {
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return []string{content}
	}

	var chunks []string
	words := strings.Fields(content)
	var b strings.Builder
	for _, word := range words {
		if b.Len() > 0 && b.Len()+1+len(word) > max {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
