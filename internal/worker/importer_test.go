package worker

import (
	"context"
	"strings"
	"testing"

	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/pkg/memory"
	memmock "github.com/animus-ai/animus/pkg/memory/mock"
	embmock "github.com/animus-ai/animus/pkg/provider/embeddings/mock"
	"github.com/animus-ai/animus/pkg/types"
)

type trackerStub struct {
	started   bool
	total     int
	completed bool
	imported  int
	failedMsg string
}

func (t *trackerStub) Start(ctx context.Context, id string, total int) error {
	t.started = true
	t.total = total
	return nil
}

func (t *trackerStub) Complete(ctx context.Context, id string, imported int) error {
	t.completed = true
	t.imported = imported
	return nil
}

func (t *trackerStub) Fail(ctx context.Context, id, msg string, imported int) error {
	t.failedMsg = msg
	t.imported = imported
	return nil
}

func importEnvelope(archiveURL string) jobs.Envelope {
	return jobs.Envelope{
		Job: types.Job{
			ID:          "shapes-import-req-1",
			Type:        types.JobShapesImport,
			RequestID:   "req-1",
			Attachments: []types.Attachment{{URL: archiveURL, ContentType: "application/json"}},
		},
		Request: types.Request{
			RequestID:   "req-1",
			Personality: types.Personality{ID: "pers-1", Name: "Zephyrine"},
			Context:     types.RequestContext{UserID: "user-1"},
		},
	}
}

func newImportFixture(archive []byte) (*ImportWorker, *trackerStub, *memmock.Store) {
	tracker := &trackerStub{}
	store := memmock.NewStore()
	memSvc := memory.NewService(
		&embmock.Provider{EmbedResult: []float32{3, 4}},
		store,
		memmock.NewOutbox(),
		nil,
	)
	w := NewImportWorker(
		tracker,
		&directoryStub{persona: types.Persona{ID: "persona-1", UserID: "user-1", Name: "Alice"}},
		memSvc,
		&fetcherStub{body: archive},
		nil,
	)
	return w, tracker, store
}

func TestImportWorkerProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("imports archive entries", func(t *testing.T) {
		archive := []byte(`{"memories":[
			{"content":"Alice prefers tea over coffee.","channelId":"chan-1"},
			{"content":"The server uses UTC timestamps."},
			{"content":"   "}
		]}`)
		w, tracker, store := newImportFixture(archive)

		if err := w.Process(ctx, importEnvelope("https://cdn.example/archive.json")); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if !tracker.started || tracker.total != 3 {
			t.Errorf("tracker start = %v total = %d", tracker.started, tracker.total)
		}
		if !tracker.completed || tracker.imported != 2 {
			t.Errorf("tracker complete = %v imported = %d, want 2", tracker.completed, tracker.imported)
		}
		if store.Len() != 2 {
			t.Errorf("stored %d memories, want 2", store.Len())
		}
		for _, mem := range store.Memories {
			if mem.SummaryType != "imported" || mem.CanonScope != memory.ScopePersonal {
				t.Errorf("memory = %+v, want imported/personal", mem)
			}
		}
	})

	t.Run("chunks oversized entries into a group", func(t *testing.T) {
		long := strings.Repeat("lorem ipsum dolor sit amet ", 200)
		archive := []byte(`{"memories":[{"content":"` + long + `"}]}`)
		w, tracker, store := newImportFixture(archive)

		if err := w.Process(ctx, importEnvelope("https://cdn.example/archive.json")); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if tracker.imported != 1 {
			t.Errorf("imported = %d, want 1 archive entry", tracker.imported)
		}
		if store.Len() < 2 {
			t.Fatalf("stored %d rows, want multiple chunks", store.Len())
		}
		var group string
		for _, mem := range store.Memories {
			if mem.ChunkGroupID == "" || mem.ChunkIndex == nil || mem.TotalChunks == nil {
				t.Fatalf("chunk fields missing on %+v", mem)
			}
			if group == "" {
				group = mem.ChunkGroupID
			} else if mem.ChunkGroupID != group {
				t.Error("chunks split across groups")
			}
			if *mem.TotalChunks != store.Len() {
				t.Errorf("TotalChunks = %d, want %d", *mem.TotalChunks, store.Len())
			}
		}
	})

	t.Run("unreadable archive fails the job", func(t *testing.T) {
		w, tracker, _ := newImportFixture([]byte("not json"))
		if err := w.Process(ctx, importEnvelope("https://cdn.example/archive.json")); err == nil {
			t.Fatal("expected error for bad archive")
		}
		if tracker.failedMsg == "" {
			t.Error("tracker not marked failed")
		}
	})
}

func TestChunkContent(t *testing.T) {
	t.Run("short content is one chunk", func(t *testing.T) {
		chunks := chunkContent("hello world", 100)
		if len(chunks) != 1 || chunks[0] != "hello world" {
			t.Errorf("chunks = %v", chunks)
		}
	})

	t.Run("splits on word boundaries", func(t *testing.T) {
		chunks := chunkContent("alpha beta gamma delta", 11)
		for _, c := range chunks {
			if len(c) > 11 {
				t.Errorf("chunk %q exceeds max", c)
			}
			if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
				t.Errorf("chunk %q has ragged whitespace", c)
			}
		}
		if got := strings.Join(chunks, " "); got != "alpha beta gamma delta" {
			t.Errorf("rejoined = %q, content lost", got)
		}
	})
}
