package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/animus-ai/animus/internal/configcascade"
	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/pkg/memory"
	memmock "github.com/animus-ai/animus/pkg/memory/mock"
	"github.com/animus-ai/animus/pkg/provider/embeddings"
	embmock "github.com/animus-ai/animus/pkg/provider/embeddings/mock"
	"github.com/animus-ai/animus/pkg/provider/llm"
	llmmock "github.com/animus-ai/animus/pkg/provider/llm/mock"
	"github.com/animus-ai/animus/pkg/types"
)

type directoryStub struct {
	persona types.Persona
}

func (d *directoryStub) ByUserID(ctx context.Context, userID string) (*types.Persona, error) {
	p := d.persona
	return &p, nil
}

func (d *directoryStub) ByUUID(ctx context.Context, id string) (*types.Persona, error) {
	return nil, nil
}

func (d *directoryStub) BySnowflake(ctx context.Context, id string) (*types.Persona, error) {
	return nil, nil
}

func (d *directoryStub) ByUsername(ctx context.Context, name string) (*types.Persona, error) {
	return nil, nil
}

type overridesStub struct{}

func (overridesStub) GetAdmin(ctx context.Context) (*types.ConfigOverrides, error) {
	return nil, nil
}

func (overridesStub) GetUser(ctx context.Context, userID string) (*types.ConfigOverrides, error) {
	return nil, nil
}

func (overridesStub) GetChannel(ctx context.Context, channelID string) (*types.ConfigOverrides, error) {
	return nil, nil
}

func (overridesStub) GetPersonality(ctx context.Context, personalityID string) (*types.ConfigOverrides, error) {
	return nil, nil
}

type busStub struct {
	results map[string]types.PreprocessingResult
}

func (b *busStub) WaitForResult(ctx context.Context, dep types.JobDependency, timeout time.Duration) (types.PreprocessingResult, error) {
	res, ok := b.results[dep.ResultKey]
	if !ok {
		return types.PreprocessingResult{}, errors.New("no result for " + dep.ResultKey)
	}
	return res, nil
}

type genFixture struct {
	worker   *GenerationWorker
	provider *llmmock.Provider
	store    *memmock.Store
	dup      *DupWindow
}

func newGenFixture(provider *llmmock.Provider) *genFixture {
	store := memmock.NewStore()
	memSvc := memory.NewService(
		&embmock.Provider{EmbedResult: []float32{3, 4}},
		store,
		memmock.NewOutbox(),
		nil,
	)
	dup := NewDupWindow(0)
	w := NewGenerationWorker(
		nil,
		configcascade.NewResolver(overridesStub{}, 0, nil),
		&directoryStub{persona: types.Persona{
			ID: "persona-1", UserID: "user-1", Name: "Alice", DiscordUsername: "alice42",
		}},
		memSvc,
		provider,
		nil,
		dup,
		nil,
	)
	return &genFixture{worker: w, provider: provider, store: store, dup: dup}
}

func generationEnvelope(model string) jobs.Envelope {
	return jobs.Envelope{
		Job: types.Job{
			ID:        "llm-req-1",
			Type:      types.JobLLMGeneration,
			RequestID: "req-1",
		},
		Request: types.Request{
			RequestID: "req-1",
			Message:   "how are you today?",
			Personality: types.Personality{
				ID:                  "pers-1",
				Name:                "Zephyrine",
				Slug:                "zephyrine",
				Character:           "A wandering storm spirit.",
				ContextWindowTokens: 2000,
				Params:              types.LLMParams{Model: model},
			},
			Context: types.RequestContext{UserID: "user-1", ChannelID: "chan-1"},
		},
	}
}

func TestGenerationWorkerProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("produces a reply and persists the turn", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{{Content: "Doing great, Alice!"}},
		})

		res := fx.worker.Process(ctx, generationEnvelope("openai/gpt-4o"))
		if !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}
		if res.Content != "Doing great, Alice!" {
			t.Errorf("Content = %q", res.Content)
		}
		if res.RequestID != "req-1" || res.JobID != "llm-req-1" {
			t.Errorf("result ids = %s/%s", res.RequestID, res.JobID)
		}

		if fx.store.Len() != 1 {
			t.Fatalf("stored %d memories, want 1", fx.store.Len())
		}
		for _, mem := range fx.store.Memories {
			if mem.CanonScope != memory.ScopePersonal {
				t.Errorf("CanonScope = %s, want personal outside sessions", mem.CanonScope)
			}
			if !strings.Contains(mem.Content, "Alice: how are you today?") ||
				!strings.Contains(mem.Content, "Zephyrine: Doing great, Alice!") {
				t.Errorf("turn content = %q", mem.Content)
			}
		}
	})

	t.Run("session requests store session-scoped memory", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{{Content: "Hi!"}},
		})
		env := generationEnvelope("openai/gpt-4o")
		env.Request.Context.SessionID = "sess-9"

		if res := fx.worker.Process(ctx, env); !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}
		for _, mem := range fx.store.Memories {
			if mem.CanonScope != memory.ScopeSession || mem.SessionID != "sess-9" {
				t.Errorf("memory scope = %s session = %s", mem.CanonScope, mem.SessionID)
			}
		}
	})

	t.Run("o-series requests carry no system messages", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{{Content: "Understood."}},
		})

		if res := fx.worker.Process(ctx, generationEnvelope("openai/o1")); !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}

		req := fx.provider.CompleteCalls[0].Req
		for i, msg := range req.Messages {
			if msg.Role == "system" {
				t.Errorf("Messages[%d] is a system message", i)
			}
		}
		if !strings.Contains(req.Messages[0].Content, "[System Instructions]") {
			t.Error("folded instructions block missing from first message")
		}
		if req.Params.Temperature != nil {
			t.Errorf("Temperature = %v, want stripped", *req.Params.Temperature)
		}
	})

	t.Run("strips think tags before delivery", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{
				{Content: "<think>\nThe user greeted me.\n</think>\n\nFinal answer"},
			},
		})

		res := fx.worker.Process(ctx, generationEnvelope("deepseek/deepseek-r1"))
		if !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}
		if res.Content != "Final answer" {
			t.Errorf("Content = %q, want think block removed", res.Content)
		}
	})

	t.Run("strips think tags from unclassified models too", func(t *testing.T) {
		// The classification table is name-based; a model it has never heard
		// of can still emit reasoning blocks.
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{
				{Content: "<thinking>draft</thinking>\nFinal answer"},
			},
		})

		res := fx.worker.Process(ctx, generationEnvelope("acme/brand-new-model"))
		if !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}
		if res.Content != "Final answer" {
			t.Errorf("Content = %q, want thinking block removed", res.Content)
		}
	})

	t.Run("tag-only output retries as empty", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{
				{Content: "<think>all reasoning, no answer</think>"},
				{Content: "an actual answer"},
			},
		})

		res := fx.worker.Process(ctx, generationEnvelope("openai/gpt-4o"))
		if !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}
		if res.Content != "an actual answer" {
			t.Errorf("Content = %q", res.Content)
		}
		if fx.provider.CallCount() != 2 {
			t.Errorf("CallCount = %d, want 2", fx.provider.CallCount())
		}
	})

	t.Run("retries empty outputs", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{
				{Content: "   "},
				{Content: "second try"},
			},
		})

		res := fx.worker.Process(ctx, generationEnvelope("openai/gpt-4o"))
		if !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}
		if res.Content != "second try" {
			t.Errorf("Content = %q", res.Content)
		}
		if fx.provider.CallCount() != 2 {
			t.Errorf("CallCount = %d, want 2", fx.provider.CallCount())
		}
	})

	t.Run("rejects repeated outputs after exhausting retries", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{{Content: "same old line"}},
		})
		// Every embedding from the fixture provider normalizes to the same
		// vector, so a prerecorded entry makes all outputs duplicates.
		fx.dup.Record("user-1", embeddings.Normalize([]float32{3, 4}))

		res := fx.worker.Process(ctx, generationEnvelope("openai/gpt-4o"))
		if res.Success {
			t.Fatal("expected failure for persistent duplicates")
		}
		if !strings.Contains(res.Error, "3 attempts") {
			t.Errorf("Error = %q", res.Error)
		}
		if fx.provider.CallCount() != maxGenerationAttempts {
			t.Errorf("CallCount = %d, want %d", fx.provider.CallCount(), maxGenerationAttempts)
		}
	})

	t.Run("reports provider failure", func(t *testing.T) {
		boom := errors.New("upstream 500")
		fx := newGenFixture(&llmmock.Provider{
			CompleteErrs: []error{boom, boom, boom},
		})

		res := fx.worker.Process(ctx, generationEnvelope("openai/gpt-4o"))
		if res.Success {
			t.Fatal("expected failure when provider keeps failing")
		}
		if !strings.Contains(res.Error, "upstream 500") {
			t.Errorf("Error = %q", res.Error)
		}
	})

	t.Run("fails without a model", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{})
		res := fx.worker.Process(ctx, generationEnvelope(""))
		if res.Success {
			t.Fatal("expected failure without a model")
		}
		if !strings.Contains(res.Error, "no model") {
			t.Errorf("Error = %q", res.Error)
		}
	})

	t.Run("threads cross-channel history into the prompt", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{{Content: "I remember."}},
		})
		env := generationEnvelope("openai/gpt-4o")
		env.Request.Context.CrossChannelHistory = []types.CrossChannelGroup{
			{
				ChannelEnvironment: "server: Observatory, channel: #stargazing",
				Messages: []types.HistoryMessage{
					{AuthorName: "Alice", Content: "the comet was incredible last night"},
				},
			},
		}

		if res := fx.worker.Process(ctx, env); !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}

		var block string
		for _, msg := range fx.provider.CompleteCalls[0].Req.Messages {
			if strings.Contains(msg.Content, "<prior_conversations>") {
				block = msg.Content
			}
		}
		if block == "" {
			t.Fatal("no prior_conversations block in submitted messages")
		}
		if !strings.Contains(block, "#stargazing") || !strings.Contains(block, "the comet was incredible") {
			t.Errorf("prior conversations block = %q", block)
		}
	})

	t.Run("separates attachment and referenced image descriptions", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{{Content: "What a pair of photos."}},
		})
		fx.worker.bus = &busStub{results: map[string]types.PreprocessingResult{
			"req-1:image-description": {
				Success: true,
				Descriptions: []types.ImageDescription{
					{Description: "a harbor at dawn"},
				},
			},
			"req-1:image-description:ref": {
				Success: true,
				Descriptions: []types.ImageDescription{
					{Description: "a lighthouse in fog"},
				},
			},
		}}

		env := generationEnvelope("openai/gpt-4o")
		env.Job.Dependencies = []types.JobDependency{
			{JobID: "image-description-req-1", ResultKey: "req-1:image-description", Type: types.JobImageDescription},
			{JobID: "image-description-req-1-ref", ResultKey: "req-1:image-description:ref", Type: types.JobImageDescription},
		}
		env.Request.Context.ReferencedMessages = []types.ReferencedMessage{
			{AuthorName: "Robin", Content: "check this out"},
		}

		res := fx.worker.Process(ctx, env)
		if !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}
		if res.AttachmentDescriptions != "[Image] a harbor at dawn" {
			t.Errorf("AttachmentDescriptions = %q", res.AttachmentDescriptions)
		}
		if res.ReferencedMessagesDescriptions != "[Image] a lighthouse in fog" {
			t.Errorf("ReferencedMessagesDescriptions = %q", res.ReferencedMessagesDescriptions)
		}

		// The referenced description lands inside the referenced-messages
		// block, not the current user message.
		var refBlock, current string
		msgs := fx.provider.CompleteCalls[0].Req.Messages
		for _, msg := range msgs {
			if strings.Contains(msg.Content, "## Referenced Messages") {
				refBlock = msg.Content
			}
			if strings.Contains(msg.Content, "<from ") {
				current = msg.Content
			}
		}
		if !strings.Contains(refBlock, "a lighthouse in fog") {
			t.Errorf("referenced block = %q", refBlock)
		}
		if !strings.Contains(current, "a harbor at dawn") {
			t.Errorf("current message = %q", current)
		}
		if strings.Contains(current, "lighthouse") {
			t.Errorf("referenced description leaked into current message: %q", current)
		}
	})

	t.Run("threads the user API key", func(t *testing.T) {
		fx := newGenFixture(&llmmock.Provider{
			CompleteResults: []*llm.CompletionResponse{{Content: "ok"}},
		})
		env := generationEnvelope("openai/gpt-4o")
		env.Request.UserAPIKey = "sk-user-123"

		if res := fx.worker.Process(ctx, env); !res.Success {
			t.Fatalf("Process failed: %s", res.Error)
		}
		if got := fx.provider.CompleteCalls[0].Req.APIKey; got != "sk-user-123" {
			t.Errorf("APIKey = %q", got)
		}
	})
}
