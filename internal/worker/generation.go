package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-ai/animus/internal/configcascade"
	"github.com/animus-ai/animus/internal/contextwin"
	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/internal/reasoning"
	"github.com/animus-ai/animus/pkg/memory"
	"github.com/animus-ai/animus/pkg/provider/llm"
	"github.com/animus-ai/animus/pkg/types"
)

const (
	// dependencyTimeout caps the total wait for preprocessing results.
	dependencyTimeout = 5 * time.Minute

	// maxGenerationAttempts bounds the empty/duplicate retry loop.
	maxGenerationAttempts = 3
)

// ResultWaiter blocks on preprocessing results. *jobs.ResultBus is the
// production implementation.
type ResultWaiter interface {
	WaitForResult(ctx context.Context, dep types.JobDependency, timeout time.Duration) (types.PreprocessingResult, error)
}

// PersonaDirectory resolves user identities to personas. It extends the
// lookup interface the reference resolver needs with a by-user-id lookup for
// the requesting user.
type PersonaDirectory interface {
	contextwin.PersonaLookup

	// ByUserID returns the default persona of a platform user, creating it
	// on first contact. Never returns (nil, nil).
	ByUserID(ctx context.Context, userID string) (*types.Persona, error)
}

// GenerationWorker executes llm-generation jobs end to end: collect
// dependency results, resolve config, retrieve memories, assemble the
// prompt, call the model, validate the output, persist the turn and publish
// the result.
type GenerationWorker struct {
	bus        ResultWaiter
	resolver   *configcascade.Resolver
	directory  PersonaDirectory
	memories   *memory.Service
	provider   llm.Provider
	classifier *reasoning.Classifier
	dup        *DupWindow
	log        *slog.Logger
}

// NewGenerationWorker wires a GenerationWorker. logger may be nil.
func NewGenerationWorker(
	bus ResultWaiter,
	resolver *configcascade.Resolver,
	directory PersonaDirectory,
	memories *memory.Service,
	provider llm.Provider,
	classifier *reasoning.Classifier,
	dup *DupWindow,
	logger *slog.Logger,
) *GenerationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = reasoning.NewClassifier(nil)
	}
	if dup == nil {
		dup = NewDupWindow(0)
	}
	return &GenerationWorker{
		bus:        bus,
		resolver:   resolver,
		directory:  directory,
		memories:   memories,
		provider:   provider,
		classifier: classifier,
		dup:        dup,
		log:        logger.With("component", "generation-worker"),
	}
}

// Process runs one generation job and returns its result. Failures are
// reported in the result, never swallowed.
func (w *GenerationWorker) Process(ctx context.Context, env jobs.Envelope) types.GenerationResult {
	req := env.Request
	result := types.GenerationResult{
		RequestID: req.RequestID,
		JobID:     env.Job.ID,
	}

	// Preprocessing outputs. A missing or failed dependency degrades to an
	// absent description instead of failing the whole job.
	attachmentDescriptions, referencedDescriptions := w.collectDependencies(ctx, env)
	result.AttachmentDescriptions = attachmentDescriptions
	result.ReferencedMessagesDescriptions = referencedDescriptions

	persona, err := w.directory.ByUserID(ctx, req.Context.UserID)
	if err != nil {
		result.Error = fmt.Sprintf("resolve persona: %v", err)
		return result
	}

	resolved, err := w.resolver.Resolve(ctx, req.Context.UserID, req.Personality.ID, req.Context.ChannelID)
	if err != nil {
		result.Error = fmt.Sprintf("resolve config: %v", err)
		return result
	}
	params := mergePersonalityParams(req.Personality, resolved.Params)
	model := params.Model
	if model == "" {
		result.Error = "no model configured for personality"
		return result
	}

	family := w.classifier.Classify(model)

	// Resolve user references before retrieval so memory queries see plain
	// names instead of mention markup.
	messageText, _ := contextwin.ResolveReferences(ctx, w.directory, req.Message, persona.ID)

	retrieved := w.retrieveMemories(ctx, persona.ID, req, messageText)

	assembled, err := contextwin.Assemble(contextwin.Input{
		Personality:            req.Personality,
		PersonaID:              persona.ID,
		DisplayName:            persona.Name,
		PlatformUsername:       persona.DiscordUsername,
		UserMessage:            messageText,
		AttachmentDescriptions: attachmentDescriptions,
		History:                req.Context.ConversationHistory,
		Memories:               retrieved,
		CrossChannel:           req.Context.CrossChannelHistory,
		Referenced:             req.Context.ReferencedMessages,
		ReferencedDescriptions: referencedDescriptions,
	})
	if err != nil {
		result.Error = fmt.Sprintf("assemble context: %v", err)
		return result
	}

	messages, params := reasoning.Adapt(family, assembled.Messages, params)

	content, genErr := w.generateWithValidation(ctx, llm.CompletionRequest{
		Model:    model,
		Messages: messages,
		Params:   params,
		APIKey:   req.UserAPIKey,
	}, req.Context.UserID)
	if genErr != nil {
		result.Error = genErr.Error()
		return result
	}

	w.persistTurn(ctx, req, persona, messageText, content)

	result.Success = true
	result.Content = content
	result.Metadata = map[string]any{
		"model":            model,
		"configSource":     string(resolved.Source),
		"messagesIncluded": assembled.MessagesIncluded,
		"messagesDropped":  assembled.MessagesDropped,
		"memoriesIncluded": assembled.MemoriesIncluded,
	}
	return result
}

// collectDependencies waits for every preprocessing result and folds the
// successful ones into two description strings: one for the current
// message's attachments, one for images carried by referenced messages.
func (w *GenerationWorker) collectDependencies(ctx context.Context, env jobs.Envelope) (attachments, referenced string) {
	if len(env.Job.Dependencies) == 0 {
		return "", ""
	}

	refKey := jobs.ReferencedImageResultKey(env.Request.RequestID)
	deadline := time.Now().Add(dependencyTimeout)
	var parts, refParts []string
	for _, dep := range env.Job.Dependencies {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			w.log.Warn("dependency wait budget exhausted",
				"jobId", env.Job.ID, "dependency", dep.ResultKey)
			break
		}
		res, err := w.bus.WaitForResult(ctx, dep, remaining)
		if err != nil {
			w.log.Warn("dependency result unavailable",
				"jobId", env.Job.ID, "dependency", dep.ResultKey, "error", err)
			continue
		}
		if !res.Success {
			w.log.Warn("dependency failed, omitting its content",
				"jobId", env.Job.ID, "dependency", dep.ResultKey, "error", res.Error)
			continue
		}
		switch dep.Type {
		case types.JobAudioTranscription:
			if res.Content != "" {
				parts = append(parts, res.Content)
			}
		case types.JobImageDescription:
			target := &parts
			if dep.ResultKey == refKey {
				target = &refParts
			}
			for _, desc := range res.Descriptions {
				*target = append(*target, fmt.Sprintf("[Image] %s", desc.Description))
			}
		}
	}
	return strings.Join(parts, "\n\n"), strings.Join(refParts, "\n\n")
}

// retrieveMemories runs the waterfall retrieval: a channel-scoped pass
// first, then a cross-channel pass excluding what the first already found.
// Retrieval failure degrades to an empty list; the reply is still generated.
func (w *GenerationWorker) retrieveMemories(ctx context.Context, personaID string, req types.Request, query string) []memory.ScoredMemory {
	embedding, err := w.memories.EmbedQuery(ctx, query)
	if err != nil {
		w.log.Warn("memory retrieval degraded, embedding unavailable",
			"requestId", req.RequestID, "error", err)
		return nil
	}

	opts := memory.QueryOptions{
		PersonaID:        personaID,
		PersonalityID:    req.Personality.ID,
		SessionID:        req.Context.SessionID,
		ExcludeNewerThan: historyHorizon(req.Context.ConversationHistory),
	}

	var results []memory.ScoredMemory
	if req.Context.ChannelID != "" {
		scoped := opts
		scoped.ChannelIDs = []string{req.Context.ChannelID}
		channelHits, err := w.memories.RecallByEmbedding(ctx, embedding, scoped)
		if err != nil {
			w.log.Warn("channel-scoped memory query failed",
				"requestId", req.RequestID, "error", err)
		} else {
			results = channelHits
		}
	}

	broad := opts
	for _, sm := range results {
		broad.ExcludeIDs = append(broad.ExcludeIDs, sm.Memory.ID)
	}
	broadHits, err := w.memories.RecallByEmbedding(ctx, embedding, broad)
	if err != nil {
		w.log.Warn("memory query failed", "requestId", req.RequestID, "error", err)
		return results
	}
	return append(results, broadHits...)
}

// historyHorizon returns the oldest timestamp covered by the conversation
// history, so retrieval skips memories the prompt already contains verbatim.
func historyHorizon(history []types.HistoryMessage) time.Time {
	for _, msg := range history {
		if !msg.Timestamp.IsZero() {
			return msg.Timestamp
		}
	}
	return time.Time{}
}

// generateWithValidation invokes the model, rejecting empty and duplicate
// outputs with up to maxGenerationAttempts tries.
func (w *GenerationWorker) generateWithValidation(ctx context.Context, req llm.CompletionRequest, userID string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxGenerationAttempts; attempt++ {
		resp, err := w.provider.Complete(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("completion: %w", err)
			w.log.Warn("completion failed", "attempt", attempt, "error", err)
			continue
		}

		// Tags are stripped regardless of model family: the classification
		// table is name-based and an unlisted thinking model must not leak
		// its reasoning to the user. Tag-only output counts as empty.
		content := reasoning.StripThinkTags(resp.Content)
		if content == "" {
			lastErr = fmt.Errorf("model returned empty content")
			w.log.Warn("empty completion, retrying", "attempt", attempt)
			continue
		}

		embedding, err := w.memories.EmbedQuery(ctx, content)
		if err != nil {
			// Without an embedding there is no duplicate check; accept the
			// output rather than fail a healthy generation.
			w.log.Warn("duplicate check skipped, embedding unavailable", "error", err)
			return content, nil
		}
		if w.dup.IsDuplicate(userID, embedding) {
			lastErr = fmt.Errorf("model repeated a recent response")
			w.log.Warn("duplicate completion, retrying", "attempt", attempt)
			continue
		}

		w.dup.Record(userID, embedding)
		return content, nil
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", maxGenerationAttempts, lastErr)
}

// persistTurn writes the exchange into long-term memory through the outbox.
// Memory failure is logged, not propagated: the user still gets the reply.
func (w *GenerationWorker) persistTurn(ctx context.Context, req types.Request, persona *types.Persona, userMessage, response string) {
	scope := memory.ScopePersonal
	if req.Context.SessionID != "" {
		scope = memory.ScopeSession
	}

	turn := fmt.Sprintf("%s: %s\n%s: %s", persona.Name, userMessage, req.Personality.Name, response)

	_, err := w.memories.Remember(ctx, memory.Memory{
		PersonaID:     persona.ID,
		PersonalityID: req.Personality.ID,
		Content:       turn,
		CanonScope:    scope,
		SummaryType:   "turn",
		ChannelID:     req.Context.ChannelID,
		GuildID:       req.Context.ServerID,
		SessionID:     req.Context.SessionID,
		Senders:       []string{persona.Name, req.Personality.Name},
	})
	if err != nil {
		w.log.Error("turn memory write failed",
			"requestId", req.RequestID, "error", err)
	}
}

// mergePersonalityParams folds the personality's own settings under the
// cascade output. The cascade wins where it set a field; the personality
// fills the rest.
func mergePersonalityParams(p types.Personality, cascade types.LLMParams) types.LLMParams {
	base := p.Params
	if base.Temperature == nil && p.Temperature > 0 {
		temp := p.Temperature
		base.Temperature = &temp
	}
	if base.MaxTokens == nil && p.MaxTokens > 0 {
		maxTokens := p.MaxTokens
		base.MaxTokens = &maxTokens
	}
	merged := cascade
	if merged.Model == "" {
		merged.Model = base.Model
	}
	return configcascade.OverlayParams(merged, base)
}
