// Package contextwin assembles the bounded prompt submitted to the LLM.
//
// Given a resolved personality, the user message, conversation history,
// retrieved memories and optional cross-channel or referenced context, the
// assembler packs everything into the personality's contextWindowTokens
// budget using a U-shaped attention layout: identity first, behaviour rules
// last, supporting material in between and history trimmed recency-first to
// whatever budget remains.
//
// Token arithmetic uses the shared 4-characters-per-token heuristic from
// [llm.EstimateTextTokens]; exact tokenizer counts are not required because
// the budget carries a safety margin.
package contextwin

import (
	"fmt"
	"strings"

	"github.com/animus-ai/animus/pkg/memory"
	"github.com/animus-ai/animus/pkg/provider/llm"
	"github.com/animus-ai/animus/pkg/types"
)

// Budget allocation constants, as fractions of the context window.
const (
	// memoryShare caps how much of the window retrieved memories may take.
	memoryShare = 0.25

	// crossChannelShare caps the prior-conversations block.
	crossChannelShare = 0.15

	// safetyShare is withheld to absorb heuristic undercounting.
	safetyShare = 0.05

	// minSafetyTokens is the floor of the safety margin.
	minSafetyTokens = 100
)

// Input carries everything the assembler needs for one prompt.
type Input struct {
	Personality types.Personality

	// PersonaID and display identity of the requesting user.
	PersonaID        string
	DisplayName      string
	PlatformUsername string

	// UserMessage is the reference-resolved message text.
	UserMessage string

	// AttachmentDescriptions is the merged preprocessing output (transcripts
	// and image descriptions), already formatted. Empty when no attachments.
	AttachmentDescriptions string

	// History is the current channel's conversation, oldest first.
	History []types.HistoryMessage

	// Memories is the ranked retrieval output, best match first.
	Memories []memory.ScoredMemory

	// CrossChannel carries prior conversations from other channels,
	// most-recent-channel first.
	CrossChannel []types.CrossChannelGroup

	// Referenced holds messages the user replied to or linked.
	Referenced []types.ReferencedMessage

	// ReferencedDescriptions holds image descriptions for attachments on
	// referenced messages, aligned by formatting into the block.
	ReferencedDescriptions string
}

// Output is the assembled prompt plus packing statistics.
type Output struct {
	// Messages is the ordered conversation ready for the provider.
	Messages []types.Message

	// MessagesIncluded and MessagesDropped account for history selection.
	MessagesIncluded int
	MessagesDropped  int

	// MemoriesIncluded counts the memories that made the prompt.
	MemoriesIncluded int
}

// Assemble builds the prompt. Returns an error only for an unusable budget;
// thin inputs degrade to smaller prompts instead of failing.
func Assemble(in Input) (*Output, error) {
	window := in.Personality.ContextWindowTokens
	if window <= 0 {
		return nil, fmt.Errorf("contextwin: context window must be positive, got %d", window)
	}

	persona := RenderPersona(in.Personality)
	protocol := RenderProtocol(in.Personality.Protocol)

	body := FormatMessageBody(in.UserMessage, in.AttachmentDescriptions)
	current := WrapSpeaker(in.PersonaID, in.DisplayName, in.PlatformUsername, in.Personality.Name, body)

	safety := int(float64(window) * safetyShare)
	if safety < minSafetyTokens {
		safety = minSafetyTokens
	}

	remaining := window - safety
	remaining -= llm.EstimateTextTokens(persona)
	remaining -= llm.EstimateTextTokens(protocol)
	remaining -= llm.EstimateTextTokens(current)

	// Memories, capped at their share of the window and at whatever the
	// fixed blocks left over, so a near-window persona cannot be pushed
	// past the budget.
	memBudget := int(float64(window) * memoryShare)
	if memBudget > remaining {
		memBudget = remaining
	}
	memBlock, memCount := packMemories(in.Memories, memBudget)
	remaining -= llm.EstimateTextTokens(memBlock)

	// Cross-channel prior conversations, capped at their share.
	crossBudget := int(float64(window) * crossChannelShare)
	if crossBudget > remaining {
		crossBudget = remaining
	}
	crossBlock := PackCrossChannel(in.CrossChannel, crossBudget)
	remaining -= llm.EstimateTextTokens(crossBlock)

	refBlock := renderReferenced(in.Referenced, in.ReferencedDescriptions)
	remaining -= llm.EstimateTextTokens(refBlock)

	if remaining < 0 {
		remaining = 0
	}

	// Recency-first history selection: walk newest to oldest, stop at the
	// first message that would overflow, keep chronological order in the
	// output.
	included, dropped := selectHistory(in.History, remaining)

	out := &Output{
		MessagesIncluded: len(included),
		MessagesDropped:  dropped,
		MemoriesIncluded: memCount,
	}

	out.Messages = append(out.Messages, types.Message{Role: "system", Content: persona})
	if memBlock != "" {
		out.Messages = append(out.Messages, types.Message{Role: "system", Content: memBlock})
	}
	if crossBlock != "" {
		out.Messages = append(out.Messages, types.Message{Role: "system", Content: crossBlock})
	}
	for _, msg := range included {
		out.Messages = append(out.Messages, historyToMessage(msg))
	}
	if refBlock != "" {
		out.Messages = append(out.Messages, types.Message{Role: "system", Content: refBlock})
	}
	out.Messages = append(out.Messages, types.Message{Role: "user", Content: current})
	if protocol != "" {
		out.Messages = append(out.Messages, types.Message{Role: "system", Content: protocol})
	}
	return out, nil
}

// packMemories renders as many ranked memories as fit the cap, preserving
// rank order.
func packMemories(memories []memory.ScoredMemory, capTokens int) (string, int) {
	if len(memories) == 0 || capTokens <= 0 {
		return "", 0
	}
	kept := memories
	for len(kept) > 0 {
		block := FormatMemories(kept)
		if llm.EstimateTextTokens(block) <= capTokens {
			return block, len(kept)
		}
		kept = kept[:len(kept)-1]
	}
	return "", 0
}

// selectHistory returns the most recent messages that fit budgetTokens, in
// chronological order, plus the count of dropped older messages.
func selectHistory(history []types.HistoryMessage, budgetTokens int) ([]types.HistoryMessage, int) {
	if len(history) == 0 || budgetTokens <= 0 {
		return nil, len(history)
	}

	used := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := llm.EstimateTextTokens(formatHistoryLine(history[i])) + 4
		if used+cost > budgetTokens {
			break
		}
		used += cost
		cut = i
	}
	return history[cut:], cut
}

// historyToMessage converts one stored history entry to a chat message.
// Assistant turns keep their raw content; user turns carry the speaker name
// inline so multi-user channels stay legible.
func historyToMessage(msg types.HistoryMessage) types.Message {
	if msg.FromAssistant {
		return types.Message{Role: "assistant", Content: msg.Content}
	}
	return types.Message{Role: "user", Content: formatHistoryLine(msg)}
}

// renderReferenced formats replied-to messages as a quoted block.
func renderReferenced(refs []types.ReferencedMessage, descriptions string) string {
	if len(refs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Referenced Messages\n")
	for _, ref := range refs {
		fmt.Fprintf(&b, "> %s: %s\n", ref.AuthorName, ref.Content)
	}
	if descriptions != "" {
		b.WriteString("\n")
		b.WriteString(descriptions)
	}
	return strings.TrimRight(b.String(), "\n")
}
