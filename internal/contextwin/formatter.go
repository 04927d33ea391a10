package contextwin

import (
	"fmt"
	"strings"
	"time"

	"github.com/animus-ai/animus/pkg/memory"
)

// voiceOnlyPlaceholder is the literal the platform substitutes for a voice
// message with no typed text. When it appears together with attachment
// descriptions, the descriptions stand alone.
const voiceOnlyPlaceholder = "Hello"

// FormatMessageBody merges the user's typed text with the preprocessing
// descriptions of their attachments.
func FormatMessageBody(text, attachmentDescriptions string) string {
	switch {
	case text == voiceOnlyPlaceholder && attachmentDescriptions != "":
		return attachmentDescriptions
	case text != "" && attachmentDescriptions != "":
		return text + "\n\n" + attachmentDescriptions
	case attachmentDescriptions != "":
		return attachmentDescriptions
	default:
		return text
	}
}

// WrapSpeaker tags the current user message with its author so the model can
// track who is talking. When the persona's display name collides with the
// personality's own name (case-insensitive), the platform username is
// appended to disambiguate.
func WrapSpeaker(personaID, displayName, platformUsername, personalityName, content string) string {
	name := displayName
	if platformUsername != "" && strings.EqualFold(displayName, personalityName) {
		name = fmt.Sprintf("%s (@%s)", displayName, platformUsername)
	}
	return fmt.Sprintf("<from id=%q>%s</from>\n\n%s", personaID, name, content)
}

// FormatMemories renders retrieved memories as a bulleted block under a
// "## Relevant Memories" header. Returns "" when no memories were retrieved
// so the caller can skip the block entirely.
func FormatMemories(memories []memory.ScoredMemory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant Memories\n")
	for _, sm := range memories {
		if sm.Memory.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "- %s\n", sm.Memory.Content)
			continue
		}
		fmt.Fprintf(&b, "- [%s] %s\n",
			sm.Memory.CreatedAt.UTC().Format(memoryTimestampLayout), sm.Memory.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// memoryTimestampLayout renders memory timestamps human-readably without
// sub-minute noise.
const memoryTimestampLayout = "Jan 2, 2006 15:04"

// formatTimestamp is a helper for other blocks that show message times.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(memoryTimestampLayout)
}
