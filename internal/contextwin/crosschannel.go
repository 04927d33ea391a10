package contextwin

import (
	"fmt"
	"strings"

	"github.com/animus-ai/animus/pkg/provider/llm"
	"github.com/animus-ai/animus/pkg/types"
)

// PackCrossChannel greedily fills budgetTokens with prior conversations from
// other channels, wrapped in <prior_conversations> markup. Per-group
// overhead (the location block and channel_history tags) is charged against
// the budget before any message from that group. The first message that
// would overflow the budget ends its group; a group whose overhead alone
// overflows ends the whole pack.
//
// Returns "" when the budget admits nothing.
func PackCrossChannel(groups []types.CrossChannelGroup, budgetTokens int) string {
	if len(groups) == 0 || budgetTokens <= 0 {
		return ""
	}

	const (
		openTag  = "<prior_conversations>\n"
		closeTag = "</prior_conversations>"
	)
	remaining := budgetTokens - llm.EstimateTextTokens(openTag+closeTag)

	var b strings.Builder
	wroteAny := false
	exhausted := false

	for _, group := range groups {
		if exhausted {
			break
		}
		location := fmt.Sprintf("<location>%s</location>\n", group.ChannelEnvironment)
		overhead := llm.EstimateTextTokens(location + "<channel_history>\n</channel_history>\n")
		if overhead > remaining {
			break
		}

		var lines []string
		groupCost := overhead
		for _, msg := range group.Messages {
			line := formatHistoryLine(msg) + "\n"
			cost := llm.EstimateTextTokens(line)
			if groupCost+cost > remaining {
				exhausted = true
				break
			}
			groupCost += cost
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}

		remaining -= groupCost
		b.WriteString(location)
		b.WriteString("<channel_history>\n")
		for _, line := range lines {
			b.WriteString(line)
		}
		b.WriteString("</channel_history>\n")
		wroteAny = true
	}

	if !wroteAny {
		return ""
	}
	return openTag + b.String() + closeTag
}

// formatHistoryLine renders one history message as "Name: content".
func formatHistoryLine(msg types.HistoryMessage) string {
	name := msg.AuthorName
	if name == "" {
		name = msg.AuthorID
	}
	return fmt.Sprintf("%s: %s", name, msg.Content)
}
