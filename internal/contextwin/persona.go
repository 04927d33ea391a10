package contextwin

import (
	"fmt"
	"strings"

	"github.com/animus-ai/animus/pkg/types"
)

// RenderPersona produces the identity block placed at the very top of the
// prompt. Persona fields describe who the personality is; behaviour rules
// live in the protocol block at the opposite end and are never mixed in
// here.
func RenderPersona(p types.Personality) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# You are %s\n", p.Name)

	section := func(title, content string) {
		if content == "" {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", title, strings.TrimSpace(content))
	}

	section("Character", p.Character)
	section("Traits", p.Traits)
	section("Tone", p.Tone)
	section("Age", p.Age)
	section("Appearance", p.Appearance)
	section("Likes", p.Likes)
	section("Dislikes", p.Dislikes)
	section("Goals", p.Goals)
	section("Example Messages", p.Examples)

	return strings.TrimRight(b.String(), "\n")
}

// RenderProtocol produces the behaviour-rules block placed last in the
// prompt for attention. Legacy markup is emitted verbatim when present;
// otherwise the three rule arrays are rendered as titled lists. Returns ""
// for an empty protocol.
func RenderProtocol(p types.Protocol) string {
	if p.IsEmpty() {
		return ""
	}
	if p.Legacy != "" {
		return strings.TrimSpace(p.Legacy)
	}

	var b strings.Builder
	b.WriteString("# Protocol\n")

	rules := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n", title)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}

	rules("Permissions", p.Permissions)
	rules("Character Directives", p.CharacterDirectives)
	rules("Formatting Rules", p.FormattingRules)

	return strings.TrimRight(b.String(), "\n")
}
