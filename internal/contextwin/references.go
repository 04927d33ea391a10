package contextwin

import (
	"context"
	"regexp"

	"github.com/animus-ai/animus/pkg/types"
)

// PersonaLookup resolves user references in message text to personas.
// Lookups return (nil, nil) when nothing matches; errors are reserved for
// infrastructure failures.
type PersonaLookup interface {
	// ByUUID resolves a legacy markdown reference id.
	ByUUID(ctx context.Context, id string) (*types.Persona, error)

	// BySnowflake resolves a platform mention id (17 to 20 digits).
	BySnowflake(ctx context.Context, id string) (*types.Persona, error)

	// ByUsername resolves a case-insensitive username mention.
	ByUsername(ctx context.Context, username string) (*types.Persona, error)
}

// The three reference syntaxes, scanned in order. Later patterns never match
// inside the spans already consumed by earlier ones because resolution
// replaces the markup with plain text.
var (
	// @[Name](user:uuid) legacy markdown references.
	legacyRefPattern = regexp.MustCompile(`@\[([^\]]+)\]\(user:([0-9a-fA-F-]{36})\)`)

	// <@123456789012345678> platform mentions.
	mentionRefPattern = regexp.MustCompile(`<@!?(\d{17,20})>`)

	// @word simple mentions.
	simpleRefPattern = regexp.MustCompile(`@(\w+)`)
)

// ResolveReferences rewrites user references in text to display names and
// collects the referenced personas as conversation participants.
//
// A reference that resolves to the currently active persona substitutes the
// name but is not added to the participants list. A reference that resolves
// to nothing falls back to its visible name text so raw markup never reaches
// the prompt.
func ResolveReferences(ctx context.Context, lookup PersonaLookup, text, activePersonaID string) (string, []types.Persona) {
	var participants []types.Persona
	seen := map[string]bool{}

	add := func(p *types.Persona) {
		if p == nil || p.ID == activePersonaID || seen[p.ID] {
			return
		}
		seen[p.ID] = true
		participants = append(participants, *p)
	}

	text = legacyRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := legacyRefPattern.FindStringSubmatch(match)
		name, id := groups[1], groups[2]
		p, err := lookup.ByUUID(ctx, id)
		if err != nil || p == nil {
			return name
		}
		add(p)
		return p.Name
	})

	text = mentionRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := mentionRefPattern.FindStringSubmatch(match)
		p, err := lookup.BySnowflake(ctx, groups[1])
		if err != nil || p == nil {
			return "@" + groups[1]
		}
		add(p)
		return p.Name
	})

	text = simpleRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := simpleRefPattern.FindStringSubmatch(match)
		p, err := lookup.ByUsername(ctx, groups[1])
		if err != nil || p == nil {
			return match
		}
		add(p)
		return p.Name
	})

	return text, participants
}
