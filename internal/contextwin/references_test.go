package contextwin

import (
	"context"
	"testing"

	"github.com/animus-ai/animus/pkg/types"
)

// lookupStub backs reference resolution tests with fixed mappings.
type lookupStub struct {
	byUUID      map[string]*types.Persona
	bySnowflake map[string]*types.Persona
	byUsername  map[string]*types.Persona
}

func (s *lookupStub) ByUUID(_ context.Context, id string) (*types.Persona, error) {
	return s.byUUID[id], nil
}

func (s *lookupStub) BySnowflake(_ context.Context, id string) (*types.Persona, error) {
	return s.bySnowflake[id], nil
}

func (s *lookupStub) ByUsername(_ context.Context, username string) (*types.Persona, error) {
	return s.byUsername[username], nil
}

func TestResolveReferences(t *testing.T) {
	ctx := context.Background()
	alice := &types.Persona{ID: "pa", Name: "Alice"}
	bob := &types.Persona{ID: "pb", Name: "Bob"}

	lookup := &lookupStub{
		byUUID:      map[string]*types.Persona{"123e4567-e89b-12d3-a456-426614174000": alice},
		bySnowflake: map[string]*types.Persona{"123456789012345678": bob},
		byUsername:  map[string]*types.Persona{"alice": alice},
	}

	t.Run("legacy markdown reference", func(t *testing.T) {
		text, parts := ResolveReferences(ctx, lookup,
			"hey @[Ali](user:123e4567-e89b-12d3-a456-426614174000), welcome", "active")
		if text != "hey Alice, welcome" {
			t.Errorf("text = %q", text)
		}
		if len(parts) != 1 || parts[0].ID != "pa" {
			t.Errorf("participants = %+v", parts)
		}
	})

	t.Run("platform mention", func(t *testing.T) {
		text, parts := ResolveReferences(ctx, lookup, "ping <@123456789012345678>", "active")
		if text != "ping Bob" {
			t.Errorf("text = %q", text)
		}
		if len(parts) != 1 || parts[0].ID != "pb" {
			t.Errorf("participants = %+v", parts)
		}
	})

	t.Run("simple mention", func(t *testing.T) {
		text, parts := ResolveReferences(ctx, lookup, "ask @alice about it", "active")
		if text != "ask Alice about it" {
			t.Errorf("text = %q", text)
		}
		if len(parts) != 1 {
			t.Errorf("participants = %+v", parts)
		}
	})

	t.Run("unresolved legacy reference falls back to name text", func(t *testing.T) {
		text, parts := ResolveReferences(ctx, lookup,
			"hi @[Ghost](user:00000000-0000-0000-0000-000000000000)", "active")
		if text != "hi Ghost" {
			t.Errorf("text = %q", text)
		}
		if len(parts) != 0 {
			t.Errorf("participants = %+v", parts)
		}
	})

	t.Run("unresolved simple mention keeps original", func(t *testing.T) {
		text, _ := ResolveReferences(ctx, lookup, "cc @nobody", "active")
		if text != "cc @nobody" {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("self reference substitutes without joining participants", func(t *testing.T) {
		text, parts := ResolveReferences(ctx, lookup, "thanks @alice", "pa")
		if text != "thanks Alice" {
			t.Errorf("text = %q", text)
		}
		if len(parts) != 0 {
			t.Errorf("participants = %+v, want none for self reference", parts)
		}
	})
}
