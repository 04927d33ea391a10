package contextwin

import (
	"strings"
	"testing"
	"time"

	"github.com/animus-ai/animus/pkg/memory"
	"github.com/animus-ai/animus/pkg/provider/llm"
	"github.com/animus-ai/animus/pkg/types"
)

func testPersonality() types.Personality {
	return types.Personality{
		ID:                  "pers-1",
		Name:                "Luna",
		Character:           "A thoughtful astronomer.",
		Tone:                "Warm and curious.",
		ContextWindowTokens: 8000,
		Protocol: types.Protocol{
			FormattingRules: []string{"Reply in plain prose."},
		},
	}
}

func baseInput() Input {
	return Input{
		Personality: testPersonality(),
		PersonaID:   "persona-u1",
		DisplayName: "Sam",
		UserMessage: "What did we talk about yesterday?",
	}
}

func TestAssembleLayout(t *testing.T) {
	in := baseInput()
	in.Memories = []memory.ScoredMemory{
		{Memory: memory.Memory{Content: "Sam is learning the constellations.",
			CreatedAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}},
	}
	in.History = []types.HistoryMessage{
		{AuthorName: "Sam", Content: "Hi Luna!"},
		{AuthorName: "Luna", Content: "Hello Sam.", FromAssistant: true},
	}

	out, err := Assemble(in)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if len(out.Messages) < 4 {
		t.Fatalf("assembled %d messages, want at least 4", len(out.Messages))
	}

	first := out.Messages[0]
	if first.Role != "system" || !strings.Contains(first.Content, "# You are Luna") {
		t.Errorf("first message is not the persona block: %+v", first)
	}

	last := out.Messages[len(out.Messages)-1]
	if last.Role != "system" || !strings.Contains(last.Content, "Reply in plain prose.") {
		t.Errorf("last message is not the protocol block: %+v", last)
	}

	// Current user message sits immediately before the protocol block.
	current := out.Messages[len(out.Messages)-2]
	if current.Role != "user" || !strings.Contains(current.Content, `<from id="persona-u1">Sam</from>`) {
		t.Errorf("current user message malformed: %+v", current)
	}

	foundMemories := false
	for _, msg := range out.Messages {
		if strings.Contains(msg.Content, "## Relevant Memories") {
			foundMemories = true
			if !strings.Contains(msg.Content, "[Aug 20, 2026 12:00] Sam is learning the constellations.") {
				t.Errorf("memory line malformed: %q", msg.Content)
			}
		}
	}
	if !foundMemories {
		t.Error("memories block missing")
	}
	if out.MemoriesIncluded != 1 {
		t.Errorf("MemoriesIncluded = %d, want 1", out.MemoriesIncluded)
	}
	if out.MessagesIncluded != 2 || out.MessagesDropped != 0 {
		t.Errorf("history stats = %d included / %d dropped, want 2/0",
			out.MessagesIncluded, out.MessagesDropped)
	}
}

func TestAssembleHistoryBudget(t *testing.T) {
	in := baseInput()
	in.Personality.ContextWindowTokens = 600

	long := strings.Repeat("lorem ipsum dolor sit amet ", 10)
	for i := 0; i < 50; i++ {
		in.History = append(in.History, types.HistoryMessage{
			AuthorName: "Sam", Content: long,
		})
	}

	out, err := Assemble(in)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if out.MessagesDropped == 0 {
		t.Fatal("expected some history to be dropped under a tight budget")
	}
	if out.MessagesIncluded+out.MessagesDropped != 50 {
		t.Fatalf("included %d + dropped %d != 50", out.MessagesIncluded, out.MessagesDropped)
	}

	// Recency-first: the newest message survives, the oldest goes.
	if out.MessagesIncluded > 0 {
		var historyMsgs []types.Message
		for _, msg := range out.Messages {
			if msg.Role == "user" && strings.HasPrefix(msg.Content, "Sam: ") {
				historyMsgs = append(historyMsgs, msg)
			}
		}
		if len(historyMsgs) != out.MessagesIncluded {
			t.Fatalf("history messages in prompt = %d, stats say %d",
				len(historyMsgs), out.MessagesIncluded)
		}
	}
}

func TestAssembleMemoryBudgetRespectsWindow(t *testing.T) {
	// A persona that nearly fills the window leaves no room for memories;
	// packing them anyway would blow the token budget.
	in := baseInput()
	in.Personality.ContextWindowTokens = 600
	in.Personality.Character = strings.Repeat("An astronomer of long and storied habit. ", 50)
	for i := 0; i < 10; i++ {
		in.Memories = append(in.Memories, memory.ScoredMemory{
			Memory: memory.Memory{Content: strings.Repeat("observed the northern sky ", 5)},
		})
	}

	out, err := Assemble(in)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	total := 0
	for _, msg := range out.Messages {
		total += llm.EstimateTextTokens(msg.Content)
	}
	if total > in.Personality.ContextWindowTokens {
		t.Errorf("prompt estimates %d tokens, window is %d",
			total, in.Personality.ContextWindowTokens)
	}
}

func TestAssembleRejectsZeroWindow(t *testing.T) {
	in := baseInput()
	in.Personality.ContextWindowTokens = 0
	if _, err := Assemble(in); err == nil {
		t.Fatal("Assemble() error = nil for zero window")
	}
}

func TestAssembleNoMemoriesNoBlock(t *testing.T) {
	out, err := Assemble(baseInput())
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	for _, msg := range out.Messages {
		if strings.Contains(msg.Content, "Relevant Memories") {
			t.Fatal("memories block present despite zero memories")
		}
	}
}

func TestFormatMessageBody(t *testing.T) {
	cases := []struct {
		name, text, desc, want string
	}{
		{"voice only", "Hello", "[Voice] hi there", "[Voice] hi there"},
		{"both", "look at this", "[Image] a cat", "look at this\n\n[Image] a cat"},
		{"text only", "plain", "", "plain"},
		{"descriptions only", "", "[Image] a cat", "[Image] a cat"},
		{"empty", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatMessageBody(tc.text, tc.desc); got != tc.want {
				t.Errorf("FormatMessageBody(%q, %q) = %q, want %q", tc.text, tc.desc, got, tc.want)
			}
		})
	}
}

func TestWrapSpeaker(t *testing.T) {
	t.Run("plain name", func(t *testing.T) {
		got := WrapSpeaker("p1", "Sam", "sam42", "Luna", "hi")
		want := "<from id=\"p1\">Sam</from>\n\nhi"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("name collision disambiguates", func(t *testing.T) {
		got := WrapSpeaker("p1", "luna", "sam42", "Luna", "hi")
		if !strings.Contains(got, "luna (@sam42)") {
			t.Errorf("collision not disambiguated: %q", got)
		}
	})
}

func TestPackCrossChannel(t *testing.T) {
	groups := []types.CrossChannelGroup{
		{
			ChannelEnvironment: "server Alpha, channel #general",
			Messages: []types.HistoryMessage{
				{AuthorName: "Sam", Content: "see you in the other channel"},
			},
		},
	}

	t.Run("renders wrapped groups", func(t *testing.T) {
		got := PackCrossChannel(groups, 500)
		if !strings.Contains(got, "<prior_conversations>") ||
			!strings.Contains(got, "<location>server Alpha, channel #general</location>") ||
			!strings.Contains(got, "Sam: see you in the other channel") {
			t.Errorf("malformed cross-channel block: %q", got)
		}
	})

	t.Run("zero budget yields nothing", func(t *testing.T) {
		if got := PackCrossChannel(groups, 0); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})

	t.Run("tiny budget yields nothing rather than broken markup", func(t *testing.T) {
		if got := PackCrossChannel(groups, 12); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})
}
