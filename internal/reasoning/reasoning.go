// Package reasoning adapts prompts and parameters to reasoning-model
// families. Reasoning models break the usual chat conventions in
// family-specific ways: OpenAI's o-series rejects system messages and
// temperature, Claude's extended thinking wants temperature pinned at 1.0,
// and the open-weight thinkers leak <think> tags into their output. The
// classifier maps a model name to its family; the adapters fix up the
// request and response accordingly.
package reasoning

import (
	"regexp"
	"strings"

	"github.com/animus-ai/animus/pkg/types"
)

// Family identifies a reasoning-model lineage with shared quirks.
type Family string

const (
	// FamilyNone marks ordinary chat models that need no adaptation.
	FamilyNone Family = ""

	// FamilyOpenAIReasoning covers the o-series. These models reject system
	// messages and the temperature parameter.
	FamilyOpenAIReasoning Family = "openai-reasoning"

	// FamilyClaudeThinking covers Claude extended thinking, which requires
	// temperature 1.0.
	FamilyClaudeThinking Family = "claude-extended-thinking"

	// The open-weight thinking families. They accept normal parameters but
	// may emit <think> tags that must be stripped from the output.
	FamilyDeepseekR1      Family = "deepseek-r1"
	FamilyQwenQwQ         Family = "qwen-qwq"
	FamilyGLMThinking     Family = "glm-thinking"
	FamilyKimiThinking    Family = "kimi-thinking"
	FamilyGenericThinking Family = "generic-thinking"
)

// EmitsThinkTags reports whether responses from this family may carry
// <think> or <thinking> blocks.
func (f Family) EmitsThinkTags() bool {
	switch f {
	case FamilyDeepseekR1, FamilyQwenQwQ, FamilyGLMThinking,
		FamilyKimiThinking, FamilyGenericThinking:
		return true
	}
	return false
}

// Rule maps a model-name pattern to a family. Patterns match
// case-insensitively against the full model identifier (vendor prefix
// included).
type Rule struct {
	Pattern string `yaml:"pattern"`
	Family  Family `yaml:"family"`

	re *regexp.Regexp
}

// DefaultRules is the built-in classification table. Deployments can extend
// or replace it from configuration; first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `(^|/)o[134](-|$|:)`, Family: FamilyOpenAIReasoning},
		{Pattern: `claude.*(thinking|extended)`, Family: FamilyClaudeThinking},
		{Pattern: `deepseek.*r1`, Family: FamilyDeepseekR1},
		{Pattern: `qwq`, Family: FamilyQwenQwQ},
		{Pattern: `glm.*(think|z1)`, Family: FamilyGLMThinking},
		{Pattern: `kimi.*(think|k1)`, Family: FamilyKimiThinking},
		{Pattern: `think`, Family: FamilyGenericThinking},
	}
}

// Classifier resolves model names to reasoning families.
type Classifier struct {
	rules []Rule
}

// NewClassifier compiles a rule set. Invalid patterns are skipped rather
// than failing the whole table; pass nil to use [DefaultRules].
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(`(?i)` + r.Pattern)
		if err != nil {
			continue
		}
		r.re = re
		compiled = append(compiled, r)
	}
	return &Classifier{rules: compiled}
}

// Classify returns the family of model, or [FamilyNone].
func (c *Classifier) Classify(model string) Family {
	for _, r := range c.rules {
		if r.re.MatchString(model) {
			return r.Family
		}
	}
	return FamilyNone
}

// Adapt rewrites messages and params for the given family and returns the
// adjusted pair. The input slices are not mutated.
func Adapt(family Family, messages []types.Message, params types.LLMParams) ([]types.Message, types.LLMParams) {
	switch family {
	case FamilyOpenAIReasoning:
		return foldSystemMessages(messages), stripTemperature(params)
	case FamilyClaudeThinking:
		one := 1.0
		params.Temperature = &one
		return messages, params
	default:
		return messages, params
	}
}

// foldSystemMessages removes every system message and prepends their
// concatenated content to the first user message, wrapped in a
// [System Instructions] section. o-series models reject the system role
// outright, so the instructions must travel as user content.
func foldSystemMessages(messages []types.Message) []types.Message {
	var systems []string
	rest := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			systems = append(systems, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	if len(systems) == 0 {
		return rest
	}

	wrapped := "[System Instructions]\n" + strings.Join(systems, "\n\n") + "\n[End System Instructions]\n\n"
	for i, m := range rest {
		if m.Role == "user" {
			rest[i].Content = wrapped + m.Content
			return rest
		}
	}
	// No user message to fold into; carry the instructions as a user turn.
	return append([]types.Message{{Role: "user", Content: strings.TrimRight(wrapped, "\n")}}, rest...)
}

func stripTemperature(params types.LLMParams) types.LLMParams {
	params.Temperature = nil
	return params
}

// thinkTagPattern matches <think> and <thinking> blocks, case-insensitive,
// non-greedy, across newlines.
var thinkTagPattern = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)

// StripThinkTags removes reasoning blocks from model output and trims the
// result. Content consisting only of think tags strips to "".
func StripThinkTags(content string) string {
	return strings.TrimSpace(thinkTagPattern.ReplaceAllString(content, ""))
}
