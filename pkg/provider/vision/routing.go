package vision

import (
	"regexp"
	"strings"
)

// DefaultCapablePatterns lists the model-name wildcards recognised as
// vision-capable out of the box. The set is data, not code: deployments load
// their own list from configuration so new multimodal models can be added
// without a release.
var DefaultCapablePatterns = []string{
	"gpt-4o*",
	"gpt-4-vision*",
	"gpt-4-turbo*",
	"claude-3*",
	"claude-4*",
	"gemini-1.5*",
	"gemini-2.*",
	"*vision*",
	"llama*vision*",
}

// Router decides which model serves an image-description call.
//
// Preference order:
//  1. The personality's explicit vision model.
//  2. The request's main model, when its name matches a capable pattern.
//  3. The configured fallback model.
type Router struct {
	patterns []*regexp.Regexp
	fallback string
}

// NewRouter compiles the wildcard patterns ("*" matches any run of
// characters, case-insensitive) and returns a Router that falls back to
// fallbackModel. Nil patterns means [DefaultCapablePatterns].
func NewRouter(patterns []string, fallbackModel string) (*Router, error) {
	if patterns == nil {
		patterns = DefaultCapablePatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := compileWildcard(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &Router{patterns: compiled, fallback: fallbackModel}, nil
}

// compileWildcard turns a "*"-wildcard pattern into an anchored
// case-insensitive regexp.
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
}

// IsCapable reports whether model matches any configured vision pattern.
func (r *Router) IsCapable(model string) bool {
	for _, re := range r.patterns {
		if re.MatchString(model) {
			return true
		}
	}
	return false
}

// Resolve picks the model for an image-description call.
func (r *Router) Resolve(personalityVisionModel, mainModel string) string {
	if personalityVisionModel != "" {
		return personalityVisionModel
	}
	if mainModel != "" && r.IsCapable(mainModel) {
		return mainModel
	}
	return r.fallback
}
