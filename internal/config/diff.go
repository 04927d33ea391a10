package config

import (
	"slices"

	"github.com/animus-ai/animus/internal/reasoning"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; connection and
// provider changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ReasoningRulesChanged reports a change in the model classification
	// dataset; the classifier should be rebuilt.
	ReasoningRulesChanged bool

	// VisionPatternsChanged reports a change in the vision-capable model
	// dataset; the vision router should be rebuilt.
	VisionPatternsChanged bool
}

// Changed reports whether the diff carries any reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ReasoningRulesChanged || d.VisionPatternsChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.EqualFunc(old.Reasoning.Rules, new.Reasoning.Rules, sameRule) {
		d.ReasoningRulesChanged = true
	}

	if !slices.Equal(old.Vision.ModelPatterns, new.Vision.ModelPatterns) ||
		old.Vision.FallbackModel != new.Vision.FallbackModel {
		d.VisionPatternsChanged = true
	}

	return d
}

func sameRule(a, b reasoning.Rule) bool {
	return a.Pattern == b.Pattern && a.Family == b.Family
}
