// Package configcascade resolves per-user and per-personality configuration
// through a tiered cascade.
//
// LLM parameter overrides live at four tiers: personality, channel, user and
// admin. Resolution walks personality, channel, user, admin, then hard-coded
// defaults; the first tier with a value for a field wins. Persona selection
// uses switch semantics instead: the highest-priority override replaces the
// default wholesale.
//
// Resolvers cache results with a TTL and subscribe to a Redis pub/sub
// channel for invalidation, so config edits propagate across processes
// within a bounded delay.
package configcascade

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/animus-ai/animus/pkg/types"
)

// ErrInvalidOverride is returned when a partial override carries unknown
// fields or malformed values.
var ErrInvalidOverride = errors.New("invalid config override")

// allowedOverrideFields is the whitelist of LLM params that overrides may
// set. Anything else in a partial is a validation failure, not a silent
// drop.
var allowedOverrideFields = map[string]bool{
	"model":             true,
	"temperature":       true,
	"maxTokens":         true,
	"topP":              true,
	"topK":              true,
	"frequencyPenalty":  true,
	"presencePenalty":   true,
	"repetitionPenalty": true,
	"minP":              true,
	"topA":              true,
	"seed":              true,
	"stop":              true,
	"logitBias":         true,
	"responseFormat":    true,
	"reasoning":         true,
	"transforms":        true,
	"route":             true,
	"verbosity":         true,
}

// MergeOverrides folds a partial override into the current override blob.
// Fields present in partial replace the current values; explicit JSON nulls
// delete fields; untouched fields survive. Returns nil when the merge
// produces an empty object (meaning: clear the override row entirely), and
// [ErrInvalidOverride] when partial carries unknown fields.
func MergeOverrides(partial map[string]json.RawMessage, current map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	for field := range partial {
		if !allowedOverrideFields[field] {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidOverride, field)
		}
	}

	merged := make(map[string]json.RawMessage, len(current)+len(partial))
	for field, value := range current {
		merged[field] = value
	}
	for field, value := range partial {
		if isJSONNull(value) {
			delete(merged, field)
			continue
		}
		merged[field] = value
	}

	if len(merged) == 0 {
		return nil, nil
	}
	return merged, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// paramsFromBlob decodes an override blob into LLMParams. Unknown fields in
// stored blobs are tolerated (they passed validation when written under an
// older schema).
func paramsFromBlob(blob map[string]json.RawMessage) (types.LLMParams, error) {
	var params types.LLMParams
	if len(blob) == 0 {
		return params, nil
	}
	encoded, err := json.Marshal(blob)
	if err != nil {
		return params, fmt.Errorf("configcascade: encode blob: %w", err)
	}
	if err := json.Unmarshal(encoded, &params); err != nil {
		return params, fmt.Errorf("configcascade: decode blob: %w", err)
	}
	return params, nil
}

// OverlayParams fills every unset field of base from fallback. Base wins
// wherever it has a value; the result is a fresh struct.
func OverlayParams(base, fallback types.LLMParams) types.LLMParams {
	out := base
	if out.Model == "" {
		out.Model = fallback.Model
	}
	if out.Temperature == nil {
		out.Temperature = fallback.Temperature
	}
	if out.MaxTokens == nil {
		out.MaxTokens = fallback.MaxTokens
	}
	if out.TopP == nil {
		out.TopP = fallback.TopP
	}
	if out.TopK == nil {
		out.TopK = fallback.TopK
	}
	if out.FrequencyPenalty == nil {
		out.FrequencyPenalty = fallback.FrequencyPenalty
	}
	if out.PresencePenalty == nil {
		out.PresencePenalty = fallback.PresencePenalty
	}
	if out.RepetitionPenalty == nil {
		out.RepetitionPenalty = fallback.RepetitionPenalty
	}
	if out.MinP == nil {
		out.MinP = fallback.MinP
	}
	if out.TopA == nil {
		out.TopA = fallback.TopA
	}
	if out.Seed == nil {
		out.Seed = fallback.Seed
	}
	if out.Stop == nil {
		out.Stop = fallback.Stop
	}
	if out.LogitBias == nil {
		out.LogitBias = fallback.LogitBias
	}
	if out.ResponseFormat == nil {
		out.ResponseFormat = fallback.ResponseFormat
	}
	if out.Reasoning == nil {
		out.Reasoning = fallback.Reasoning
	}
	if out.Transforms == nil {
		out.Transforms = fallback.Transforms
	}
	if out.Route == "" {
		out.Route = fallback.Route
	}
	if out.Verbosity == "" {
		out.Verbosity = fallback.Verbosity
	}
	return out
}
