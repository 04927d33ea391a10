// Package phonetic ranks known names against possibly misheard words.
//
// Speech-to-text output mangles invented names (persona and personality
// names, place names from roleplay sessions) into nearby English words.
// The matcher first narrows the known names to phonetic candidates by
// comparing Double Metaphone codes, then ranks candidates by Jaro-Winkler
// similarity on the original spelling. When no name sounds alike at all, a
// stricter pure-similarity pass catches transcripts where the encoding
// diverged but the spelling barely did.
//
// Multi-word names work token-wise: "Tower of Whispers" matches when any
// of its words phonetically aligns with any input word.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity a sound-alike
// candidate needs. Default 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity for the no-sound-alike
// fallback pass. Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher implements [transcript.PhoneticMatcher]. Read-only after
// construction, so safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a Matcher with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match picks the entity most likely meant by word, which may be a single
// token or a space-separated n-gram. When matched is false, corrected is
// word unchanged and confidence is 0.
func (m *Matcher) Match(word string, entities []string) (corrected string, confidence float64, matched bool) {
	if len(entities) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	wordCodes := metaphoneCodes(wordTokens)

	var (
		bestEntity   string
		bestScore    float64
		bestPhonetic bool
	)

	for _, entity := range entities {
		entityLower := strings.ToLower(strings.TrimSpace(entity))
		if entityLower == "" {
			continue
		}
		entityTokens := strings.Fields(entityLower)

		soundsAlike := codesOverlap(wordCodes, metaphoneCodes(entityTokens))
		score := similarity(wordTokens, entityTokens, wordLower, entityLower)

		switch {
		case soundsAlike && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestEntity, bestScore, bestPhonetic = entity, score, true
			}
		case !soundsAlike && !bestPhonetic:
			// Fallback ranking only while no phonetic candidate won.
			if score >= m.fuzzyThreshold && score > bestScore {
				bestEntity, bestScore = entity, score
			}
		}
	}

	if bestEntity == "" {
		return word, 0, false
	}
	return bestEntity, bestScore, true
}

// metaphoneCodes returns the union of Double Metaphone codes over tokens,
// skipping the empty codes short or vowel-only tokens produce.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, 2*len(tokens))
	for _, tok := range tokens {
		primary, secondary := matchr.DoubleMetaphone(tok)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the highest Jaro-Winkler score across three views of the
// pair: the full strings, the space-stripped strings, and the best single
// token pair. The token-pair view covers one spoken word landing on one
// word of a longer name; the stripped view covers word boundaries the
// transcriber invented or swallowed.
func similarity(wordTokens, entityTokens []string, wordFull, entityFull string) float64 {
	score := matchr.JaroWinkler(wordFull, entityFull, false)

	if len(wordTokens) > 1 || len(entityTokens) > 1 {
		joined := matchr.JaroWinkler(
			strings.Join(wordTokens, ""), strings.Join(entityTokens, ""), false)
		if joined > score {
			score = joined
		}
	}

	for _, wt := range wordTokens {
		for _, et := range entityTokens {
			if s := matchr.JaroWinkler(wt, et, false); s > score {
				score = s
			}
		}
	}
	return score
}
