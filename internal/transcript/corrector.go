// Package transcript fixes speech-to-text errors in names the model should
// know. Whisper rarely gets invented personality and persona names right
// ("Luna" arrives as "Lunar", "Zephyrine" as "Severin"), so voice-message
// transcripts are aligned against the known name list before entering the
// prompt.
//
// Correction is phonetic and in-process: Double Metaphone candidate
// filtering plus Jaro-Winkler ranking via [phonetic.Matcher], with n-gram
// windows so multi-word names match as a unit. Each [Correction] records the
// substitution and its confidence so callers can audit or log the changes.
package transcript

import (
	"strings"

	"github.com/animus-ai/animus/internal/transcript/phonetic"
)

// Correction captures a single substitution made by the corrector.
type Correction struct {
	// Original is the text span as transcribed.
	Original string

	// Corrected is the known name it was replaced with.
	Corrected string

	// Confidence is the similarity score that justified the substitution,
	// in (0, 1].
	Confidence float64
}

// PhoneticMatcher matches a word or phrase against a list of known names.
// When matched is false, corrected equals the input unchanged and confidence
// is 0.
type PhoneticMatcher interface {
	Match(word string, entities []string) (corrected string, confidence float64, matched bool)
}

// Corrector aligns transcript text against a set of known names.
// Safe for concurrent use.
type Corrector struct {
	matcher PhoneticMatcher
}

// NewCorrector builds a Corrector. matcher may be nil, in which case a
// default [phonetic.Matcher] is used.
func NewCorrector(matcher PhoneticMatcher) *Corrector {
	if matcher == nil {
		matcher = phonetic.New()
	}
	return &Corrector{matcher: matcher}
}

// Correct replaces misheard names in text. names is the list of known
// personality and participant names for the conversation; an empty list
// returns the text unchanged.
//
// The text is tokenised on whitespace and scanned left to right. At each
// position, n-gram windows from the longest name length down to one token
// are tested; the longest matching window wins so multi-word names take
// precedence over partial single-word matches.
func (c *Corrector) Correct(text string, names []string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(names) == 0 {
		return text, nil
	}

	maxWindow := maxWordCount(names)

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := maxWindow
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			name, conf, ok := c.matcher.Match(window, names)
			if !ok {
				continue
			}
			// Identity matches carry no information; skip them so exact
			// names pass through without a correction record.
			if strings.EqualFold(window, name) {
				break
			}

			output = append(output, strings.Fields(name)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  name,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any name. Returns 1 when names is empty.
func maxWordCount(names []string) int {
	max := 1
	for _, n := range names {
		if c := len(strings.Fields(n)); c > max {
			max = c
		}
	}
	return max
}
