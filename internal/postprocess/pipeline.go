// Package postprocess normalizes a final ASR transcript through an
// independently toggleable stage pipeline: acronym folding, sentence-
// boundary capitalization, and an optional conservative grammar pass. It
// runs once over C5's final string, never over streaming partials.
package postprocess

import "strings"

// Options controls which normalization stages run.
type Options struct {
	FoldAcronyms        bool
	CapitalizeSentences bool
	Grammar             bool

	// Abbreviations supplements the boundary classifier's built-in
	// abbreviation table with dictation-specific terms sourced from
	// vocab.sets.abbreviations (see config.AbbreviationPhrases), so a period
	// after e.g. "cfg" never forces a capital on the next word.
	Abbreviations []string
}

// Process joins final ASR segments, normalizes whitespace, and applies
// whichever stages opts enables, in order: acronym folding, then
// sentence-boundary capitalization (which also fixes standalone "i"), then
// the grammar pass.
func Process(finalSegments []string, opts Options) string {
	if len(finalSegments) == 0 {
		return ""
	}

	joined := strings.Join(finalSegments, " ")
	text := strings.Join(strings.Fields(joined), " ")
	if text == "" {
		return ""
	}

	if opts.FoldAcronyms {
		text = foldAcronyms(text)
	}
	if opts.CapitalizeSentences {
		text = capitalizeSentences(text, opts.Abbreviations)
	}
	if opts.Grammar {
		text = applyGrammarPass(text)
	}

	return text
}

func capitalizeSentences(text string, extraAbbreviations []string) string {
	text = capitalizeSentenceStarts(text, customAbbreviationSet(extraAbbreviations))
	text = pronounIContractionPattern.ReplaceAllStringFunc(text, func(match string) string {
		return "I" + match[1:]
	})
	return capitalizeStandalonePronounI(text)
}

func customAbbreviationSet(phrases []string) map[string]struct{} {
	if len(phrases) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		set[p] = struct{}{}
	}
	return set
}
