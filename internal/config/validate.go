package config

import (
	"fmt"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
// ConfigInvalid per spec.md section 7 fails daemon startup entirely; it
// never partially applies a bad config.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Daemon.ASREndpoint) == "" {
		return nil, fmt.Errorf("daemon.asr_endpoint must not be empty")
	}
	if cfg.Daemon.SampleRate <= 0 {
		return nil, fmt.Errorf("daemon.sample_rate must be > 0")
	}
	if strings.TrimSpace(cfg.Daemon.Language) == "" {
		return nil, fmt.Errorf("daemon.language must not be empty")
	}
	if cfg.VAD.SpeechTriggerFrames <= 0 {
		return nil, fmt.Errorf("vad.speech_trigger_frames must be > 0")
	}
	if cfg.VAD.SilenceTriggerFrames <= 0 {
		return nil, fmt.Errorf("vad.silence_trigger_frames must be > 0")
	}
	if cfg.Keyboard.TypingDelayMS < 0 {
		return nil, fmt.Errorf("keyboard.typing_delay_ms must be >= 0")
	}
	if cfg.Keyboard.WordDelayMS < 0 {
		return nil, fmt.Errorf("keyboard.word_delay_ms must be >= 0")
	}
	if cfg.GUI.MarginBottom < 0 {
		return nil, fmt.Errorf("gui.margin_bottom must be >= 0")
	}
	if strings.TrimSpace(cfg.GUI.Namespace) == "" {
		return nil, fmt.Errorf("gui.namespace must not be empty")
	}
	if cfg.Elements.SpectrumBands <= 0 {
		return nil, fmt.Errorf("elements.spectrum_bands must be > 0")
	}
	if cfg.Elements.MaxBarHeight <= cfg.Elements.MinBarHeight {
		return nil, fmt.Errorf("elements.max_bar_height must be > elements.min_bar_height")
	}
	if cfg.Animations.PreListeningMS < 0 {
		return nil, fmt.Errorf("animations.pre_listening_ms must be >= 0")
	}
	if cfg.Animations.CloseAnimationMS < 0 {
		return nil, fmt.Errorf("animations.close_animation_ms must be >= 0")
	}
	if cfg.Animations.SpectrumSmoothing < 0 || cfg.Animations.SpectrumSmoothing > 1 {
		return nil, fmt.Errorf("animations.spectrum_smoothing must be within [0,1]")
	}
	if cfg.Vocab.MaxPhrases <= 0 {
		return nil, fmt.Errorf("vocab.max_phrases must be > 0")
	}

	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic ASR phrase payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in multiple sets; using higher boost %.2f from %q", phrase, set.Boost, name)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Phrase == phrases[j].Phrase {
			return phrases[i].Boost < phrases[j].Boost
		}
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}

// abbreviationsVocabSet is the reserved vocab.sets name users populate with
// dictation-specific abbreviations (e.g. "cfg", "ipc", "wav") that should
// never be treated as sentence-ending on their own. It's looked up directly
// rather than gated behind vocab.global, since it tunes post-processing
// rather than ASR phrase boosting.
const abbreviationsVocabSet = "abbreviations"

// AbbreviationPhrases returns the user-configured non-terminal abbreviation
// list from vocab.sets.abbreviations, normalized for postprocess's boundary
// classifier (lowercased, trailing periods trimmed, blanks dropped).
func AbbreviationPhrases(cfg Config) []string {
	set, ok := cfg.Vocab.Sets[abbreviationsVocabSet]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(set.Phrases))
	for _, phrase := range set.Phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		phrase = strings.Trim(phrase, ".")
		if phrase == "" {
			continue
		}
		out = append(out, phrase)
	}
	return out
}
