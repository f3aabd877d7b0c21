// Package config resolves, parses, validates, and defaults the daemon's
// runtime configuration from a TOML file, per spec.md section 6's key table.
package config

// Config is the fully materialized runtime configuration used by dictd.
type Config struct {
	Daemon         DaemonConfig
	VAD            VADConfig
	Keyboard       KeyboardConfig
	GUI            GUIConfig
	Elements       ElementsConfig
	Animations     AnimationsConfig
	PostProcessing PostProcessingConfig
	Vocab          VocabConfig
	Debug          DebugConfig
	Indicator      IndicatorConfig
}

// DaemonConfig holds the spec's `daemon.*` keys: device selection, pipeline
// rate, language, and the two recognizer engine selectors.
type DaemonConfig struct {
	AudioDevice            string
	AudioFallback          string
	SampleRate             int
	Language               string
	ASREndpoint            string
	PreviewModel           string
	PreviewModelCustomPath string
	FinalModel             string
	FinalModelCustomPath   string
}

// VADConfig holds the spec's `vad.*` keys: C3's hysteresis parameters.
type VADConfig struct {
	EnergyThresholdDB    float64
	SpeechTriggerFrames  int
	SilenceTriggerFrames int
}

// KeyboardConfig holds the spec's `keyboard.*` keys: C7's emission pacing.
type KeyboardConfig struct {
	TypingDelayMS int
	WordDelayMS   int
}

// GUIConfig holds the spec's `gui.*` keys: C11's layer-shell surface geometry.
type GUIConfig struct {
	MarginBottom int
	Namespace    string
	Width        int
	MaxHeight    int
}

// ElementsConfig holds the spec's `elements.*` keys: spectrum bar sizing.
type ElementsConfig struct {
	SpectrumBands int
	MinBarHeight  float64
	MaxBarHeight  float64
}

// AnimationsConfig holds the spec's `animations.*` keys: fade/collapse timing
// and spectrum smoothing.
type AnimationsConfig struct {
	PreListeningMS    int
	CloseAnimationMS  int
	SpectrumSmoothing float64
	SpinnerDots       int
	SpinnerHz         float64
}

// PostProcessingConfig holds the spec's `post_processing.*` per-stage toggles.
type PostProcessingConfig struct {
	FoldAcronyms        bool
	CapitalizeSentences bool
	Grammar             bool
}

// VocabConfig controls enabled speech phrase sets and dedupe limits, carried
// from the teacher's vocabulary boosting feature (SPEC_FULL supplement).
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Boost   float64
	Phrases []string
}

// DebugConfig controls optional debug artifact output (SPEC_FULL supplement).
type DebugConfig struct {
	EnableAudioDump bool
	EnableGRPCDump  bool
}

// IndicatorConfig controls the synthesized audio cues played on session
// transitions, carried from the teacher's internal/indicator package
// (SPEC_FULL supplement; spec.md itself is silent on audio cues).
type IndicatorConfig struct {
	SoundEnable bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}

// SpeechPhrase is the normalized phrase payload sent to ASR adapters.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
