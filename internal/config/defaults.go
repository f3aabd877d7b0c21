package config

import (
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/vad"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			AudioDevice:   "default",
			AudioFallback: "default",
			SampleRate:    16000,
			Language:      "en-US",
			ASREndpoint:   "127.0.0.1:50051",
			PreviewModel:  "streaming-default",
			FinalModel:    "batch-default",
		},
		VAD: VADConfig{
			EnergyThresholdDB:    vad.DefaultEnergyThresholdDB,
			SpeechTriggerFrames:  vad.DefaultSpeechTriggerFrames,
			SilenceTriggerFrames: 25,
		},
		Keyboard: KeyboardConfig{
			TypingDelayMS: 10,
			WordDelayMS:   50,
		},
		GUI: GUIConfig{
			MarginBottom: 50,
			Namespace:    "dictd-overlay",
			Width:        420,
			MaxHeight:    140,
		},
		Elements: ElementsConfig{
			SpectrumBands: 8,
			MinBarHeight:  2,
			MaxBarHeight:  48,
		},
		Animations: AnimationsConfig{
			PreListeningMS:    150,
			CloseAnimationMS:  500,
			SpectrumSmoothing: 0.6,
			SpinnerDots:       3,
			SpinnerHz:         4,
		},
		PostProcessing: PostProcessingConfig{
			FoldAcronyms:        true,
			CapitalizeSentences: true,
			Grammar:             false,
		},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Debug: DebugConfig{},
		Indicator: IndicatorConfig{
			SoundEnable: true,
		},
	}
}
