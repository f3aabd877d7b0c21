package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// tomlFile mirrors spec.md section 6's key table. Every leaf is a pointer
// so Parse can tell "key present in file" apart from "key absent" and only
// override base's defaults for keys the user actually set; unrecognized
// keys are ignored per spec.md's "others ignored" rule (toml.Decode simply
// does not populate fields it has no struct tag for).
type tomlFile struct {
	Daemon         *tomlDaemon         `toml:"daemon"`
	VAD            *tomlVAD            `toml:"vad"`
	Keyboard       *tomlKeyboard       `toml:"keyboard"`
	GUI            *tomlGUI            `toml:"gui"`
	Elements       *tomlElements       `toml:"elements"`
	Animations     *tomlAnimations     `toml:"animations"`
	PostProcessing *tomlPostProcessing `toml:"post_processing"`
	Vocab          *tomlVocab          `toml:"vocab"`
	Debug          *tomlDebug          `toml:"debug"`
	Indicator      *tomlIndicator      `toml:"indicator"`
}

type tomlDaemon struct {
	AudioDevice            *string `toml:"audio_device"`
	AudioFallback          *string `toml:"audio_fallback"`
	SampleRate             *int    `toml:"sample_rate"`
	Language               *string `toml:"language"`
	ASREndpoint            *string `toml:"asr_endpoint"`
	PreviewModel           *string `toml:"preview_model"`
	PreviewModelCustomPath *string `toml:"preview_model_custom_path"`
	FinalModel             *string `toml:"final_model"`
	FinalModelCustomPath   *string `toml:"final_model_custom_path"`
}

type tomlVAD struct {
	EnergyThresholdDB    *float64 `toml:"energy_threshold_db"`
	SpeechTriggerFrames  *int     `toml:"speech_trigger_frames"`
	SilenceTriggerFrames *int     `toml:"silence_trigger_frames"`
}

type tomlKeyboard struct {
	TypingDelayMS *int `toml:"typing_delay_ms"`
	WordDelayMS   *int `toml:"word_delay_ms"`
}

type tomlGUI struct {
	MarginBottom *int    `toml:"margin_bottom"`
	Namespace    *string `toml:"namespace"`
	Width        *int    `toml:"width"`
	MaxHeight    *int    `toml:"max_height"`
}

type tomlElements struct {
	SpectrumBands *int     `toml:"spectrum_bands"`
	MinBarHeight  *float64 `toml:"min_bar_height"`
	MaxBarHeight  *float64 `toml:"max_bar_height"`
}

type tomlAnimations struct {
	PreListeningMS    *int     `toml:"pre_listening_ms"`
	CloseAnimationMS  *int     `toml:"close_animation_ms"`
	SpectrumSmoothing *float64 `toml:"spectrum_smoothing"`
	SpinnerDots       *int     `toml:"spinner_dots"`
	SpinnerHz         *float64 `toml:"spinner_hz"`
}

type tomlPostProcessing struct {
	FoldAcronyms        *bool `toml:"fold_acronyms"`
	CapitalizeSentences *bool `toml:"capitalize_sentences"`
	Grammar             *bool `toml:"grammar"`
}

type tomlVocab struct {
	Global     []string             `toml:"global"`
	Sets       map[string]tomlVocabSet `toml:"sets"`
	MaxPhrases *int                 `toml:"max_phrases"`
}

type tomlVocabSet struct {
	Boost   float64  `toml:"boost"`
	Phrases []string `toml:"phrases"`
}

type tomlDebug struct {
	AudioDump *bool `toml:"audio_dump"`
	GRPCDump  *bool `toml:"grpc_dump"`
}

type tomlIndicator struct {
	SoundEnable *bool `toml:"sound_enable"`
}

// Parse decodes TOML content onto base, overriding only the keys present in
// content, and validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	var file tomlFile
	if _, err := toml.Decode(content, &file); err != nil {
		return Config{}, nil, fmt.Errorf("parse toml config: %w", err)
	}

	cfg := applyTOML(base, file)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func applyTOML(cfg Config, file tomlFile) Config {
	if d := file.Daemon; d != nil {
		setString(&cfg.Daemon.AudioDevice, d.AudioDevice)
		setString(&cfg.Daemon.AudioFallback, d.AudioFallback)
		setInt(&cfg.Daemon.SampleRate, d.SampleRate)
		setString(&cfg.Daemon.Language, d.Language)
		setString(&cfg.Daemon.ASREndpoint, d.ASREndpoint)
		setString(&cfg.Daemon.PreviewModel, d.PreviewModel)
		setString(&cfg.Daemon.PreviewModelCustomPath, d.PreviewModelCustomPath)
		setString(&cfg.Daemon.FinalModel, d.FinalModel)
		setString(&cfg.Daemon.FinalModelCustomPath, d.FinalModelCustomPath)
	}
	if v := file.VAD; v != nil {
		setFloat(&cfg.VAD.EnergyThresholdDB, v.EnergyThresholdDB)
		setInt(&cfg.VAD.SpeechTriggerFrames, v.SpeechTriggerFrames)
		setInt(&cfg.VAD.SilenceTriggerFrames, v.SilenceTriggerFrames)
	}
	if k := file.Keyboard; k != nil {
		setInt(&cfg.Keyboard.TypingDelayMS, k.TypingDelayMS)
		setInt(&cfg.Keyboard.WordDelayMS, k.WordDelayMS)
	}
	if g := file.GUI; g != nil {
		setInt(&cfg.GUI.MarginBottom, g.MarginBottom)
		setString(&cfg.GUI.Namespace, g.Namespace)
		setInt(&cfg.GUI.Width, g.Width)
		setInt(&cfg.GUI.MaxHeight, g.MaxHeight)
	}
	if e := file.Elements; e != nil {
		setInt(&cfg.Elements.SpectrumBands, e.SpectrumBands)
		setFloat(&cfg.Elements.MinBarHeight, e.MinBarHeight)
		setFloat(&cfg.Elements.MaxBarHeight, e.MaxBarHeight)
	}
	if a := file.Animations; a != nil {
		setInt(&cfg.Animations.PreListeningMS, a.PreListeningMS)
		setInt(&cfg.Animations.CloseAnimationMS, a.CloseAnimationMS)
		setFloat(&cfg.Animations.SpectrumSmoothing, a.SpectrumSmoothing)
		setInt(&cfg.Animations.SpinnerDots, a.SpinnerDots)
		setFloat(&cfg.Animations.SpinnerHz, a.SpinnerHz)
	}
	if p := file.PostProcessing; p != nil {
		setBool(&cfg.PostProcessing.FoldAcronyms, p.FoldAcronyms)
		setBool(&cfg.PostProcessing.CapitalizeSentences, p.CapitalizeSentences)
		setBool(&cfg.PostProcessing.Grammar, p.Grammar)
	}
	if v := file.Vocab; v != nil {
		if v.Global != nil {
			cfg.Vocab.GlobalSets = v.Global
		}
		if v.Sets != nil {
			sets := make(map[string]VocabSet, len(v.Sets))
			for name, set := range v.Sets {
				sets[name] = VocabSet{Boost: set.Boost, Phrases: set.Phrases}
			}
			cfg.Vocab.Sets = sets
		}
		setInt(&cfg.Vocab.MaxPhrases, v.MaxPhrases)
	}
	if d := file.Debug; d != nil {
		setBool(&cfg.Debug.EnableAudioDump, d.AudioDump)
		setBool(&cfg.Debug.EnableGRPCDump, d.GRPCDump)
	}
	if i := file.Indicator; i != nil {
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
	}

	return cfg
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
