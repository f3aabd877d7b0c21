package asrengine

// SpeechPhrase is one vocabulary boost phrase in request-ready form.
type SpeechPhrase struct {
	Phrase string  `json:"phrase"`
	Boost  float32 `json:"boost"`
}

// recognitionConfig mirrors the config message a streaming ASR backend
// expects as the first frame on a StreamingRecognize call.
type recognitionConfig struct {
	Encoding             string         `json:"encoding"`
	SampleRateHertz      int            `json:"sample_rate_hertz"`
	LanguageCode         string         `json:"language_code"`
	Model                string         `json:"model,omitempty"`
	AutomaticPunctuation bool           `json:"automatic_punctuation"`
	AudioChannelCount    int            `json:"audio_channel_count"`
	SpeechContexts       []SpeechPhrase `json:"speech_contexts,omitempty"`
	InterimResults       bool           `json:"interim_results"`
}

// streamingRequest is one frame sent to the backend: either the initial
// config or a chunk of audio, never both.
type streamingRequest struct {
	Config       *recognitionConfig `json:"config,omitempty"`
	AudioContent []byte             `json:"audio_content,omitempty"`
}

// alternative is one candidate transcript for a result window.
type alternative struct {
	Transcript string `json:"transcript"`
}

// result is one windowed recognition result, final or interim.
type result struct {
	Alternatives []alternative `json:"alternatives"`
	IsFinal      bool          `json:"is_final"`
	Stability    float32       `json:"stability"`
}

// streamingResponse is one frame received from the backend.
type streamingResponse struct {
	Results []result `json:"results"`
}
