// Package asrengine drives a bidirectional-streaming ASR backend over plain
// gRPC, without a protoc-generated client: requests and responses are
// framed exactly like protobuf gRPC traffic but carry JSON payloads via a
// registered codec. One Stream backs both the preview engine (kept open for
// an entire utterance, surfacing interim updates) and the final engine
// (opened once per confirm, closed immediately after the last audio chunk).
package asrengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// streamingRecognizeDesc describes the backend's bidi-streaming method. No
// .proto file backs this: the wire shape is protobuf-framed gRPC carrying
// JSON, so only the method name and streaming flags matter to grpc-go.
var streamingRecognizeDesc = grpc.StreamDesc{
	StreamName:    "StreamingRecognize",
	ClientStreams: true,
	ServerStreams: true,
}

const streamingRecognizeMethod = "/asr.v1.Recognizer/StreamingRecognize"

// StreamConfig controls stream initialization and recognition behavior.
type StreamConfig struct {
	Endpoint              string
	LanguageCode          string
	Model                 string
	AutomaticPunctuation  bool
	SpeechPhrases         []SpeechPhrase
	DialTimeout           time.Duration
	DebugResponseSinkJSON io.Writer
}

// Stream wraps one active StreamingRecognize RPC lifecycle.
type Stream struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream

	recvDone chan struct{}

	mu                   sync.Mutex
	segments             []string
	lastInterim          string
	lastInterimStability float32
	recvErr              error
	closedSend           bool
	debugSinkJSON        io.Writer
}

// DialStream establishes a stream, sends config, and starts the receive loop.
func DialStream(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("asr endpoint is empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}

	conn, err := grpc.NewClient(
		endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial asr grpc %q: %w", endpoint, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for asr grpc readiness: %w", err)
	}

	clientStream, err := conn.NewStream(ctx, &streamingRecognizeDesc, streamingRecognizeMethod)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open streaming recognizer: %w", err)
	}

	cfgMsg := &recognitionConfig{
		Encoding:             "LINEAR_PCM",
		SampleRateHertz:      16000,
		LanguageCode:         cfg.LanguageCode,
		Model:                strings.TrimSpace(cfg.Model),
		AutomaticPunctuation: cfg.AutomaticPunctuation,
		AudioChannelCount:    1,
		InterimResults:       true,
	}
	for _, phrase := range cfg.SpeechPhrases {
		phraseText := strings.TrimSpace(phrase.Phrase)
		if phraseText == "" {
			continue
		}
		cfgMsg.SpeechContexts = append(cfgMsg.SpeechContexts, SpeechPhrase{Phrase: phraseText, Boost: phrase.Boost})
	}

	if err := clientStream.SendMsg(&streamingRequest{Config: cfgMsg}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send initial streaming config: %w", err)
	}

	s := &Stream{
		conn:          conn,
		stream:        clientStream,
		recvDone:      make(chan struct{}),
		debugSinkJSON: cfg.DebugResponseSinkJSON,
	}
	go s.recvLoop()
	return s, nil
}

// recvLoop continuously receives recognition responses until stream close/error.
func (s *Stream) recvLoop() {
	defer close(s.recvDone)

	for {
		var resp streamingResponse
		err := s.stream.RecvMsg(&resp)
		if err == nil {
			s.recordResponse(&resp)
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}

		s.mu.Lock()
		s.recvErr = err
		s.mu.Unlock()
		return
	}
}

// recordResponse merges final/interim segments into stream state.
func (s *Stream) recordResponse(resp *streamingResponse) {
	if sink := s.debugSinkJSON; sink != nil {
		if b, err := json.Marshal(resp); err == nil {
			_, _ = sink.Write(append(b, '\n'))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		transcript := cleanSegment(r.Alternatives[0].Transcript)
		if transcript == "" {
			continue
		}
		if r.IsFinal {
			s.segments = appendSegment(s.segments, transcript)
			s.lastInterim = ""
			s.lastInterimStability = 0
			continue
		}

		if shouldCommitPriorInterimOnDivergence(s.lastInterim, s.lastInterimStability, transcript) {
			s.segments = appendSegment(s.segments, s.lastInterim)
		}
		s.lastInterim = transcript
		s.lastInterimStability = r.Stability
	}
}

// SendAudio sends one chunk of PCM audio over the active stream.
func (s *Stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closedSend
	recvErr := s.recvErr
	s.mu.Unlock()

	if closed {
		return errors.New("stream already closed for sending")
	}
	if recvErr != nil {
		return fmt.Errorf("stream receive loop failed: %w", recvErr)
	}

	return s.stream.SendMsg(&streamingRequest{AudioContent: chunk})
}

// LastInterim returns the most recent, not-yet-final interim transcript.
func (s *Stream) LastInterim() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInterim
}

// CloseAndCollect closes send-side audio and returns merged transcript segments.
func (s *Stream) CloseAndCollect(ctx context.Context) ([]string, time.Duration, error) {
	closedAt := time.Now()

	s.mu.Lock()
	if !s.closedSend {
		s.closedSend = true
		_ = s.stream.CloseSend()
	}
	s.mu.Unlock()

	select {
	case <-s.recvDone:
	case <-ctx.Done():
		_ = s.conn.Close()
		return nil, 0, ctx.Err()
	}
	latency := time.Since(closedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { _ = s.conn.Close() }()

	if s.recvErr != nil {
		return nil, latency, s.recvErr
	}

	segments := collectSegments(s.segments, s.lastInterim)
	return segments, latency, nil
}

// Cancel aborts stream processing and closes the underlying grpc connection.
func (s *Stream) Cancel() error {
	s.mu.Lock()
	if !s.closedSend {
		s.closedSend = true
		_ = s.stream.CloseSend()
	}
	s.mu.Unlock()
	return s.conn.Close()
}
