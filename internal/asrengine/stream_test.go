package asrengine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// testASRServer is a hand-wired gRPC service: there is no .proto file, so
// it is registered directly against a grpc.ServiceDesc instead of a
// generated *_grpc.pb.go RegisterXServer function.
type testASRServer struct {
	responses []streamingResponse
	streamErr error

	receivedConfig *recognitionConfig
	audioChunks    int
}

func (s *testASRServer) handle(srv any, stream grpc.ServerStream) error {
	for {
		var req streamingRequest
		if err := stream.RecvMsg(&req); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if req.Config != nil {
			s.receivedConfig = req.Config
			continue
		}
		if len(req.AudioContent) > 0 {
			s.audioChunks++
		}
	}

	for _, resp := range s.responses {
		if err := stream.SendMsg(&resp); err != nil {
			return err
		}
	}
	return s.streamErr
}

var testServiceDesc = grpc.ServiceDesc{
	ServiceName: "asr.v1.Recognizer",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamingRecognize",
			ClientStreams: true,
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(*testASRServer).handle(srv, stream)
			},
		},
	},
}

func startTestServer(t *testing.T, srv *testASRServer) (string, func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	grpcServer.RegisterService(&testServiceDesc, srv)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	shutdown := func() {
		grpcServer.Stop()
		_ = lis.Close()
	}

	return lis.Addr().String(), shutdown
}

func TestDialStreamEndToEndWithDebugSinkAndSpeechContexts(t *testing.T) {
	server := &testASRServer{
		responses: []streamingResponse{
			{Results: []result{{IsFinal: false, Alternatives: []alternative{{Transcript: "hello wor"}}}}},
			{Results: []result{{IsFinal: true, Alternatives: []alternative{{Transcript: "hello world"}}}}},
			{Results: []result{{IsFinal: false, Alternatives: []alternative{{Transcript: "second phrase"}}}}},
		},
	}
	endpoint, shutdown := startTestServer(t, server)
	defer shutdown()

	var debug bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := DialStream(ctx, StreamConfig{
		Endpoint:             endpoint,
		LanguageCode:         "en-US",
		Model:                "parakeet",
		AutomaticPunctuation: true,
		SpeechPhrases: []SpeechPhrase{
			{Phrase: "  dictation  ", Boost: 12},
			{Phrase: "", Boost: 20},
		},
		DialTimeout:           2 * time.Second,
		DebugResponseSinkJSON: &debug,
	})
	require.NoError(t, err)

	require.NoError(t, stream.SendAudio([]byte{1, 2, 3, 4}))
	require.NoError(t, stream.SendAudio(nil)) // no-op path

	segments, latency, err := stream.CloseAndCollect(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"hello world", "second phrase"}, segments)
	require.GreaterOrEqual(t, latency, time.Duration(0))

	require.NotNil(t, server.receivedConfig)
	require.Equal(t, 16000, server.receivedConfig.SampleRateHertz)
	require.Equal(t, 1, server.receivedConfig.AudioChannelCount)
	require.Equal(t, "en-US", server.receivedConfig.LanguageCode)
	require.Equal(t, "parakeet", server.receivedConfig.Model)
	require.True(t, server.receivedConfig.AutomaticPunctuation)
	require.Len(t, server.receivedConfig.SpeechContexts, 1)
	require.Equal(t, "dictation", server.receivedConfig.SpeechContexts[0].Phrase)
	require.Equal(t, 1, server.audioChunks)

	require.Contains(t, debug.String(), "results")
}

func TestDialStreamEmptyEndpoint(t *testing.T) {
	_, err := DialStream(context.Background(), StreamConfig{Endpoint: "   "})
	require.Error(t, err)
	require.Contains(t, err.Error(), "endpoint is empty")
}

func TestDialStreamReadinessTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := DialStream(ctx, StreamConfig{
		Endpoint:    "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "readiness")
}

func TestCloseAndCollectReturnsServerStreamError(t *testing.T) {
	server := &testASRServer{streamErr: status.Error(codes.Internal, "boom")}
	endpoint, shutdown := startTestServer(t, server)
	defer shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := DialStream(ctx, StreamConfig{Endpoint: endpoint, DialTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, stream.SendAudio([]byte{1, 2}))

	_, _, err = stream.CloseAndCollect(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestSendAudioAfterCloseReturnsError(t *testing.T) {
	server := &testASRServer{}
	endpoint, shutdown := startTestServer(t, server)
	defer shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := DialStream(ctx, StreamConfig{Endpoint: endpoint, DialTimeout: time.Second})
	require.NoError(t, err)

	_, _, err = stream.CloseAndCollect(ctx)
	require.NoError(t, err)

	err = stream.SendAudio([]byte{9, 9, 9})
	require.Error(t, err)
	require.Contains(t, err.Error(), "closed")
}
