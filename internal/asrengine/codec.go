package asrengine

import "encoding/json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec. It lets this
// package drive a bidirectional-streaming gRPC method without a
// protoc-generated client: messages are framed exactly like protobuf gRPC
// traffic, just with a JSON payload instead of a generated .pb.go type.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

const codecName = "asrjson"
