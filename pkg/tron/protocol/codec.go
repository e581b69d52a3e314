// Copyright 2025 Certen Protocol

package protocol

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// RawMessage is the gRPC payload type used for every Wallet-service call:
// since this repo hand-rolls field-level encoding instead of vendoring
// core/Tron.proto (see this package's doc comment), the grpc layer itself
// must carry plain bytes rather than a generated proto.Message. rawCodec
// below teaches grpc's codec registry how to do that.
type RawMessage struct{ B []byte }

// rawCodec implements google.golang.org/grpc/encoding.Codec by passing
// RawMessage bytes straight through, skipping proto marshal/unmarshal
// entirely. Registered under the "raw" content-subtype; callers select it
// per-RPC with grpc.CallContentSubtype(protocol.CodecName).
type rawCodec struct{}

const CodecName = "raw"

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(*RawMessage)
	if !ok {
		return nil, fmt.Errorf("protocol: raw codec: %T is not *RawMessage", v)
	}
	return m.B, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(*RawMessage)
	if !ok {
		return fmt.Errorf("protocol: raw codec: %T is not *RawMessage", v)
	}
	m.B = data
	return nil
}

func (rawCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}
