// Package rpccodec lets Connect handlers exchange plain Go structs as JSON.
package rpccodec

import (
	"fmt"

	"connectrpc.com/connect"
	json "github.com/goccy/go-json"
)

// Name replaces Connect's protobuf-only JSON codec.
const Name = "json"

// JSON is a connect.Codec backed by goccy/go-json
type JSON struct{}

var _ connect.Codec = JSON{}

func (JSON) Name() string { return Name }

func (JSON) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return data, nil
}

func (JSON) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}

// WithJSON registers the codec on a handler or client.
func WithJSON() connect.Option {
	return connect.WithCodec(JSON{})
}
