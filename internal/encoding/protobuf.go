package encoding

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/synheart/synheart-collector/internal/models"
)

// ProtobufEncoder encodes updates as a protobuf Struct, mirroring the JSON
// shape field for field. Consumers decode with any protobuf runtime without
// needing a schema compiled in.
type ProtobufEncoder struct{}

func NewProtobufEncoder() *ProtobufEncoder {
	return &ProtobufEncoder{}
}

func (e *ProtobufEncoder) Encode(update models.MetricsUpdate) ([]byte, error) {
	pb, err := updateToStruct(update)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(pb)
}

func (e *ProtobufEncoder) ContentType() string {
	return "application/x-protobuf"
}

func updateToStruct(update models.MetricsUpdate) (*structpb.Struct, error) {
	// Round-trip through the JSON tags so both encodings expose identical
	// field names.
	raw, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("encoding: marshal update: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encoding: remap update: %w", err)
	}
	pb, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding: build struct: %w", err)
	}
	return pb, nil
}
