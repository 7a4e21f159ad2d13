package zone

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Metadata is the optional free-form object attached to zones, members,
// accounts and transactions. It wraps a protobuf Struct so values keep the
// same JSON shape the server uses. The zero value is "no metadata".
type Metadata struct {
	s *structpb.Struct
}

// NewMetadata builds metadata from plain Go values.
func NewMetadata(fields map[string]any) (Metadata, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata: %w", err)
	}
	return Metadata{s: s}, nil
}

// MustMetadata is NewMetadata for literals known to be valid.
func MustMetadata(fields map[string]any) Metadata {
	m, err := NewMetadata(fields)
	if err != nil {
		panic(err)
	}
	return m
}

// IsZero reports whether no metadata is present.
func (m Metadata) IsZero() bool {
	return m.s == nil
}

// Struct exposes the underlying protobuf message. Callers must not mutate it.
func (m Metadata) Struct() *structpb.Struct {
	return m.s
}

// Bool returns the boolean stored under key, false when absent or not a bool.
func (m Metadata) Bool(key string) bool {
	return m.s.GetFields()[key].GetBoolValue()
}

// String returns the string stored under key.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m.s.GetFields()[key]
	if !ok {
		return "", false
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return sv.StringValue, true
}

// With returns a copy of m with key set to value. m is left untouched.
func (m Metadata) With(key string, value any) (Metadata, error) {
	v, err := structpb.NewValue(value)
	if err != nil {
		return m, fmt.Errorf("invalid metadata value for %q: %w", key, err)
	}
	var s *structpb.Struct
	if m.s == nil {
		s = &structpb.Struct{Fields: make(map[string]*structpb.Value, 1)}
	} else {
		s = proto.Clone(m.s).(*structpb.Struct)
		if s.Fields == nil {
			s.Fields = make(map[string]*structpb.Value, 1)
		}
	}
	s.Fields[key] = v
	return Metadata{s: s}, nil
}

// Equal compares the contents of two metadata values.
func (m Metadata) Equal(o Metadata) bool {
	if m.s == nil || o.s == nil {
		return m.s == nil && o.s == nil
	}
	return proto.Equal(m.s, o.s)
}

// MarshalJSON encodes the metadata as a plain JSON object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.s == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(m.s)
}

// UnmarshalJSON decodes a plain JSON object.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		m.s = nil
		return nil
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}
	m.s = s
	return nil
}
