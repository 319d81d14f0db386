package etl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// DocField is one key/value pair of a Document.
type DocField struct {
	Key   string
	Value any
}

// Document is the ordered form of a record handed to a repository sink.
type Document []DocField

// NewDocument builds a Document from rec in schema field order. Every value
// must carry the kind the schema declares for its field.
func NewDocument(rec Record, schema *Schema) (Document, error) {
	if len(rec.Fields) != len(schema.Fields) {
		return nil, fmt.Errorf("record has %d fields, schema declares %d", len(rec.Fields), len(schema.Fields))
	}
	doc := make(Document, 0, len(schema.Fields))
	for i, spec := range schema.Fields {
		fv := rec.Fields[i]
		if fv.Name != spec.Name {
			return nil, fmt.Errorf("field %d is %q, schema declares %q", i+1, fv.Name, spec.Name)
		}
		if fv.Err != nil {
			return nil, fmt.Errorf("field %q did not decode: %w", fv.Name, fv.Err)
		}
		if fv.Value.Kind != spec.Type {
			return nil, fmt.Errorf("field %q holds %s, schema declares %s", fv.Name, fv.Value.Kind, spec.Type)
		}
		doc = append(doc, DocField{Key: spec.Name, Value: fv.Value.Interface()})
	}
	return doc, nil
}

// MarshalJSON writes d as a JSON object preserving key order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Message is the payload handed to a queue sink.
type Message struct {
	ID          string
	Line        int
	ContentType string
	Body        []byte
}

// ── Codecs ─────────────────────────────────────────────────

// Codec encodes a Document into a queue message body.
type Codec interface {
	ContentType() string
	Encode(doc Document) ([]byte, error)
}

// CodecFor returns the codec named by encoding ("json" or "msgpack").
func CodecFor(encoding string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown queue encoding %q (expected json or msgpack)", encoding)
}

// JSONCodec writes a compact JSON object.
type JSONCodec struct{}

func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Encode(doc Document) ([]byte, error) {
	return doc.MarshalJSON()
}

// MsgpackCodec writes a MessagePack map in document order.
type MsgpackCodec struct{}

func (MsgpackCodec) ContentType() string { return "application/msgpack" }

func (MsgpackCodec) Encode(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(len(doc)); err != nil {
		return nil, err
	}
	for _, f := range doc {
		if err := enc.EncodeString(f.Key); err != nil {
			return nil, err
		}
		if err := enc.Encode(f.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
	}
	return buf.Bytes(), nil
}
