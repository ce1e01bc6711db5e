package generator

import (
	"bytes"
	"encoding/json"
	"time"
)

// Metadata is the fixed header of every document.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	FileID      string    `json:"file_id"`
	Version     string    `json:"version"`
	BatchID     string    `json:"batch_id,omitempty"`
}

// Field is one entry of the data map. Value holds compact JSON.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Fields is the data map of a document in insertion order.
type Fields []Field

// MarshalJSON encodes the fields as a JSON object, preserving order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(field.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Document is one generated payload.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Data     Fields   `json:"data"`

	size int64
}

// Size returns the length of the compact JSON encoding of the document.
func (d *Document) Size() int64 {
	return d.size
}

// Marshal encodes the document, two-space indented when pretty is set.
func (d *Document) Marshal(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(d, "", "  ")
	}
	return json.Marshal(d)
}
