package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"autoprofile/internal/profile"
)

// SchemaVersion is the only persisted document version this build reads.
const SchemaVersion = 2

var ErrSchemaVersion = errors.New("unsupported schema version")

// Document is the persisted form of the profile list. Profile order is the
// user-visible tie-break and is preserved.
type Document struct {
	Version  int               `json:"version" yaml:"version"`
	Profiles []profile.Profile `json:"profiles" yaml:"profiles"`
}

type Codec interface {
	Marshal(doc Document) ([]byte, error)
	Unmarshal(raw []byte, doc *Document) error
}

type YAMLCodec struct{}

func (YAMLCodec) Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (YAMLCodec) Unmarshal(raw []byte, doc *Document) error { return yaml.Unmarshal(raw, doc) }

type JSONCodec struct{}

func (JSONCodec) Marshal(doc Document) ([]byte, error) { return json.Marshal(doc) }

func (JSONCodec) Unmarshal(raw []byte, doc *Document) error { return json.Unmarshal(raw, doc) }

// Decode parses raw with c. Empty input is an empty list at the current
// version; any other version is rejected.
func Decode(c Codec, raw []byte) (Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Document{Version: SchemaVersion}, nil
	}
	var doc Document
	if err := c.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode profiles: %w", err)
	}
	if doc.Version != SchemaVersion {
		return Document{}, fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, doc.Version, SchemaVersion)
	}
	return doc, nil
}

// Encode writes profiles at the current schema version.
func Encode(c Codec, profiles []profile.Profile) ([]byte, error) {
	if profiles == nil {
		profiles = []profile.Profile{}
	}
	raw, err := c.Marshal(Document{Version: SchemaVersion, Profiles: profiles})
	if err != nil {
		return nil, fmt.Errorf("encode profiles: %w", err)
	}
	return raw, nil
}
