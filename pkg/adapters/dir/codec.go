package dir

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/silo/pkg/core"
)

// Format selects the on-disk encoding of documents.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a format name (or file extension) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", &core.InvalidArgumentError{Arg: "format", Reason: fmt.Sprintf("unsupported format %q", s)}
}

// Ext returns the file extension, dot included.
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

func (f Format) marshal(doc core.Document) ([]byte, error) {
	if f == FormatYAML {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// unmarshal decodes data and normalises it into JSON value space, so every
// format yields float64 numbers and string keys.
func (f Format) unmarshal(data []byte) (core.Document, error) {
	var doc core.Document
	if f == FormatYAML {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return normalize(doc)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func normalize(doc core.Document) (core.Document, error) {
	if doc == nil {
		return core.Document{}, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("document is not serializable: %w", err)
	}
	var out core.Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeName turns an identity into a file stem.
// String identities are path-escaped; any other identity is stored as
// "~" followed by its escaped JSON encoding.
func encodeName(id any) (string, error) {
	if s, ok := id.(string); ok {
		if s == "" {
			return "", &core.InvalidArgumentError{Arg: core.IDField, Reason: "empty identity"}
		}
		name := url.PathEscape(s)
		switch name[0] {
		case '~':
			name = "%7E" + name[1:]
		case '.':
			name = "%2E" + name[1:]
		}
		return name, nil
	}
	b, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("identity is not serializable: %w", err)
	}
	return "~" + url.PathEscape(string(b)), nil
}

// decodeName reverses encodeName. The returned string is the identity as
// reported in change notifications.
func decodeName(stem string) (string, error) {
	if strings.HasPrefix(stem, "~") {
		return url.PathUnescape(stem[1:])
	}
	return url.PathUnescape(stem)
}
