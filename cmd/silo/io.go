package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/silo/pkg/core"
)

// readDocument decodes a document from "-" (stdin), a .json/.yaml/.yml
// file, or an inline JSON/YAML literal.
func readDocument(arg string) (core.Document, error) {
	var data []byte
	var err error
	switch {
	case arg == "-":
		data, err = io.ReadAll(os.Stdin)
	case isFile(arg):
		data, err = os.ReadFile(arg)
	default:
		data = []byte(arg)
	}
	if err != nil {
		return nil, err
	}

	// YAML is a superset of JSON, so one decoder serves both
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("document is empty")
	}
	return toJSONSpace(raw)
}

func isFile(arg string) bool {
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".json", ".yaml", ".yml":
	default:
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}

func toJSONSpace(raw map[string]any) (core.Document, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var doc core.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// printValue writes v as indented JSON, or YAML with --yaml.
func printValue(w io.Writer, v any) error {
	if yamlOutput {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
