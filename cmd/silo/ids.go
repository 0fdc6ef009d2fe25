package main

import (
	"encoding/json"
	"fmt"
)

var jsonID bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonID, "json-id", false, "Decode identity arguments as JSON (e.g. 42 or {\"k\":1})")
}

// parseID returns arg as a string identity, or its JSON decoding with --json-id.
func parseID(arg string) (any, error) {
	if !jsonID {
		return arg, nil
	}
	var id any
	if err := json.Unmarshal([]byte(arg), &id); err != nil {
		return nil, fmt.Errorf("identity %q is not valid JSON: %w", arg, err)
	}
	return id, nil
}
