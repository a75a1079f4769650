package thresholds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Save writes the set as YAML, or as JSON when path ends in .json.
func (s *Set) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = yaml.Marshal(s)
	}
	if err != nil {
		return fmt.Errorf("encode threshold set: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSet reads a threshold set written by Save.
func LoadSet(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Set
	if isJSON(path) {
		err = json.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("parse threshold set %s: %w", path, err)
	}

	if len(s.Policies) == 0 {
		return nil, fmt.Errorf("threshold set %s has no policies", path)
	}
	return &s, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
