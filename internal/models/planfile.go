package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadPlanFile reads a plan from a .json, .yaml or .yml file.
func LoadPlanFile(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := decodeDocument(path, b, &plan); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return &plan, nil
}

// LoadOutputsFile reads a previous-outputs map (step id -> {url,text}).
func LoadOutputsFile(path string) (map[string]Output, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]Output{}
	if err := decodeDocument(path, b, &out); err != nil {
		return nil, fmt.Errorf("parse outputs %s: %w", path, err)
	}
	return out, nil
}

// decodeDocument routes YAML through the JSON decoders so Value keeps a single
// set of decoding rules.
func decodeDocument(path string, b []byte, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return err
		}
		j, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return json.Unmarshal(j, out)
	default:
		return json.Unmarshal(b, out)
	}
}
