package spec

import (
	"bytes"
	"encoding/json"
	"fmt"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseFlowYAML decodes a flow document from YAML, rejecting unknown
// top-level keys.
func ParseFlowYAML(data []byte) (*FlowSpec, error) {
	var f FlowSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, &aferrors.SpecError{Path: "$", Message: fmt.Sprintf("decoding flow YAML: %v", err)}
	}
	return &f, nil
}

// ParseFlowJSON decodes a flow document from JSON, rejecting unknown
// top-level keys.
func ParseFlowJSON(data []byte) (*FlowSpec, error) {
	var f FlowSpec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, &aferrors.SpecError{Path: "$", Message: fmt.Sprintf("decoding flow JSON: %v", err)}
	}
	return &f, nil
}

// ParseFlow sniffs the document shape (JSON if it starts with '{' or '[',
// YAML otherwise) and parses accordingly. Both flow YAML and JSON are valid
// inputs per spec.
func ParseFlow(data []byte) (*FlowSpec, error) {
	if looksLikeJSON(data) {
		return ParseFlowJSON(data)
	}
	return ParseFlowYAML(data)
}

// ParseProfilesYAML decodes a profiles document: a top-level mapping from
// profile name to ProfileSpec.
func ParseProfilesYAML(data []byte) (map[string]ProfileSpec, error) {
	var profiles map[string]ProfileSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&profiles); err != nil {
		return nil, &aferrors.SpecError{Path: "$", Message: fmt.Sprintf("decoding profiles YAML: %v", err)}
	}
	return profiles, nil
}

// ParseProfilesJSON decodes a profiles document from JSON.
func ParseProfilesJSON(data []byte) (map[string]ProfileSpec, error) {
	var profiles map[string]ProfileSpec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&profiles); err != nil {
		return nil, &aferrors.SpecError{Path: "$", Message: fmt.Sprintf("decoding profiles JSON: %v", err)}
	}
	return profiles, nil
}

// ParseProfiles sniffs JSON vs YAML the same way ParseFlow does.
func ParseProfiles(data []byte) (map[string]ProfileSpec, error) {
	if looksLikeJSON(data) {
		return ParseProfilesJSON(data)
	}
	return ParseProfilesYAML(data)
}

func looksLikeJSON(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}
