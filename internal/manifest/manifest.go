// Package manifest defines the bundle manifest type and its loader.
// The manifest describes where a run's flows/profiles/plugins come
// from and lists the env files to merge into the run's environment,
// following the same typed-decode-plus-validate shape pkg/spec uses
// for flow and profile documents.
package manifest

import (
	"bytes"
	"fmt"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SourceType identifies where a bundle's files are fetched from.
type SourceType string

const (
	SourceLocal   SourceType = "local"
	SourceGit     SourceType = "git"
	SourceArchive SourceType = "archive"
)

// BundleSource locates the bundle's files.
type BundleSource struct {
	Type     SourceType `yaml:"type" json:"type"`
	Location string     `yaml:"location" json:"location"`
}

// BundleLayout names, relative to the bundle root, the subpaths
// holding flows, profiles, and plugins.
type BundleLayout struct {
	Flows    string `yaml:"flows" json:"flows"`
	Profiles string `yaml:"profiles" json:"profiles"`
	Plugins  string `yaml:"plugins" json:"plugins"`
}

// Bundle groups a manifest's source and layout.
type Bundle struct {
	Source BundleSource `yaml:"source" json:"source"`
	Layout BundleLayout `yaml:"layout" json:"layout"`
}

// Paths carries mode-specific filesystem paths; Plugins is ignored in
// enterprise mode, where plugins resolve from the bundle layout
// instead.
type Paths struct {
	Plugins []string `yaml:"plugins" json:"plugins"`
}

// Manifest is the bundle manifest document: a synchronized,
// fingerprinted collection of flows/profiles/plugins/env files used to
// reproduce a run.
type Manifest struct {
	Version    int                    `yaml:"version" json:"version"`
	Mode       afconfig.Mode          `yaml:"mode" json:"mode"`
	Bundle     Bundle                 `yaml:"bundle" json:"bundle"`
	Paths      Paths                  `yaml:"paths" json:"paths"`
	ZipDrivers []string               `yaml:"zip_drivers" json:"zip_drivers"`
	EnvFiles   []afconfig.EnvFileSpec `yaml:"env_files" json:"env_files"`
}

// Parse decodes a manifest document from YAML, rejecting unknown
// top-level keys, and validates it.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, &aferrors.SpecError{Path: "$", Message: fmt.Sprintf("decoding manifest YAML: %v", err)}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest's required fields and enumerations.
func (m *Manifest) Validate() error {
	if m.Version != 1 {
		return &aferrors.SpecError{Path: "$.version", Message: fmt.Sprintf("unsupported manifest version %d", m.Version)}
	}
	if m.Mode != afconfig.ModeInternalFast && m.Mode != afconfig.ModeEnterprise {
		return &aferrors.SpecError{Path: "$.mode", Message: fmt.Sprintf("unknown mode %q", m.Mode)}
	}
	switch m.Bundle.Source.Type {
	case SourceLocal, SourceGit, SourceArchive:
	default:
		return &aferrors.SpecError{Path: "$.bundle.source.type", Message: fmt.Sprintf("unknown bundle source type %q", m.Bundle.Source.Type)}
	}
	if m.Bundle.Source.Location == "" {
		return &aferrors.SpecError{Path: "$.bundle.source.location", Message: "bundle source location must not be empty"}
	}
	for i, ef := range m.EnvFiles {
		switch ef.Type {
		case "dotenv", "json", "dir":
		default:
			return &aferrors.SpecError{Path: fmt.Sprintf("$.env_files[%d].type", i), Message: fmt.Sprintf("unknown env file type %q", ef.Type)}
		}
	}
	return nil
}

// AllowsDriver reports whether driver is permitted by ZipDrivers. In
// internal_fast mode every driver is allowed; enterprise mode enforces
// the allowlist.
func (m *Manifest) AllowsDriver(driver string) bool {
	if m.Mode != afconfig.ModeEnterprise {
		return true
	}
	for _, d := range m.ZipDrivers {
		if d == driver {
			return true
		}
	}
	return false
}
