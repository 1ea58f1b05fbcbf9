package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a pipeline file, decoding YAML for .yaml/.yml and JSON
// otherwise, applies environment overrides and defaults.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = DecodeYAML(b, &p)
	default:
		err = DecodeJSON(b, &p)
	}
	if err != nil {
		return Pipeline{}, err
	}
	p.ApplyEnv(os.Getenv)
	p.ApplyDefaults()
	return p, nil
}

// DecodeJSON decodes a JSON pipeline, rejecting unknown top-level fields.
func DecodeJSON(b []byte, p *Pipeline) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// DecodeYAML decodes a YAML pipeline.
func DecodeYAML(b []byte, p *Pipeline) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv fills the API url and token from the environment when they are
// not set in the file.
func (p *Pipeline) ApplyEnv(getenv func(string) string) {
	if p.Source.REDCap.URL == "" {
		p.Source.REDCap.URL = getenv(DefaultURLEnv)
	}
	if p.Source.REDCap.Token == "" {
		name := p.Source.REDCap.TokenEnv
		if name == "" {
			name = DefaultTokenEnv
		}
		p.Source.REDCap.Token = getenv(name)
	}
}
