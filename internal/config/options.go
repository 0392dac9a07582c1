package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/df07/go-progressive-bridge/pkg/session"
)

// LoadOptions reads a JSON or YAML render options file, chosen by extension.
// Unknown keys are rejected.
func LoadOptions(path string) (session.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Options{}, fmt.Errorf("failed to read options file: %w", err)
	}
	return DecodeOptions(data, filepath.Ext(path))
}

// DecodeOptions decodes and validates options; ext selects the format
func DecodeOptions(data []byte, ext string) (session.Options, error) {
	var opts session.Options

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&opts); err != nil {
			return session.Options{}, fmt.Errorf("failed to decode yaml options: %w", err)
		}
	case ".json", "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return session.Options{}, fmt.Errorf("failed to decode json options: %w", err)
		}
	default:
		return session.Options{}, fmt.Errorf("unsupported options format %q", ext)
	}

	if err := opts.Validate(); err != nil {
		return session.Options{}, err
	}
	return opts, nil
}
