package server

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/df07/go-progressive-bridge/pkg/renderer"
)

// OptionsSchema describes an options patch sent by a viewer
var OptionsSchema = fmt.Sprintf(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "Render options patch",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"samples": {"type": "integer", "minimum": 0},
		"renderIndex": {"type": "integer"},
		"bounces": {"type": "integer", "minimum": %d, "maximum": %d},
		"envMapIntensity": {"type": "number", "minimum": 0},
		"environmentVisible": {"type": "boolean"},
		"enableDenoise": {"type": "boolean"},
		"enableTemporalDenoise": {"type": "boolean"},
		"enableSpatialDenoise": {"type": "boolean"},
		"movingDownsampling": {"type": "boolean"},
		"renderWhenOffFocus": {"type": "boolean"},
		"toneMapping": {"type": "integer", "minimum": %d, "maximum": %d},
		"useTileRender": {"type": "boolean"},
		"denoiseColorBlendFactor": {"type": "number", "minimum": 0},
		"denoiseMomentBlendFactor": {"type": "number", "minimum": 0},
		"denoiseColorFactor": {"type": "number", "minimum": 0},
		"denoisePositionFactor": {"type": "number", "minimum": 0}
	}
}`, renderer.MinBounces, renderer.MaxBounces, int(renderer.NoToneMapping), int(renderer.ACESFilmicToneMapping))

var optionsSchemaLoader = gojsonschema.NewStringLoader(OptionsSchema)

// validatePatch checks a raw options patch against OptionsSchema
func validatePatch(data []byte) error {
	result, err := gojsonschema.Validate(optionsSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("invalid options: %s", strings.Join(errs, "; "))
	}
	return nil
}
