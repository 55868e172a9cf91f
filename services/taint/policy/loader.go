// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrMalformedPatternFile is returned when the pattern file cannot be
// decoded, or decodes to a pattern that fails validation.
var ErrMalformedPatternFile = errors.New("malformed pattern file")

// Format selects the wire format of a pattern file.
type Format string

const (
	// FormatJSON is the contract format described in spec.md §6: an array
	// of {"vulnerability","sources","sanitizers","sinks","implicit"}
	// objects. This is the default.
	FormatJSON Format = "json"

	// FormatYAML is a supplementary format (SPEC_FULL.md §4), reusing the
	// teacher's PolicyEngineClassificationFile-style YAML convention.
	FormatYAML Format = "yaml"
)

// patternRecord is the wire shape of one pattern entry, matching spec.md §6
// field names exactly.
type patternRecord struct {
	Vulnerability string   `json:"vulnerability" yaml:"vulnerability" validate:"required"`
	Sources       []string `json:"sources" yaml:"sources"`
	Sanitizers    []string `json:"sanitizers" yaml:"sanitizers"`
	Sinks         []string `json:"sinks" yaml:"sinks" validate:"required,min=1"`
	Implicit      string   `json:"implicit" yaml:"implicit" validate:"omitempty,oneof=yes no"`
}

var validate = validator.New()

// Load decodes a pattern file in the given format and builds a Policy from
// it, validating each record (non-empty name, at least one sink, and an
// "implicit" field that is empty, "yes", or "no") before constructing the
// Pattern.
func Load(data []byte, format Format) (Policy, error) {
	var records []patternRecord

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &records); err != nil {
			return Policy{}, fmt.Errorf("%w: %v", ErrMalformedPatternFile, err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &records); err != nil {
			return Policy{}, fmt.Errorf("%w: %v", ErrMalformedPatternFile, err)
		}
	default:
		return Policy{}, fmt.Errorf("%w: unknown format %q", ErrMalformedPatternFile, format)
	}

	patterns := make([]Pattern, 0, len(records))
	for _, rec := range records {
		if err := validate.Struct(rec); err != nil {
			return Policy{}, fmt.Errorf("%w: pattern %q: %v", ErrMalformedPatternFile, rec.Vulnerability, err)
		}
		patterns = append(patterns, Pattern{
			Name:       rec.Vulnerability,
			Sources:    stringSet(rec.Sources),
			Sanitizers: stringSet(rec.Sanitizers),
			Sinks:      stringSet(rec.Sinks),
			Implicit:   rec.Implicit == "yes",
		})
	}

	return New(patterns), nil
}
