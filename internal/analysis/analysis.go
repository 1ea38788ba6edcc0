// Package analysis decodes the loosely-typed job analysis payloads produced
// by AI generation. Each payload exists in two historical shapes (V1 and
// V2); decoding picks the shape from a small set of marker fields,
// validates it against that shape's JSON Schema and returns a definite
// variant.
package analysis

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Version identifies a payload shape.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

func (v Version) String() string {
	return fmt.Sprintf("v%d", int(v))
}

var (
	// ErrEmptyPayload is returned for absent, null, or whitespace-only input.
	ErrEmptyPayload = errors.New("analysis: empty payload")
	// ErrUnknownShape is returned when no marker field identifies a version.
	ErrUnknownShape = errors.New("analysis: payload matches no known shape")
	// ErrMalformed is returned when the input is not valid JSON.
	ErrMalformed = errors.New("analysis: malformed JSON")
)

// SchemaError reports a payload that carried a version's markers but did
// not conform to that version's schema.
type SchemaError struct {
	Kind    string
	Version Version
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("analysis: %s %s payload failed validation: %v", e.Kind, e.Version, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://jobcoach.local/schemas/"

var compiledSchemas = sync.OnceValues(compileSchemas)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if err := c.AddResource(schemaBaseURL+name+".schema.json", bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("schema %s load failed: %w", name, err)
		}
		names = append(names, name)
	}

	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		compiled, err := c.Compile(schemaBaseURL + name + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("schema %s compile failed: %w", name, err)
		}
		out[name] = compiled
	}
	return out, nil
}

// validate checks doc against the schema for kind at version v.
func validate(kind string, v Version, doc any) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[fmt.Sprintf("%s.%s", kind, v)]
	if !ok {
		return fmt.Errorf("analysis: no schema for %s %s", kind, v)
	}
	if err := schema.Validate(doc); err != nil {
		return &SchemaError{Kind: kind, Version: v, Err: err}
	}
	return nil
}

// parse decodes raw into a generic JSON document.
func parse(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyPayload
	}
	var doc any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return doc, nil
}

// marker describes which top-level fields identify a version.
type marker struct {
	version Version
	fields  []string
}

// sniff returns the first version whose markers appear in obj. Markers are
// checked in order, so later shapes go first.
func sniff(obj map[string]any, markers []marker) (Version, bool) {
	for _, m := range markers {
		for _, f := range m.fields {
			if _, ok := obj[f]; ok {
				return m.version, true
			}
		}
	}
	return 0, false
}

// decodeVariant sniffs, validates and unmarshals doc into the target
// chosen by pick.
func decodeVariant(kind string, doc any, markers []marker, pick func(Version) any) (Version, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: %s payload is %T, not an object", ErrUnknownShape, kind, doc)
	}
	if len(obj) == 0 {
		return 0, ErrEmptyPayload
	}

	v, ok := sniff(obj, markers)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownShape, kind)
	}
	if err := validate(kind, v, obj); err != nil {
		return 0, err
	}

	// Re-encode the validated document into the typed variant.
	data, err := json.Marshal(obj)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(data, pick(v)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// dedupe keeps the first occurrence of each value, comparing
// case-insensitively, and drops blanks.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
