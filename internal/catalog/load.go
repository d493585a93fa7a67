package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Load reads a catalog file, choosing the decoder by extension
// (.cue, .yaml or .yml), and validates it.
func Load(path string) (*Data, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var d *Data
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		d, err = DecodeCUE(path, src)
	case ".yaml", ".yml":
		d, err = DecodeYAML(src)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return d, nil
}

// DecodeYAML parses a YAML catalog, rejecting unknown fields.
func DecodeYAML(src []byte) (*Data, error) {
	var d Data
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	return &d, nil
}

// DecodeCUE unifies a CUE catalog with the embedded #Catalog schema and
// decodes the concrete result.
func DecodeCUE(filename string, src []byte) (*Data, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("catalog_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var d Data
	if err := unified.Decode(&d); err != nil {
		return nil, formatCUEError(err)
	}
	return &d, nil
}

// formatCUEError flattens CUE's multi-error into one message with positions.
func formatCUEError(err error) error {
	return fmt.Errorf("catalog CUE: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
}
