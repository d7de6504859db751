package compiler

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/swimport/internal/ir"
)

// CompileSource compiles a CUE document declaring entity kinds under the
// top-level "kind" struct:
//
//	kind: swimmer: {
//		depth: 1
//		key: ["complete_name", "year_of_birth"]
//		fields: {complete_name: string, year_of_birth: int}
//	}
//
// Kinds are returned sorted by name. Cross-kind consistency (unknown
// prerequisites, cycles, depth ranks) is checked by the depgraph package.
func CompileSource(src []byte, filename string) ([]ir.KindSpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileGraph(v)
}

// CompileFile reads and compiles a CUE graph declaration from disk.
func CompileFile(path string) ([]ir.KindSpec, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	return CompileSource(src, path)
}

// CompileGraph compiles every kind under the "kind" field of v.
func CompileGraph(v cue.Value) ([]ir.KindSpec, error) {
	kindsVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindsVal.Exists() {
		return nil, &CompileError{
			Field:   "kind",
			Message: "no kinds declared",
			Pos:     v.Pos(),
		}
	}

	iter, err := kindsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []ir.KindSpec
	for iter.Next() {
		spec, err := CompileKind(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// CompileKind parses a single kind struct into a KindSpec.
// The kind name is taken from the struct label.
//
// Depth 0 in the result means the declaration left the depth to be derived
// from the prerequisites.
func CompileKind(v cue.Value) (*ir.KindSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.KindSpec{
		Creatable: true,
		Fields:    make(map[string]string),
	}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}
	if spec.Name == "" {
		return nil, &CompileError{Field: "kind", Message: "kind name is required", Pos: v.Pos()}
	}

	if depthVal := v.LookupPath(cue.ParsePath("depth")); depthVal.Exists() {
		depth, err := depthVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if depth < 1 {
			return nil, &CompileError{
				Field:   spec.Name + ".depth",
				Message: fmt.Sprintf("depth must be >= 1, got %d", depth),
				Pos:     depthVal.Pos(),
			}
		}
		spec.Depth = int(depth)
	}

	if creatableVal := v.LookupPath(cue.ParsePath("creatable")); creatableVal.Exists() {
		creatable, err := creatableVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Creatable = creatable
	}

	var err error
	if spec.Requires, err = parseStringList(v, "requires"); err != nil {
		return nil, err
	}
	if spec.Key, err = parseStringList(v, "key"); err != nil {
		return nil, err
	}
	if len(spec.Key) == 0 {
		return nil, &CompileError{
			Field:   spec.Name + ".key",
			Message: "a natural key with at least one field is required",
			Pos:     v.Pos(),
		}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		fieldIter, err := fieldsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for fieldIter.Next() {
			name := fieldIter.Label()
			if name == ir.IDField {
				return nil, &CompileError{
					Field:   spec.Name + ".fields.id",
					Message: "id is reserved for already-known entity IDs",
					Pos:     fieldIter.Value().Pos(),
				}
			}
			typeName, err := extractTypeName(fieldIter.Value())
			if err != nil {
				return nil, err
			}
			spec.Fields[name] = typeName
		}
	}

	return spec, nil
}

// parseStringList reads an optional list of strings.
func parseStringList(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// extractTypeName converts a CUE type to a field type name.
// Floats are rejected: measures travel as strings or integers.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.FieldString, nil
	case cue.IntKind:
		return ir.FieldInt, nil
	case cue.BoolKind:
		return ir.FieldBool, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int or string instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
