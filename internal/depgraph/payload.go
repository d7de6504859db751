package depgraph

import (
	"fmt"
	"strings"

	"github.com/roach88/swimport/internal/ir"
)

// PayloadError lists every problem found in a request payload.
type PayloadError struct {
	Kind     string
	Problems []string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %s", e.Kind, strings.Join(e.Problems, "; "))
}

// ValidatePayload checks a request payload for a record targeting kind.
//
// The payload must carry one object section per kind in the closure of kind.
// A section either names an already-known entity with a positive "id" or
// carries every non-reference natural-key field. Field values must match the
// declared types. Sections for kinds outside the closure are tolerated when
// the kind exists, so a row-level document can be reused for several targets.
func (g *Graph) ValidatePayload(kind string, payload ir.Object) error {
	if _, ok := g.kinds[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var problems []string
	for _, name := range payload.SortedKeys() {
		if _, known := g.kinds[name]; !known {
			problems = append(problems, fmt.Sprintf("unknown section %q", name))
			continue
		}
		if _, ok := payload.Section(name); !ok {
			problems = append(problems, fmt.Sprintf("section %q must be an object", name))
		}
	}

	for _, name := range g.Closure(kind) {
		sec, ok := payload.Section(name)
		if !ok {
			if _, present := payload[name]; !present {
				problems = append(problems, fmt.Sprintf("missing section %q", name))
			}
			continue
		}
		problems = append(problems, g.checkSection(g.kinds[name], sec)...)
	}

	if len(problems) > 0 {
		return &PayloadError{Kind: kind, Problems: problems}
	}
	return nil
}

func (g *Graph) checkSection(spec ir.KindSpec, sec ir.Object) []string {
	var problems []string
	for _, field := range sec.SortedKeys() {
		v := sec[field]
		if field == ir.IDField {
			if id, ok := v.(ir.Int); !ok || id <= 0 {
				problems = append(problems, fmt.Sprintf("%s.id must be a positive integer", spec.Name))
			}
			continue
		}
		typ, declared := spec.Fields[field]
		if !declared {
			problems = append(problems, fmt.Sprintf("%s.%s is not a declared field", spec.Name, field))
			continue
		}
		if !matchesType(v, typ) {
			problems = append(problems, fmt.Sprintf("%s.%s must be %s", spec.Name, field, typ))
		}
	}

	if _, hasID := sec[ir.IDField]; hasID {
		return problems
	}
	for _, field := range spec.Key {
		if _, ok := RefKind(spec, field); ok {
			continue
		}
		v, ok := sec[field]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s.%s is required by the natural key", spec.Name, field))
			continue
		}
		if s, ok := v.(ir.String); ok && strings.TrimSpace(string(s)) == "" {
			problems = append(problems, fmt.Sprintf("%s.%s must not be blank", spec.Name, field))
		}
	}
	return problems
}

func matchesType(v ir.Value, typ string) bool {
	switch typ {
	case ir.FieldString:
		_, ok := v.(ir.String)
		return ok
	case ir.FieldInt:
		_, ok := v.(ir.Int)
		return ok
	case ir.FieldBool:
		_, ok := v.(ir.Bool)
		return ok
	default:
		return false
	}
}
