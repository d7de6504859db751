package solver

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/swimport/internal/ir"
)

// NormalizeString maps equivalent spellings of a natural-key component to
// one form: Unicode case folding, NFC composition, trimmed and collapsed
// whitespace. "  Rossi   MARIO" and "rossi mario" normalize alike.
func NormalizeString(s string) string {
	// A Caser keeps state between calls, so each call gets its own.
	s = cases.Fold().String(s)
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeKey returns a copy of key with every string component normalized.
// Integer and boolean components are kept as is.
func NormalizeKey(key ir.Object) ir.Object {
	out := make(ir.Object, len(key))
	for k, v := range key {
		if s, ok := v.(ir.String); ok {
			out[k] = ir.String(NormalizeString(string(s)))
			continue
		}
		out[k] = v
	}
	return out
}
