// Package normalize canonicalises field values before they are encrypted or
// fed to the blind-index token generator. Write path and search path both go
// through it, so two inputs produce the same tokens exactly when this package
// says they are the same value.
package normalize

import "strings"

// Func is a single canonicalisation step.
type Func func(string) string

// Pipeline applies trim, an optional case fold and an optional custom fold,
// in that order.
type Pipeline struct {
	Trim      bool
	Lowercase bool
	Custom    Func
}

// Apply runs the pipeline over value.
func (p Pipeline) Apply(value string) string {
	if p.Trim {
		value = strings.TrimSpace(value)
	}
	if p.Lowercase {
		value = strings.ToLower(value)
	}
	if p.Custom != nil {
		value = p.Custom(value)
	}
	return value
}

// Named pipelines for the field kinds the patient schema uses. Names are
// referenced from `phi` struct tags (norm=email etc.).
var pipelines = map[string]Pipeline{
	// Names keep their case for display; only surrounding whitespace goes.
	"name": {Trim: true},
	// Email comparison is case-insensitive in practice.
	"email": {Trim: true, Lowercase: true},
	// Phone numbers keep their punctuation; the tokenizer owns its own
	// alphabet and strips it there.
	"phone": {Trim: true},
	// Default for tagged fields with no norm modifier.
	"": {Trim: true},
}

// ForKind returns the pipeline registered under kind. Unknown kinds fall back
// to the default trim-only pipeline, so a typo in a tag degrades to the
// safest behaviour instead of panicking deep in a save path.
func ForKind(kind string) Pipeline {
	if p, ok := pipelines[kind]; ok {
		return p
	}
	return pipelines[""]
}

// Query is the canonicalisation applied to free-text search input: trim and
// lowercase only, never field-specific folds.
func Query(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
