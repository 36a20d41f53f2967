// Package search builds the blind-index token sets that make encrypted
// patient fields findable. The write path (Builder.TokensForPatient) and the
// read path (Builder.QueryTokens) derive tokens from the same generator and
// the same canonicalisation, so a query matches a record exactly when the
// query's tokens are a subset of the record's stored tokens.
package search

import (
	"log/slog"
	"sort"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/internal/blindindex"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/internal/normalize"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/records"
)

// piiField names one searchable patient field, its normalisation kind and
// how to read it. The list is fixed: adding or removing a field changes what
// existing records can be found by until they are reindexed.
type piiField struct {
	name string
	norm string
	get  func(*records.Patient) string
}

var piiFields = []piiField{
	{"first_name", "name", func(p *records.Patient) string { return p.FirstName }},
	{"surname", "name", func(p *records.Patient) string { return p.Surname }},
	{"preferred_name", "name", func(p *records.Patient) string { return p.PreferredName }},
	{"email", "email", func(p *records.Patient) string { return p.Email }},
	{"phone", "phone", func(p *records.Patient) string { return p.Phone }},
	{"primary_contact_name", "name", func(p *records.Patient) string { return p.PrimaryContactName }},
	{"primary_contact_email", "email", func(p *records.Patient) string { return p.PrimaryContactEmail }},
	{"primary_contact_phone", "phone", func(p *records.Patient) string { return p.PrimaryContactPhone }},
	{"secondary_phone", "phone", func(p *records.Patient) string { return p.SecondaryPhone }},
}

// Builder derives search tokens for records and queries.
type Builder struct {
	codec  *phi.Codec
	gen    *blindindex.Generator
	logger *slog.Logger
}

// NewBuilder wires a Builder over the codec and the keyring's index key.
// cfg carries the prefix bounds; logger may be nil.
func NewBuilder(codec *phi.Codec, keyring *phi.Keyring, cfg phi.IndexConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		codec:  codec,
		gen:    blindindex.New(keyring.IndexKey(), cfg.MinPrefix, cfg.MaxPrefix),
		logger: logger,
	}
}

// TokensForPatient walks the fixed PII field list, reads each value through
// the getter (decrypting envelopes as needed), normalises it per field and
// returns the union of the per-field token sets, sorted and deduplicated.
//
// A field that fails to decrypt is logged and skipped; the remaining fields
// still contribute, so one corrupt value cannot empty a record's index.
func (b *Builder) TokensForPatient(p *records.Patient) []string {
	seen := make(map[string]struct{})
	for _, field := range piiFields {
		value := field.get(p)
		if value == "" {
			continue
		}
		if b.codec.IsEnvelope(value) {
			plain, err := b.codec.DecryptString(value)
			if err != nil {
				b.logger.Warn("skipping unreadable field while building search tokens",
					slog.String("field", field.name),
					slog.Int("patient_id", p.PatientID),
					slog.String("error", err.Error()))
				continue
			}
			value = plain
		}
		value = normalize.ForKind(field.norm).Apply(value)
		for _, tok := range b.gen.TokensFor(value) {
			seen[tok] = struct{}{}
		}
	}

	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// QueryTokens turns a free-text query into the token set that must all be
// present on a matching record. Only trim, lowercase and tokenisation apply;
// no field-specific folds. An empty or all-separator query yields an empty
// set, which callers must short-circuit to an empty result.
func (b *Builder) QueryTokens(query string) []string {
	return b.gen.TokensFor(normalize.Query(query))
}

// Matches reports whether queryTokens is a subset of recordTokens. An empty
// query matches nothing.
func Matches(recordTokens, queryTokens []string) bool {
	if len(queryTokens) == 0 {
		return false
	}
	have := make(map[string]struct{}, len(recordTokens))
	for _, tok := range recordTokens {
		have[tok] = struct{}{}
	}
	for _, tok := range queryTokens {
		if _, ok := have[tok]; !ok {
			return false
		}
	}
	return true
}
