package search_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/records"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/search"
)

type staticSource struct{ material phi.Material }

func (s staticSource) Resolve(ctx context.Context) (phi.Material, error) {
	return s.material, nil
}

type fixture struct {
	codec   *phi.Codec
	binder  *phi.FieldBinder
	builder *search.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kr, err := phi.NewKeyring(context.Background(), staticSource{material: phi.Material{
		Master: phi.KeyMaterial{Base64: base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))},
		Index:  phi.KeyMaterial{Base64: base64.StdEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210"))},
	}})
	require.NoError(t, err)
	codec, err := phi.NewCodec(kr)
	require.NoError(t, err)
	return &fixture{
		codec:   codec,
		binder:  phi.NewFieldBinder(codec, nil),
		builder: search.NewBuilder(codec, kr, phi.IndexConfig{MinPrefix: 2, MaxPrefix: 6}, nil),
	}
}

func meganBridges() *records.Patient {
	p := records.NewPatient(1001)
	p.FirstName = "Megan"
	p.Surname = "Bridges"
	p.Email = "Megan@Example.com"
	return p
}

func TestTokensForPatientFindsNormalisedSubstrings(t *testing.T) {
	f := newFixture(t)
	tokens := f.builder.TokensForPatient(meganBridges())
	require.NotEmpty(t, tokens)

	// Search semantics: every phrasing a clinician would type matches.
	for _, query := range []string{"megan", "Megan", "meg", "bridges", "brid", "example.com", "megan@example.com", "MEGAN@EXAMPLE.COM"} {
		assert.True(t, search.Matches(tokens, f.builder.QueryTokens(query)), "query %q should match", query)
	}
	for _, query := range []string{"alex", "bridgesx", "megan@other.org"} {
		assert.False(t, search.Matches(tokens, f.builder.QueryTokens(query)), "query %q should not match", query)
	}
}

func TestTokensForPatientReadsThroughEnvelopes(t *testing.T) {
	f := newFixture(t)

	plain := meganBridges()
	wantTokens := f.builder.TokensForPatient(plain)

	sealed := meganBridges()
	require.NoError(t, f.binder.EncryptRecord(sealed))
	require.True(t, f.codec.IsEnvelope(sealed.FirstName))

	// Tokens derived from the persisted view equal tokens derived from the
	// plaintext view: the getter decrypts before tokenising.
	assert.Equal(t, wantTokens, f.builder.TokensForPatient(sealed))
}

func TestTokensForPatientSkipsCorruptFieldOnly(t *testing.T) {
	f := newFixture(t)

	sealed := meganBridges()
	require.NoError(t, f.binder.EncryptRecord(sealed))
	sealed.Email = "ENC:v1:AAAAAAAAAAAAAAAA:AAAA:AAAAAAAAAAAAAAAAAAAAAA=="

	tokens := f.builder.TokensForPatient(sealed)

	// The corrupt email contributes nothing, the names still do.
	assert.True(t, search.Matches(tokens, f.builder.QueryTokens("megan")))
	assert.True(t, search.Matches(tokens, f.builder.QueryTokens("bridges")))
	assert.False(t, search.Matches(tokens, f.builder.QueryTokens("example.com")))
}

func TestQueryTokensEmptyShortCircuits(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.builder.QueryTokens(""))
	assert.Empty(t, f.builder.QueryTokens("   "))
	assert.Empty(t, f.builder.QueryTokens("(),!"))

	// An empty query never matches, even against a populated index.
	tokens := f.builder.TokensForPatient(meganBridges())
	assert.False(t, search.Matches(tokens, nil))
}

func TestTwoWordQueryUsesANDSemantics(t *testing.T) {
	f := newFixture(t)
	tokens := f.builder.TokensForPatient(meganBridges())

	assert.True(t, search.Matches(tokens, f.builder.QueryTokens("megan bridges")))
	// Both words must be present somewhere on the record.
	assert.False(t, search.Matches(tokens, f.builder.QueryTokens("megan alexander")))
}

func TestAnonymizedPatientLosesOldTokens(t *testing.T) {
	f := newFixture(t)
	p := meganBridges()
	before := f.builder.TokensForPatient(p)
	require.True(t, search.Matches(before, f.builder.QueryTokens("megan")))

	p.Anonymize()
	after := f.builder.TokensForPatient(p)

	assert.False(t, search.Matches(after, f.builder.QueryTokens("megan")))
	assert.False(t, search.Matches(after, f.builder.QueryTokens("bridges")))
	assert.False(t, search.Matches(after, f.builder.QueryTokens("example.com")))
	// The sentinel identity is still findable for admin workflows.
	assert.True(t, search.Matches(after, f.builder.QueryTokens("anonymized")))
}
