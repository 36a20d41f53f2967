package boundary_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/boundary"
	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/records"
)

type staticSource struct{ material phi.Material }

func (s staticSource) Resolve(ctx context.Context) (phi.Material, error) {
	return s.material, nil
}

func newCodec(t *testing.T) *phi.Codec {
	t.Helper()
	kr, err := phi.NewKeyring(context.Background(), staticSource{material: phi.Material{
		Master: phi.KeyMaterial{Base64: base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))},
		Index:  phi.KeyMaterial{Base64: base64.StdEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210"))},
	}})
	require.NoError(t, err)
	codec, err := phi.NewCodec(kr)
	require.NoError(t, err)
	return codec
}

func TestToPlainDecryptsNestedTrees(t *testing.T) {
	codec := newCodec(t)
	w := boundary.New(codec, nil)

	name, err := codec.EncryptString("Megan")
	require.NoError(t, err)
	email, err := codec.EncryptString("megan@example.com")
	require.NoError(t, err)

	doc := map[string]any{
		"patient_id": 1001,
		"first_name": name,
		"contacts": []any{
			map[string]any{"email": email},
			"not encrypted",
		},
	}

	plain, ok := w.ToPlain(doc).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1001, plain["patient_id"])
	assert.Equal(t, "Megan", plain["first_name"])
	contacts := plain["contacts"].([]any)
	assert.Equal(t, "megan@example.com", contacts[0].(map[string]any)["email"])
	assert.Equal(t, "not encrypted", contacts[1])
}

func TestToPlainWalksStructs(t *testing.T) {
	codec := newCodec(t)
	binder := phi.NewFieldBinder(codec, nil)
	w := boundary.New(codec, nil)

	p := records.NewPatient(1001)
	p.FirstName = "Megan"
	p.Surname = "Bridges"
	p.Status = records.StatusActive
	require.NoError(t, binder.EncryptRecord(p))
	require.True(t, codec.IsEnvelope(p.FirstName))

	plain, ok := w.ToPlain(p).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Megan", plain["first_name"])
	assert.Equal(t, "Bridges", plain["surname"])
	assert.Equal(t, records.StatusActive, plain["status"])
	// omitempty fields that were never set do not appear.
	assert.NotContains(t, plain, "email")
}

func TestToPlainPreservesSpecialLeaves(t *testing.T) {
	w := boundary.New(newCodec(t), nil)

	now := time.Now()
	raw := []byte{0x01, 0x02}
	re := regexp.MustCompile(`^meg`)

	doc := map[string]any{
		"when":    now,
		"blob":    raw,
		"matcher": re,
	}

	plain := w.ToPlain(doc).(map[string]any)
	assert.Equal(t, now, plain["when"])
	assert.Equal(t, raw, plain["blob"])
	assert.Same(t, re, plain["matcher"].(*regexp.Regexp))
}

func TestToPlainKeepsCorruptLeafAndLogsOnce(t *testing.T) {
	codec := newCodec(t)

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	w := boundary.New(codec, logger)

	good, err := codec.EncryptString("Megan")
	require.NoError(t, err)
	corrupt := "ENC:v1:AAAAAAAAAAAAAAAA:AAAA:AAAAAAAAAAAAAAAAAAAAAA=="

	doc := map[string]any{"good": good, "bad": corrupt}
	plain := w.ToPlain(doc).(map[string]any)

	// The corrupt leaf is preserved verbatim, the rest decrypts, and the
	// failure is logged exactly once.
	assert.Equal(t, "Megan", plain["good"])
	assert.Equal(t, corrupt, plain["bad"])
	assert.Equal(t, 1, bytes.Count(logBuf.Bytes(), []byte("leaf decryption failed")))
}

func TestToPlainIdempotentOnPlaintext(t *testing.T) {
	w := boundary.New(newCodec(t), nil)

	doc := map[string]any{
		"name":  "Megan",
		"count": 3,
		"tags":  []any{"a", "b"},
		"inner": map[string]any{"ok": true},
	}

	once := w.ToPlain(doc)
	twice := w.ToPlain(once)
	assert.Equal(t, once, twice)
}

type projected struct {
	sealed string
}

func (p projected) Plain() map[string]any {
	return map[string]any{"note": p.sealed, "kind": "projection"}
}

func TestToPlainProjectsPlainers(t *testing.T) {
	codec := newCodec(t)
	w := boundary.New(codec, nil)

	env, err := codec.EncryptString("confidential note")
	require.NoError(t, err)

	plain := w.ToPlain(projected{sealed: env}).(map[string]any)
	assert.Equal(t, "confidential note", plain["note"])
	assert.Equal(t, "projection", plain["kind"])
}

func TestToPlainNilSafety(t *testing.T) {
	w := boundary.New(newCodec(t), nil)
	assert.Nil(t, w.ToPlain(nil))

	var m map[string]any
	assert.Nil(t, w.ToPlain(m))

	var p *records.Patient
	assert.Nil(t, w.ToPlain(p))
}
