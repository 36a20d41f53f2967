// Package processor walks record structs and applies the envelope codec to
// every field carrying a `phi` tag. It is the mechanics behind the public
// FieldBinder: encrypt-on-write and decrypt-on-read over plain structs, with
// nested substructures (address, emergency contact, insurance) bound
// leaf-by-leaf through recursion.
package processor

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/hengadev/errsx"

	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/internal/normalize"
)

// ErrUnsupportedField reports a tagged field whose Go type the processor
// cannot bind. Only strings and string slices hold envelopes.
var ErrUnsupportedField = errors.New("unsupported field type")

// StructTag is the struct tag key marking encrypted fields.
//
// Tag grammar: `phi:"encrypt"` with optional comma-separated modifiers:
//
//	phi:"encrypt,norm=email"  normalisation pipeline applied before sealing
//	phi:"encrypt,kind=date"   value is an instant; canonicalised to RFC 3339 UTC
const StructTag = "phi"

// FieldCodec is the envelope codec surface the processor needs. *phi.Codec
// satisfies it.
type FieldCodec interface {
	IsEnvelope(value string) bool
	EncryptString(value string) (string, error)
	DecryptString(env string) (string, error)
}

// Processor applies the codec to tagged struct fields.
type Processor struct {
	codec  FieldCodec
	logger *slog.Logger
}

// New creates a Processor. A nil logger falls back to slog.Default().
func New(codec FieldCodec, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{codec: codec, logger: logger}
}

type fieldSpec struct {
	norm string
	kind string
}

// parseTag splits a `phi` tag into its operation and modifiers. The only
// supported operation is "encrypt".
func parseTag(tag string) (fieldSpec, error) {
	parts := strings.Split(tag, ",")
	if strings.TrimSpace(parts[0]) != "encrypt" {
		return fieldSpec{}, fmt.Errorf("unsupported phi tag operation %q, supported: encrypt", parts[0])
	}
	spec := fieldSpec{}
	for _, mod := range parts[1:] {
		mod = strings.TrimSpace(mod)
		switch {
		case strings.HasPrefix(mod, "norm="):
			spec.norm = strings.TrimPrefix(mod, "norm=")
		case strings.HasPrefix(mod, "kind="):
			spec.kind = strings.TrimPrefix(mod, "kind=")
		case mod == "":
		default:
			return fieldSpec{}, fmt.Errorf("unknown phi tag modifier %q", mod)
		}
	}
	return spec, nil
}

// EncryptStruct seals every tagged field of object (a non-nil pointer to
// struct) in place. Values that are already envelopes are stored verbatim so
// a persisted document can round-trip through the binder. Failures are
// collected per field; untagged fields are never touched.
func (p *Processor) EncryptStruct(object any) error {
	v, err := structValue(object)
	if err != nil {
		return err
	}

	var errs errsx.Map
	p.encryptFields(v, "", &errs)
	if errs.IsEmpty() {
		return nil
	}
	return errs.AsError()
}

func (p *Processor) encryptFields(v reflect.Value, path string, errs *errsx.Map) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)
		name := fieldPath(path, field.Name)

		tag, ok := field.Tag.Lookup(StructTag)
		if !ok {
			p.recurse(fieldValue, name, errs, p.encryptFields)
			continue
		}

		spec, err := parseTag(tag)
		if err != nil {
			errs.Set(name, err)
			continue
		}
		if !fieldValue.CanSet() {
			errs.Set(name, fmt.Errorf("field is not settable"))
			continue
		}

		switch fieldValue.Kind() {
		case reflect.String:
			env, err := p.encryptValue(fieldValue.String(), spec)
			if err != nil {
				errs.Set(name, err)
				continue
			}
			fieldValue.SetString(env)
		case reflect.Slice:
			if field.Type.Elem().Kind() != reflect.String {
				errs.Set(name, fmt.Errorf("%w: []%s", ErrUnsupportedField, field.Type.Elem()))
				continue
			}
			for j := 0; j < fieldValue.Len(); j++ {
				elem := fieldValue.Index(j)
				env, err := p.encryptValue(elem.String(), spec)
				if err != nil {
					errs.Set(fmt.Sprintf("%s[%d]", name, j), err)
					continue
				}
				elem.SetString(env)
			}
		default:
			errs.Set(name, fmt.Errorf("%w: %s", ErrUnsupportedField, field.Type))
		}
	}
}

// encryptValue normalises and seals one scalar. Empty values and values that
// are already envelopes pass through unchanged.
func (p *Processor) encryptValue(value string, spec fieldSpec) (string, error) {
	if value == "" || p.codec.IsEnvelope(value) {
		return value, nil
	}
	value = normalize.ForKind(spec.norm).Apply(value)
	if spec.kind == "date" {
		instant, err := parseInstant(value)
		if err != nil {
			return "", err
		}
		value = instant.UTC().Format(time.RFC3339Nano)
	}
	return p.codec.EncryptString(value)
}

// DecryptStruct opens every tagged field of object in place. A field that
// fails to decrypt is logged and left holding its raw envelope so one corrupt
// value cannot make the whole record unreadable; the error is still reported
// through the returned map for callers that want it.
func (p *Processor) DecryptStruct(object any) error {
	v, err := structValue(object)
	if err != nil {
		return err
	}

	var errs errsx.Map
	p.decryptFields(v, "", &errs)
	if errs.IsEmpty() {
		return nil
	}
	return errs.AsError()
}

func (p *Processor) decryptFields(v reflect.Value, path string, errs *errsx.Map) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)
		name := fieldPath(path, field.Name)

		if _, ok := field.Tag.Lookup(StructTag); !ok {
			p.recurse(fieldValue, name, errs, p.decryptFields)
			continue
		}
		if !fieldValue.CanSet() {
			continue
		}

		switch fieldValue.Kind() {
		case reflect.String:
			if plain, ok := p.decryptValue(fieldValue.String(), name, errs); ok {
				fieldValue.SetString(plain)
			}
		case reflect.Slice:
			if field.Type.Elem().Kind() != reflect.String {
				continue
			}
			for j := 0; j < fieldValue.Len(); j++ {
				elem := fieldValue.Index(j)
				elemName := fmt.Sprintf("%s[%d]", name, j)
				if plain, ok := p.decryptValue(elem.String(), elemName, errs); ok {
					elem.SetString(plain)
				}
			}
		}
	}
}

// decryptValue opens one scalar. Non-envelope values pass through verbatim.
// On failure it logs, records the error and reports ok=false so the caller
// keeps the stored envelope.
func (p *Processor) decryptValue(value, name string, errs *errsx.Map) (string, bool) {
	if !p.codec.IsEnvelope(value) {
		return value, true
	}
	plain, err := p.codec.DecryptString(value)
	if err != nil {
		p.logger.Warn("field decryption failed, keeping envelope",
			slog.String("field", name),
			slog.String("error", err.Error()))
		errs.Set(name, err)
		return "", false
	}
	return plain, true
}

type walkFunc func(v reflect.Value, path string, errs *errsx.Map)

// recurse descends into nested structs and non-nil struct pointers so
// substructures bind their own leaves. time.Time is a struct but never a
// bindable one.
func (p *Processor) recurse(fieldValue reflect.Value, name string, errs *errsx.Map, walk walkFunc) {
	switch fieldValue.Kind() {
	case reflect.Struct:
		if fieldValue.Type() == reflect.TypeOf(time.Time{}) {
			return
		}
		walk(fieldValue, name, errs)
	case reflect.Pointer:
		if fieldValue.IsNil() || fieldValue.Elem().Kind() != reflect.Struct {
			return
		}
		if fieldValue.Elem().Type() == reflect.TypeOf(time.Time{}) {
			return
		}
		walk(fieldValue.Elem(), name, errs)
	}
}

// parseInstant accepts an RFC 3339 instant or a bare calendar date.
func parseInstant(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("value is neither an RFC 3339 instant nor a calendar date")
}

func structValue(object any) (reflect.Value, error) {
	v := reflect.ValueOf(object)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("object must be a non-nil pointer to a struct, got %T", object)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("object must point to a struct, got %T", object)
	}
	return v, nil
}

func fieldPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
