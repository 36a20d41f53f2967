// Package boundary is the serialization boundary: the single place where
// ciphertext is allowed to turn back into plaintext on its way out of the
// process. HTTP handlers, report builders and template renderers pass every
// outbound document through ToPlain, so none of them ever see an envelope.
package boundary

import (
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	phi "github.com/mbridgescode/BridgesPhysiotherapyServices-sub002"
)

// Plainer is the capability a non-plain document exposes to be projected
// into a plain tree before the walk. Repository-backed record wrappers
// implement it; plain structs, maps and slices do not need to.
type Plainer interface {
	Plain() map[string]any
}

// Walker decrypts envelope leaves across arbitrary object trees.
type Walker struct {
	codec  *phi.Codec
	logger *slog.Logger
}

// New wires a Walker over the codec. logger may be nil.
func New(codec *phi.Codec, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{codec: codec, logger: logger}
}

// ToPlain returns a plain-data copy of v with every envelope string leaf
// decrypted. Maps, slices, arrays and structs are walked; time.Time, []byte
// and compiled regexps pass through unchanged; structs become
// map[string]any keyed by their json tags. A leaf that fails to decrypt is
// kept as-is with a logged warning; the walk never aborts.
//
// ToPlain is idempotent: running it over an already-plain tree returns an
// equal tree.
func (w *Walker) ToPlain(v any) any {
	return w.walk(reflect.ValueOf(v), "$")
}

func (w *Walker) walk(v reflect.Value, path string) any {
	if !v.IsValid() {
		return nil
	}

	// Leaf types that must survive the walk untouched.
	switch leaf := v.Interface().(type) {
	case time.Time, *time.Time, []byte, *regexp.Regexp:
		return leaf
	case Plainer:
		return w.walk(reflect.ValueOf(leaf.Plain()), path)
	}

	switch v.Kind() {
	case reflect.String:
		return w.decryptLeaf(v.String(), path)

	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return w.walk(v.Elem(), path)

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = w.walk(v.Index(i), path+"["+strconv.Itoa(i)+"]")
		}
		return out

	case reflect.Array:
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = w.walk(v.Index(i), path+"["+strconv.Itoa(i)+"]")
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := keyString(iter.Key())
			out[key] = w.walk(iter.Value(), path+"."+key)
		}
		return out

	case reflect.Struct:
		return w.walkStruct(v, path)

	default:
		// Numbers, bools and anything else pass through by value.
		return v.Interface()
	}
}

// walkStruct projects a struct into map[string]any keyed by json tag names,
// then walks the values. Unexported and json:"-" fields are dropped, and
// omitempty is honoured so the plain tree looks like the struct's own JSON.
func (w *Walker) walkStruct(v reflect.Value, path string) map[string]any {
	t := v.Type()
	out := make(map[string]any)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty := jsonName(field)
		if name == "-" {
			continue
		}
		fieldValue := v.Field(i)
		if omitEmpty && fieldValue.IsZero() {
			continue
		}
		out[name] = w.walk(fieldValue, path+"."+name)
	}
	return out
}

// decryptLeaf opens an envelope leaf. Plaintext strings pass through; a
// failed decrypt keeps the raw envelope and logs once for that leaf.
func (w *Walker) decryptLeaf(s, path string) string {
	if !w.codec.IsEnvelope(s) {
		return s
	}
	plain, err := w.codec.DecryptString(s)
	if err != nil {
		w.logger.Warn("leaf decryption failed, preserving envelope",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return s
	}
	return plain
}

func jsonName(field reflect.StructField) (name string, omitEmpty bool) {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty
}

func keyString(key reflect.Value) string {
	if key.Kind() == reflect.String {
		return key.String()
	}
	return fmt.Sprint(key.Interface())
}
