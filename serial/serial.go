// Package serial converts arbitrary handler results into JSON.
//
// Marshal is total: it tries a chain of strategies and the last one
// cannot fail, so callers never need an error path. The same chain
// encodes non-streaming response bodies and every streamed event.
package serial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// maxDepth caps recursive conversion of nested values.
const maxDepth = 50

// Marshal encodes v as JSON. It never fails: values that resist direct
// encoding are recursively converted to plain maps and slices, then
// stringified, and as a last resort replaced by a fixed error object.
func Marshal(v any) []byte {
	if b, err := attempt(func() ([]byte, error) { return encode(v) }); err == nil {
		return b
	}
	if b, err := attempt(func() ([]byte, error) { return encode(simplify(v, 0)) }); err == nil {
		return b
	}
	if b, err := attempt(func() ([]byte, error) { return encode(fmt.Sprint(v)) }); err == nil {
		return b
	}
	// Built from literals and a quoted type name only.
	return fmt.Appendf(nil, `{"error":"Serialization failed","original_type":%q}`, typeName(v))
}

// MarshalString is Marshal returning a string.
func MarshalString(v any) string {
	return string(Marshal(v))
}

// attempt runs one strategy with panics contained, so a misbehaving
// MarshalJSON or String method only fails its own stage.
func attempt(fn func() ([]byte, error)) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serialize panic: %v", r)
		}
	}()
	return fn()
}

// encode marshals without HTML escaping so non-ASCII text and URLs
// pass through unmangled.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// simplify rewrites v into plain maps, slices, and strings that the
// JSON encoder accepts. Values it cannot translate become their
// default string form.
func simplify(v any, depth int) any {
	if v == nil {
		return nil
	}
	if depth > maxDepth {
		return fmt.Sprintf("<too_deep:%s>", typeName(v))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return simplify(rv.Elem().Interface(), depth+1)

	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = simplify(iter.Value().Interface(), depth+1)
		}
		return out

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return v // let the encoder base64 []byte as usual
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = simplify(rv.Index(i).Interface(), depth+1)
		}
		return out

	case reflect.Struct:
		return simplifyStruct(rv, depth)

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("<%s>", typeName(v))

	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v)

	default:
		return v
	}
}

// simplifyStruct flattens exported fields into a map, honoring json
// tag names and omissions.
func simplifyStruct(rv reflect.Value, depth int) any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			base, _, _ := strings.Cut(tag, ",")
			if base == "-" {
				continue
			}
			if base != "" {
				name = base
			}
		}
		out[name] = simplify(rv.Field(i).Interface(), depth+1)
	}
	return out
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	return t.String()
}
