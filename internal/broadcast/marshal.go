// ABOUTME: Defensive JSON serialization for observer events.
// ABOUTME: Degrades unmarshalable values to representable forms instead of failing the stream.

package broadcast

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// maxSanitizeDepth bounds recursion so cyclic payloads terminate.
const maxSanitizeDepth = 16

// safeMarshal serializes an event payload, degrading values that
// encoding/json cannot represent (errors, functions, channels, cycles) to
// strings. The result is verified to re-parse; an error here means even the
// degraded form is unusable and the event must be dropped.
func safeMarshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		data, err = json.Marshal(sanitize(v, 0))
		if err != nil {
			return nil, fmt.Errorf("marshaling degraded payload: %w", err)
		}
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("payload produced invalid JSON")
	}
	return data, nil
}

// sanitize walks a value and replaces anything encoding/json would reject.
// Depth overruns (cycles) collapse to a marker string.
func sanitize(v any, depth int) any {
	if depth > maxSanitizeDepth {
		return "[max depth exceeded]"
	}
	if v == nil {
		return nil
	}

	switch t := v.(type) {
	case error:
		return t.Error()
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case json.Marshaler:
		if data, err := t.MarshalJSON(); err == nil && json.Valid(data) {
			return json.RawMessage(data)
		}
		return fmt.Sprintf("%v", v)
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("[%s]", rv.Kind())
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitize(rv.Elem().Interface(), depth+1)
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			out[key] = sanitize(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return v // []byte encodes as base64 natively
		}
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, sanitize(rv.Index(i).Interface(), depth+1))
		}
		return out
	case reflect.Struct:
		out := make(map[string]any)
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			if tag, ok := field.Tag.Lookup("json"); ok {
				parsed, skip := parseJSONTag(tag)
				if skip {
					continue
				}
				if parsed != "" {
					name = parsed
				}
			}
			out[name] = sanitize(rv.Field(i).Interface(), depth+1)
		}
		return out
	default:
		return fmt.Sprintf("%v", v)
	}
}

// parseJSONTag returns the field name from a json struct tag and whether
// the field is skipped entirely.
func parseJSONTag(tag string) (name string, skip bool) {
	if tag == "-" {
		return "", true
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i], false
		}
	}
	return tag, false
}
