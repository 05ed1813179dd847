package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
)

const (
	// OutputPlaceholder stands in for a tool that returned no value.
	OutputPlaceholder = "(no output)"
	// CycleMarker replaces self-referential values in tool output.
	CycleMarker = "[circular]"

	// maxSafeInteger is the largest integer JSON consumers round-trip
	// losslessly (2^53 - 1). Larger magnitudes are rendered as strings.
	maxSafeInteger = 1<<53 - 1
)

// NormalizeOutput converts an arbitrary tool return value into a form that
// always serializes: nil becomes a placeholder, cyclic references become a
// fixed marker, and oversized numbers become their lossless string form.
// Serialization of tool output must never take down the run.
func NormalizeOutput(value interface{}) interface{} {
	return normalizeValue(reflect.ValueOf(value), make(map[uintptr]bool))
}

// SafeMarshal renders a value as JSON after normalization. It never fails;
// values json cannot encode are rendered through fmt instead.
func SafeMarshal(value interface{}) string {
	normalized := NormalizeOutput(value)
	data, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Sprintf("%v", normalized)
	}
	return string(data)
}

func normalizeValue(v reflect.Value, visiting map[uintptr]bool) interface{} {
	if !v.IsValid() {
		return OutputPlaceholder
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return OutputPlaceholder
		}
		return normalizeValue(v.Elem(), visiting)

	case reflect.Ptr:
		if v.IsNil() {
			return OutputPlaceholder
		}
		ptr := v.Pointer()
		if visiting[ptr] {
			return CycleMarker
		}
		visiting[ptr] = true
		defer delete(visiting, ptr)
		return normalizeValue(v.Elem(), visiting)

	case reflect.Map:
		if v.IsNil() {
			return OutputPlaceholder
		}
		ptr := v.Pointer()
		if visiting[ptr] {
			return CycleMarker
		}
		visiting[ptr] = true
		defer delete(visiting, ptr)

		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			out[key] = normalizeValue(iter.Value(), visiting)
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return OutputPlaceholder
		}
		ptr := v.Pointer()
		if visiting[ptr] {
			return CycleMarker
		}
		visiting[ptr] = true
		defer delete(visiting, ptr)
		return normalizeSequence(v, visiting)

	case reflect.Array:
		return normalizeSequence(v, visiting)

	case reflect.Struct:
		if b, ok := v.Interface().(big.Int); ok {
			return b.String()
		}
		out := make(map[string]interface{})
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			out[fieldName(field)] = normalizeValue(v.Field(i), visiting)
		}
		return out

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n > maxSafeInteger || n < -maxSafeInteger {
			return strconv.FormatInt(n, 10)
		}
		return n

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := v.Uint()
		if n > maxSafeInteger {
			return strconv.FormatUint(n, 10)
		}
		return n

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		if f == math.Trunc(f) && math.Abs(f) > maxSafeInteger {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return f

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("(%s)", v.Kind())

	default:
		return v.Interface()
	}
}

func normalizeSequence(v reflect.Value, visiting map[uintptr]bool) interface{} {
	out := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = normalizeValue(v.Index(i), visiting)
	}
	return out
}

func fieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok && tag != "" && tag != "-" {
		for i := 0; i < len(tag); i++ {
			if tag[i] == ',' {
				if i > 0 {
					return tag[:i]
				}
				break
			}
		}
		if tag[0] != ',' {
			return tag
		}
	}
	return field.Name
}
