/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package callkey resolves call arguments into string keys for coalescing and memoization.
package callkey

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// maxDepth bounds the walk over self-referencing values.
const maxDepth = 32

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Resolver computes a key from a call argument.
type Resolver[A any] func(arg A) string

// Default returns a stable string representation of the argument.
// JSON is used when it captures the whole value (map keys are sorted by encoding/json).
// Values with unexported struct fields, channels or functions are walked field by field instead,
// so arguments that differ only in unexported state get different keys.
func Default[A any](arg A) string {
	v := reflect.ValueOf(arg)
	if jsonComplete(v, 0) {
		if b, err := json.Marshal(arg); err == nil {
			return string(b)
		}
	}
	var sb strings.Builder
	writeKey(&sb, v, 0)
	return sb.String()
}

// jsonComplete reports whether encoding/json represents every part of the value.
func jsonComplete(v reflect.Value, depth int) bool {
	if depth > maxDepth {
		return false
	}
	if !v.IsValid() {
		return true
	}
	if v.Type().Implements(jsonMarshalerType) || v.Type().Implements(textMarshalerType) {
		return true
	}
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Pointer, reflect.Interface:
		return v.IsNil() || jsonComplete(v.Elem(), depth+1)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" || !jsonComplete(v.Field(i), depth+1) {
				return false
			}
		}
		return true
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if !jsonComplete(v.Index(i), depth+1) {
				return false
			}
		}
		return true
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !jsonComplete(iter.Key(), depth+1) || !jsonComplete(iter.Value(), depth+1) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// writeKey writes a deterministic representation of the value including unexported fields.
func writeKey(sb *strings.Builder, v reflect.Value, depth int) {
	if !v.IsValid() {
		sb.WriteString("nil")
		return
	}
	if depth > maxDepth {
		fmt.Fprintf(sb, "%s(...)", v.Type())
		return
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			sb.WriteString("nil")
			return
		}
		sb.WriteByte('&')
		writeKey(sb, v.Elem(), depth+1)
	case reflect.Interface:
		if v.IsNil() {
			sb.WriteString("nil")
			return
		}
		writeKey(sb, v.Elem(), depth+1)
	case reflect.Struct:
		t := v.Type()
		sb.WriteString(t.String())
		sb.WriteByte('{')
		for i := 0; i < t.NumField(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(t.Field(i).Name)
			sb.WriteByte(':')
			writeKey(sb, v.Field(i), depth+1)
		}
		sb.WriteByte('}')
	case reflect.Slice, reflect.Array:
		sb.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeKey(sb, v.Index(i), depth+1)
		}
		sb.WriteByte(']')
	case reflect.Map:
		entries := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			var entry strings.Builder
			writeKey(&entry, iter.Key(), depth+1)
			entry.WriteByte(':')
			writeKey(&entry, iter.Value(), depth+1)
			entries = append(entries, entry.String())
		}
		sort.Strings(entries)
		sb.WriteString("map[")
		sb.WriteString(strings.Join(entries, ","))
		sb.WriteByte(']')
	case reflect.String:
		sb.WriteString(strconv.Quote(v.String()))
	case reflect.Bool:
		sb.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sb.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sb.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		sb.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case reflect.Complex64, reflect.Complex128:
		sb.WriteString(strconv.FormatComplex(v.Complex(), 'g', -1, 128))
	default:
		// chan, func and unsafe pointers are identified by address
		fmt.Fprintf(sb, "%s(%#x)", v.Type(), v.Pointer())
	}
}

// FromField returns a Resolver that takes the key from the named exported field
// or zero-argument method of the argument (which may be a pointer to a struct).
// Method lookup happens first, so a method may override a field with the same name.
// It panics if the argument has neither, since that is a programming error.
func FromField[A any](name string) Resolver[A] {
	return func(arg A) string {
		v := reflect.ValueOf(arg)
		if !v.IsValid() {
			panic(fmt.Sprintf("callkey: cannot resolve %q on nil argument", name))
		}
		if m := v.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() >= 1 {
			return fmt.Sprint(m.Call(nil)[0].Interface())
		}
		for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			if v.IsNil() {
				panic(fmt.Sprintf("callkey: cannot resolve %q on nil argument", name))
			}
			v = v.Elem()
		}
		if v.Kind() == reflect.Struct {
			if f := v.FieldByName(name); f.IsValid() && f.CanInterface() {
				return fmt.Sprint(f.Interface())
			}
		}
		panic(fmt.Sprintf("callkey: %s has no exported field or method %q", v.Type(), name))
	}
}
