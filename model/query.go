package model

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Absent is what Render returns for a field whose value was not
// derivable. It is never "0": a zero would claim a measurement that
// did not happen.
const Absent = "?"

// Fields enumerates the dotted identifiers of every leaf field
// reachable in m, in sorted order. Identifiers follow the json tag
// names, with map keys as path segments, e.g.
// "system.disks.sda.read_bytes_per_sec" or "cgroup.children.workload.cpu.usage_pct".
// The set is shape-dependent: only keys present in this model appear.
func Fields(m *Model) []string {
	var out []string
	collectFields(reflect.ValueOf(m).Elem(), "", &out)
	sort.Strings(out)
	return out
}

// Render formats the field named by the dotted id. Unknown ids and
// absent values both render as Absent; a formatter asking for a field
// some samples lack should not have to special-case either.
func Render(m *Model, id string) string {
	v, ok := lookupField(reflect.ValueOf(m).Elem(), strings.Split(id, "."))
	if !ok {
		return Absent
	}
	return renderLeaf(v)
}

func collectFields(v reflect.Value, prefix string, out *[]string) {
	v = deref(v)
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		if isLeafType(v.Type()) {
			*out = append(*out, prefix)
			return
		}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			name := jsonName(t.Field(i))
			if name == "" {
				continue
			}
			collectFields(v.Field(i), joinPath(prefix, name), out)
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			collectFields(v.MapIndex(key), joinPath(prefix, keyString(key)), out)
		}
	default:
		*out = append(*out, prefix)
	}
}

func lookupField(v reflect.Value, parts []string) (reflect.Value, bool) {
	if len(parts) == 0 {
		return v, true
	}
	v = deref(v)
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Struct:
		field, ok := fieldByJSONName(v, parts[0])
		if !ok {
			return reflect.Value{}, false
		}
		return lookupField(field, parts[1:])
	case reflect.Map:
		return lookupMapField(v, parts)
	default:
		return reflect.Value{}, false
	}
}

// lookupMapField resolves a map step. Map keys can themselves contain
// dots (cgroup names like "system.slice"), so the key may span several
// id segments; try the longest run of segments first and back off
// until one names an entry the rest of the id resolves under.
func lookupMapField(v reflect.Value, parts []string) (reflect.Value, bool) {
	for n := len(parts); n >= 1; n-- {
		key, ok := mapKey(v.Type().Key(), strings.Join(parts[:n], "."))
		if !ok {
			continue
		}
		elem := v.MapIndex(key)
		if !elem.IsValid() {
			continue
		}
		if res, ok := lookupField(elem, parts[n:]); ok {
			return res, true
		}
	}
	return reflect.Value{}, false
}

func keyString(key reflect.Value) string {
	switch key.Kind() {
	case reflect.String:
		return key.String()
	case reflect.Int, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(key.Int(), 10)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(key.Uint(), 10)
	default:
		return fmt.Sprint(key.Interface())
	}
}

func fieldByJSONName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if jsonName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func mapKey(keyType reflect.Type, part string) (reflect.Value, bool) {
	switch keyType.Kind() {
	case reflect.String:
		return reflect.ValueOf(part), true
	case reflect.Int32:
		n, err := strconv.ParseInt(part, 10, 32)
		if err != nil {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(int32(n)), true
	case reflect.Uint32:
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(uint32(n)), true
	default:
		return reflect.Value{}, false
	}
}

func renderLeaf(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return Absent
	}
	switch val := v.Interface().(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case time.Duration:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', 2, 64)
	case string:
		if val == "" {
			return Absent
		}
		return val
	case bool:
		return strconv.FormatBool(val)
	}
	switch v.Kind() {
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Int, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	}
	return fmt.Sprint(v.Interface())
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isLeafType(t reflect.Type) bool {
	return t == reflect.TypeOf(time.Time{})
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return strings.ToLower(f.Name)
	}
	return name
}
