package chryx

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"
)

func parseOrFatal(t *testing.T, raw string) Value {
	t.Helper()
	v, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return v
}

func rowKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mixed scalar + array fields
func TestFlattenScalarAndArray(t *testing.T) {
	v := parseOrFatal(t, `{"foo":"baz","complex":[1,2,3]}`)
	cfg := NewConfig("_", 32, nil, nil)
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %#v", len(rows), rows)
	}
	seen := map[string]bool{}
	for _, r := range rows {
		if r["foo"] != "baz" {
			t.Fatalf("row missing foo=baz: %#v", r)
		}
		seen[numString(t, r["complex"])] = true
	}
	for _, want := range []string{"1", "2", "3"} {
		if !seen[want] {
			t.Errorf("missing complex=%s among rows", want)
		}
	}
}

func numString(t *testing.T, v any) string {
	t.Helper()
	n, ok := v.(json.Number)
	if !ok {
		t.Fatalf("expected json.Number, got %T (%v)", v, v)
	}
	return n.String()
}

// single flat object
func TestFlattenSingleObject(t *testing.T) {
	v := parseOrFatal(t, `{"name":"ace"}`)
	cfg := NewConfig("_", 32, nil, nil)
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["name"] != "ace" {
		t.Fatalf("unexpected row: %#v", rows[0])
	}
}

// array at the document root
func TestFlattenRootArray(t *testing.T) {
	v := parseOrFatal(t, `[true,true]`)
	cfg := NewConfig("_", 32, nil, nil)
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if len(r) != 1 || r[""] != true {
			t.Fatalf(`expected row {"":true}, got %#v`, r)
		}
	}
}

// ignored field is dropped entirely
func TestFlattenIgnore(t *testing.T) {
	v := parseOrFatal(t, `{"name":"ace","list":[1,2,3],"user":{"age":18,"area":"c"}}`)
	cfg := NewConfig("_", 32, []string{"name"}, nil)
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if _, ok := r["name"]; ok {
			t.Fatalf("row should not contain name: %#v", r)
		}
		for _, want := range []string{"list", "user_age", "user_area"} {
			if _, ok := r[want]; !ok {
				t.Fatalf("row missing %s: %#v", want, r)
			}
		}
	}
}

// independent array siblings multiply into a cartesian product
func TestFlattenArrayCartesian(t *testing.T) {
	v := parseOrFatal(t, `{"a":["x","y"],"b":["u","v"]}`)
	cfg := NewConfig("_", -1, nil, nil)
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d: %#v", len(rows), rows)
	}
	combos := map[string]bool{}
	for _, r := range rows {
		combos[r["a"].(string)+"/"+r["b"].(string)] = true
	}
	for _, want := range []string{"x/u", "x/v", "y/u", "y/v"} {
		if !combos[want] {
			t.Errorf("missing combination %s", want)
		}
	}
}

// nested arrays also multiply
func TestFlattenNestedArrayCartesian(t *testing.T) {
	v := parseOrFatal(t, `{"a":[["x","y"],["u","v"]]}`)
	cfg := NewConfig("_", -1, nil, nil)
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d: %#v", len(rows), rows)
	}
}

// ignore removes the whole subtree, not just the named key
func TestFlattenIgnoreSubtree(t *testing.T) {
	v := parseOrFatal(t, `{"k":{"child":1,"other":2},"keep":3}`)
	cfg := NewConfig("_", -1, []string{"k"}, nil)
	rows := Flatten(cfg, "g1", v)
	for _, r := range rows {
		for key := range r {
			if key == "k" || strings.HasPrefix(key, "k_") {
				t.Fatalf("row should not contain ignored subtree key %s: %#v", key, r)
			}
		}
	}
}

// fold embeds the subtree unchanged, with no sub-keys
func TestFlattenFold(t *testing.T) {
	v := parseOrFatal(t, `{"k":{"child":1,"nested":{"x":2}},"keep":3}`)
	cfg := NewConfig("_", -1, nil, []string{"k"})
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	folded, ok := r["k"].(Value)
	if !ok {
		t.Fatalf("expected folded value of type chryx.Value, got %T", r["k"])
	}
	if folded.Kind != KindObject {
		t.Fatalf("expected folded object, got kind %v", folded.Kind)
	}
	for key := range r {
		if strings.HasPrefix(key, "k_") {
			t.Fatalf("row should not contain sub-keys of folded path: %#v", r)
		}
	}
	b, err := json.Marshal(folded)
	if err != nil {
		t.Fatalf("marshal folded value: %v", err)
	}
	if string(b) != `{"child":1,"nested":{"x":2}}` {
		t.Fatalf("folded value changed: %s", b)
	}
}

// depth cap bounds the number of separators in any key
func TestFlattenMaxDepth(t *testing.T) {
	v := parseOrFatal(t, `{"a":{"b":{"c":{"d":1}}}}`)
	cfg := NewConfig("_", 2, nil, nil)
	rows := Flatten(cfg, "g1", v)
	for _, r := range rows {
		for key := range r {
			if n := strings.Count(key, "_"); n > 2 {
				t.Fatalf("key %s has %d separators, want <= 2", key, n)
			}
		}
	}
}

// sorted output is stable across equivalent but differently-gid'd runs
func TestFlattenDeterministic(t *testing.T) {
	v := parseOrFatal(t, `{"a":["x","y"],"b":["u","v"],"c":1}`)
	cfg := NewConfig("_", -1, nil, nil)
	r1 := Flatten(cfg, "g1", v)
	r2 := Flatten(cfg, "g2", v)
	b1, err := MarshalSorted(r1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := MarshalSorted(r2)
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("non-deterministic output:\n%s\n%s", b1, b2)
	}
}

// root discipline: scalar root yields no rows
func TestFlattenScalarRoot(t *testing.T) {
	v := parseOrFatal(t, `"just a string"`)
	cfg := NewConfig("_", -1, nil, nil)
	if rows := Flatten(cfg, "g1", v); rows != nil {
		t.Fatalf("expected nil rows for scalar root, got %#v", rows)
	}
}

// root discipline: null root yields no rows
func TestFlattenNullRoot(t *testing.T) {
	v := parseOrFatal(t, `null`)
	cfg := NewConfig("_", -1, nil, nil)
	if rows := Flatten(cfg, "g1", v); rows != nil {
		t.Fatalf("expected nil rows for null root, got %#v", rows)
	}
}

// empty array: one row, unchanged, no key added
func TestFlattenEmptyArray(t *testing.T) {
	v := parseOrFatal(t, `{"list":[],"keep":1}`)
	cfg := NewConfig("_", -1, nil, nil)
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[0]["list"]; ok {
		t.Fatalf("empty array should not add a key: %#v", rows[0])
	}
}

// empty object: row gets parent -> {}
func TestFlattenEmptyObject(t *testing.T) {
	v := parseOrFatal(t, `{"obj":{},"keep":1}`)
	cfg := NewConfig("_", -1, nil, nil)
	rows := Flatten(cfg, "g1", v)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	m, ok := rows[0]["obj"].(map[string]any)
	if !ok || len(m) != 0 {
		t.Fatalf("expected obj -> empty map, got %#v", rows[0]["obj"])
	}
}
