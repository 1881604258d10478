package chryx

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Config controls one flattening run: the path separator, the maximum
// recursion depth (-1 for unbounded), and the ignore/fold path sets.
// Paths in Ignore and Fold are full dotted-separator keys, e.g.
// "user_address" when Sep is "_".
type Config struct {
	Sep      string
	MaxDepth int
	Ignore   map[string]struct{}
	Fold     map[string]struct{}
}

// NewConfig builds a Config from plain string slices, the shape a
// tasking_cfg JSON blob decodes into.
func NewConfig(sep string, maxDepth int, ignore, fold []string) Config {
	cfg := Config{Sep: sep, MaxDepth: maxDepth}
	if len(ignore) > 0 {
		cfg.Ignore = make(map[string]struct{}, len(ignore))
		for _, k := range ignore {
			cfg.Ignore[k] = struct{}{}
		}
	}
	if len(fold) > 0 {
		cfg.Fold = make(map[string]struct{}, len(fold))
		for _, k := range fold {
			cfg.Fold[k] = struct{}{}
		}
	}
	return cfg
}

// Row is one flattened output row: a mapping from a dotted-separator
// path to a scalar JSON value, or to a Value (unchanged subtree) when
// the path was folded.
type Row map[string]any

// Flatten expands a nested JSON value into a list of flat row maps: a
// depth-first walk where array siblings fan out by list-append (not
// cross product) but successive object fields compound across the
// whole current row set, producing cartesian behavior for multiple
// array-valued fields.
//
// gID is the message's group id. It is accepted but not used: the
// engine never writes it into row content, and the returned rows carry
// no trace of it.
func Flatten(cfg Config, gID string, root Value) []Row {
	_ = gID
	if root.Kind != KindObject && root.Kind != KindArray {
		return nil
	}
	return walk(cfg, []Row{{}}, "", 0, root)
}

// walk processes value, which lives at the given key path and nesting
// depth, across every row currently accumulated. Object children extend
// the key path with Sep; array elements reuse the same key path but
// still consume one unit of depth budget each (a pseudo-key for nested
// arrays) so that deeply nested array-of-array structures are still
// bounded by MaxDepth, not just object nesting.
func walk(cfg Config, rows []Row, key string, depth int, value Value) []Row {
	switch value.Kind {
	case KindObject:
		if len(value.Obj) == 0 {
			return extendAll(rows, key, map[string]any{})
		}
		for _, kv := range value.Obj {
			full := formatKey(cfg.Sep, key, kv.Key)
			if _, skip := cfg.Ignore[full]; skip {
				continue
			}
			if _, fold := cfg.Fold[full]; fold {
				rows = extendAll(rows, full, kv.Val)
				continue
			}
			if cfg.MaxDepth != -1 && depth+1 > cfg.MaxDepth {
				continue
			}
			rows = walk(cfg, rows, full, depth+1, kv.Val)
		}
		return rows
	case KindArray:
		if len(value.Arr) == 0 {
			return rows
		}
		if cfg.MaxDepth != -1 && depth+1 > cfg.MaxDepth {
			return rows
		}
		out := make([]Row, 0, len(rows)*len(value.Arr))
		for _, elem := range value.Arr {
			out = append(out, walk(cfg, rows, key, depth+1, elem)...)
		}
		return out
	default: // scalar (or null) leaf: object-context uses full key, array-context reuses parent key
		return extendAll(rows, key, value.Scalar)
	}
}

func formatKey(sep, parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + sep + child
}

// extendAll returns a copy of rows with key set to val in every row.
// Never mutates an input Row, since walk's array branch reuses the same
// rows slice across multiple elements.
func extendAll(rows []Row, key string, val any) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		nr := make(Row, len(r)+1)
		for k, v := range r {
			nr[k] = v
		}
		nr[key] = val
		out[i] = nr
	}
	return out
}

// MarshalSorted renders rows as a JSON array with rows sorted by their
// own serialized form, giving a byte-identical result across
// invocations regardless of the non-deterministic ordering array
// fan-out can otherwise produce across runs with equivalent but
// differently-ordered map iteration. Used by the debug-preview endpoint
// and by determinism tests.
func MarshalSorted(rows []Row) ([]byte, error) {
	encoded := make([]string, len(rows))
	for i, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("chryx: marshal row %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	sort.Strings(encoded)

	var out []byte
	out = append(out, '[')
	for i, e := range encoded {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, e...)
	}
	out = append(out, ']')
	return out, nil
}
