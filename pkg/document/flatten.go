package document

import (
	"sort"
	"strconv"
	"strings"
)

// Flat maps dotted paths (a.b.c, with list elements as a[0]) to terminal values.
type Flat map[string]any

// Flatten builds the flattened view of r. Non-empty records and lists are
// descended into; everything else, including empty containers, is a terminal.
// The source record is never modified.
func Flatten(r Record) Flat {
	flat := make(Flat, len(r))
	for k, v := range r {
		flattenInto(flat, k, v)
	}
	return flat
}

func flattenInto(flat Flat, path string, v any) {
	switch t := v.(type) {
	case Record:
		if len(t) == 0 {
			flat[path] = Record{}
			return
		}
		for k, child := range t {
			flattenInto(flat, JoinPath(path, k), child)
		}
	case []any:
		if len(t) == 0 {
			flat[path] = []any{}
			return
		}
		for i, child := range t {
			flattenInto(flat, IndexPath(path, i), child)
		}
	default:
		flat[path] = v
	}
}

// JoinPath appends a field name to a path.
func JoinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// IndexPath appends a list index to a path.
func IndexPath(prefix string, i int) string {
	return prefix + "[" + strconv.Itoa(i) + "]"
}

// IsNested reports whether path addresses something below the top level.
func IsNested(path string) bool {
	return strings.ContainsAny(path, ".[")
}

// HasPathPrefix reports whether path equals prefix or lies below it.
func HasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	next := path[len(prefix)]
	return next == '.' || next == '['
}

type segment struct {
	name    string
	index   int
	isIndex bool
}

// splitPath tokenizes a path. Bracketed segments and dotted segments that
// parse as integers are list indexes.
func splitPath(path string) []segment {
	var segs []segment
	var buf strings.Builder
	flushName := func() {
		if buf.Len() == 0 {
			return
		}
		name := buf.String()
		buf.Reset()
		if i, err := strconv.Atoi(name); err == nil && i >= 0 {
			segs = append(segs, segment{name: name, index: i, isIndex: true})
			return
		}
		segs = append(segs, segment{name: name})
	}

	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			flushName()
		case '[':
			flushName()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				buf.WriteString(path[i:])
				i = len(path)
				continue
			}
			raw := path[i+1 : i+end]
			if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 {
				segs = append(segs, segment{name: raw, index: idx, isIndex: true})
			} else {
				segs = append(segs, segment{name: raw})
			}
			i += end
		default:
			buf.WriteByte(c)
		}
	}
	flushName()
	return segs
}

// Set stores v at path inside r, creating intermediate records where the
// path is missing or runs through a scalar. An index segment descends into
// an existing list element and otherwise names a record key.
func Set(r Record, path string, v any) {
	if r == nil {
		return
	}
	segs := splitPath(path)
	if len(segs) == 0 {
		r[path] = v
		return
	}
	var cur any = r
	for i, seg := range segs {
		last := i == len(segs)-1
		switch t := cur.(type) {
		case Record:
			if last {
				t[seg.name] = v
				return
			}
			next := t[seg.name]
			if !descendable(next, segs[i+1]) {
				next = Record{}
				t[seg.name] = next
			}
			cur = next
		case []any:
			if last {
				t[seg.index] = v
				return
			}
			next := t[seg.index]
			if !descendable(next, segs[i+1]) {
				next = Record{}
				t[seg.index] = next
			}
			cur = next
		}
	}
}

func descendable(v any, next segment) bool {
	switch t := v.(type) {
	case Record:
		return true
	case []any:
		return next.isIndex && next.index < len(t)
	}
	return false
}

// Lookup resolves path inside r, descending through records and lists.
func Lookup(r Record, path string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r[path]; ok {
		return v, true
	}
	var cur any = r
	for _, seg := range splitPath(path) {
		switch t := cur.(type) {
		case Record:
			v, ok := t[seg.name]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			if !seg.isIndex || seg.index >= len(t) {
				return nil, false
			}
			cur = t[seg.index]
		default:
			return nil, false
		}
	}
	return cur, true
}

type node struct {
	fields   map[string]*node
	items    map[int]*node
	value    any
	terminal bool
}

func (n *node) child(seg segment, top bool) *node {
	if seg.isIndex && !top {
		if n.items == nil {
			n.items = make(map[int]*node)
		}
		c, ok := n.items[seg.index]
		if !ok {
			c = &node{}
			n.items[seg.index] = c
		}
		return c
	}
	if n.fields == nil {
		n.fields = make(map[string]*node)
	}
	c, ok := n.fields[seg.name]
	if !ok {
		c = &node{}
		n.fields[seg.name] = c
	}
	return c
}

func (n *node) materialize() any {
	if len(n.fields) == 0 && len(n.items) == 0 {
		if n.terminal {
			return cloneValue(n.value)
		}
		return nil
	}
	if len(n.fields) == 0 {
		idx := make([]int, 0, len(n.items))
		for i := range n.items {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		out := make([]any, 0, len(idx))
		for _, i := range idx {
			out = append(out, n.items[i].materialize())
		}
		return out
	}
	out := make(Record, len(n.fields)+len(n.items))
	for k, c := range n.fields {
		out[k] = c.materialize()
	}
	for i, c := range n.items {
		out[strconv.Itoa(i)] = c.materialize()
	}
	return out
}

// Unflatten rebuilds the nested record described by flat. An intermediate
// container becomes a list when its child segments are integer indexes and a
// record otherwise. Lists are rebuilt in index order without holes.
func Unflatten(flat Flat) Record {
	root := &node{}
	for path, v := range flat {
		segs := splitPath(path)
		if len(segs) == 0 {
			continue
		}
		cur := root
		for i, seg := range segs {
			cur = cur.child(seg, i == 0)
		}
		cur.value = v
		cur.terminal = true
	}
	if len(root.fields) == 0 {
		return Record{}
	}
	return root.materialize().(Record)
}
