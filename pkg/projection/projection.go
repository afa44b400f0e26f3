// Package projection reshapes result records: hiding paths, forcing paths to
// be shown and renaming paths.
package projection

import (
	"fmt"
	"sort"

	"github.com/nimburion/docstore/pkg/document"
)

// Action is what a rule does with its path.
type Action int

// Actions
const (
	Show Action = iota
	Hide
	Alias
)

func (a Action) String() string {
	switch a {
	case Show:
		return "show"
	case Hide:
		return "hide"
	case Alias:
		return "alias"
	}
	return "unknown"
}

// Rule applies one action to a path. As is the target name for Alias.
type Rule struct {
	Path   string
	Action Action
	As     string
}

// Spec is an ordered list of projection rules. The zero value leaves records
// unchanged.
type Spec struct {
	rules []Rule
}

// Show forces path to be present in the output.
func (s Spec) Show(path string) Spec { return s.with(Rule{Path: path, Action: Show}) }

// Hide removes path and everything below it.
func (s Spec) Hide(path string) Spec { return s.with(Rule{Path: path, Action: Hide}) }

// Alias moves path to as.
func (s Spec) Alias(path, as string) Spec {
	return s.with(Rule{Path: path, Action: Alias, As: as})
}

func (s Spec) with(r Rule) Spec {
	rules := make([]Rule, 0, len(s.rules)+1)
	rules = append(rules, s.rules...)
	return Spec{rules: append(rules, r)}
}

// Rules returns the rules in application order.
func (s Spec) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// IsEmpty reports whether s has no rules.
func (s Spec) IsEmpty() bool {
	return len(s.rules) == 0
}

// Parse builds a Spec from a raw mapping. 1 or true shows, 0 or false hides
// and a string aliases. Keys are applied in sorted order.
func Parse(raw map[string]any) (Spec, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var spec Spec
	for _, path := range keys {
		switch v := document.Normalize(raw[path]).(type) {
		case bool:
			if v {
				spec = spec.Show(path)
			} else {
				spec = spec.Hide(path)
			}
		case int64:
			switch v {
			case 1:
				spec = spec.Show(path)
			case 0:
				spec = spec.Hide(path)
			default:
				return Spec{}, fmt.Errorf("projection %q: unsupported value %d", path, v)
			}
		case float64:
			switch v {
			case 1:
				spec = spec.Show(path)
			case 0:
				spec = spec.Hide(path)
			default:
				return Spec{}, fmt.Errorf("projection %q: unsupported value %v", path, v)
			}
		case string:
			if v == "" {
				return Spec{}, fmt.Errorf("projection %q: empty alias", path)
			}
			spec = spec.Alias(path, v)
		default:
			return Spec{}, fmt.Errorf("projection %q: unsupported value of type %T", path, v)
		}
	}
	return spec, nil
}

// Apply returns the projected copy of r. r is never modified.
func (s Spec) Apply(r document.Record) document.Record {
	if len(s.rules) == 0 {
		return document.Clone(r)
	}
	if s.nested() {
		return s.applyFlat(r)
	}
	return s.applyTop(r)
}

func (s Spec) nested() bool {
	for _, rule := range s.rules {
		if document.IsNested(rule.Path) || (rule.Action == Alias && document.IsNested(rule.As)) {
			return true
		}
	}
	return false
}

// applyTop handles specs that only name top-level fields.
func (s Spec) applyTop(r document.Record) document.Record {
	out := make(document.Record, len(r))
	for k, v := range r {
		out[k] = v
	}

	for _, rule := range s.rules {
		if rule.Action != Alias {
			continue
		}
		if v, ok := r[rule.Path]; ok {
			out[rule.As] = v
		}
	}
	for _, rule := range s.rules {
		switch rule.Action {
		case Hide, Alias:
			if rule.Action == Alias && rule.As == rule.Path {
				continue
			}
			delete(out, rule.Path)
		}
	}
	for _, rule := range s.rules {
		if rule.Action != Show {
			continue
		}
		if v, ok := r[rule.Path]; ok {
			out[rule.Path] = v
		}
	}
	return document.Clone(out)
}

// applyFlat handles specs with nested paths through a flattened view.
func (s Spec) applyFlat(r document.Record) document.Record {
	src := document.Flatten(r)
	out := make(document.Flat, len(src))
	for k, v := range src {
		out[k] = v
	}

	for _, rule := range s.rules {
		if rule.Action != Alias {
			continue
		}
		for path, v := range subtree(src, r, rule.Path) {
			out[rule.As+path[len(rule.Path):]] = v
		}
	}
	for _, rule := range s.rules {
		switch rule.Action {
		case Hide, Alias:
			if rule.Action == Alias && rule.As == rule.Path {
				continue
			}
			for path := range out {
				if document.HasPathPrefix(path, rule.Path) {
					delete(out, path)
				}
			}
		}
	}
	for _, rule := range s.rules {
		if rule.Action != Show {
			continue
		}
		for path, v := range subtree(src, r, rule.Path) {
			out[path] = v
		}
	}
	return document.Unflatten(out)
}

// subtree returns the flat entries at or below prefix. A prefix that
// addresses a terminal inside an opaque value is resolved through Lookup.
func subtree(flat document.Flat, r document.Record, prefix string) document.Flat {
	sub := document.Flat{}
	for path, v := range flat {
		if document.HasPathPrefix(path, prefix) {
			sub[path] = v
		}
	}
	if len(sub) == 0 {
		if v, ok := document.Lookup(r, prefix); ok {
			sub[prefix] = v
		}
	}
	return sub
}

// ApplyAll projects every record of rs.
func (s Spec) ApplyAll(rs []document.Record) []document.Record {
	out := make([]document.Record, len(rs))
	for i, r := range rs {
		out[i] = s.Apply(r)
	}
	return out
}
