// Package query evaluates filters for the bundled collection adapters.
//
// Top-level keys are dotted field paths. A plain value means equality; an
// array field also matches when one of its elements is equal. Operator
// objects support $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists and
// $glob. The top-level $expr key holds an expr-lang boolean expression
// evaluated against the document; $and and $or combine sub-filters.
package query

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aretw0/silo/pkg/core"
	"github.com/aretw0/silo/pkg/diff"
	"github.com/aretw0/silo/pkg/pointer"
)

// Matcher evaluates filters. Compiled $expr programs are cached.
// A Matcher is safe for concurrent use.
type Matcher struct {
	programs sync.Map // string -> *vm.Program
}

// NewMatcher creates a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

var defaultMatcher = NewMatcher()

// Match reports whether doc satisfies filter using a shared Matcher.
func Match(filter core.Filter, doc core.Document) (bool, error) {
	return defaultMatcher.Match(filter, doc)
}

// Match reports whether doc satisfies filter. An empty filter matches everything.
func (m *Matcher) Match(filter core.Filter, doc core.Document) (bool, error) {
	// deterministic evaluation order keeps error reporting stable
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		cond := filter[key]
		var (
			ok  bool
			err error
		)
		switch key {
		case "$expr":
			ok, err = m.evalExpr(cond, doc)
		case "$and":
			ok, err = m.all(cond, doc)
		case "$or":
			ok, err = m.any(cond, doc)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported top-level operator %q", key)
			}
			ok, err = m.field(key, cond, doc)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func subFilters(cond any) ([]core.Filter, error) {
	list, ok := cond.([]any)
	if !ok {
		if typed, ok := cond.([]core.Filter); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("expected a list of filters, got %T", cond)
	}
	out := make([]core.Filter, 0, len(list))
	for _, item := range list {
		f, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a filter, got %T", item)
		}
		out = append(out, f)
	}
	return out, nil
}

func (m *Matcher) all(cond any, doc core.Document) (bool, error) {
	filters, err := subFilters(cond)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := m.Match(f, doc)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) any(cond any, doc core.Document) (bool, error) {
	filters, err := subFilters(cond)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := m.Match(f, doc)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) evalExpr(cond any, doc core.Document) (bool, error) {
	src, ok := cond.(string)
	if !ok {
		return false, fmt.Errorf("$expr expects a string, got %T", cond)
	}

	var program *vm.Program
	if cached, ok := m.programs.Load(src); ok {
		program = cached.(*vm.Program)
	} else {
		compiled, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return false, fmt.Errorf("invalid $expr: %w", err)
		}
		m.programs.Store(src, compiled)
		program = compiled
	}

	env := map[string]any(doc)
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("$expr evaluation failed: %w", err)
	}
	b, _ := out.(bool)
	return b, nil
}

func (m *Matcher) field(path string, cond any, doc core.Document) (bool, error) {
	p, err := pointer.Parse(path)
	if err != nil {
		return false, err
	}
	value, exists := p.Get(doc)

	ops, isOps := operators(cond)
	if !isOps {
		return equalOrContains(value, exists, cond), nil
	}

	for _, op := range sortedOps(ops) {
		arg := ops[op]
		ok, err := apply(op, arg, value, exists)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// operators returns cond as an operator object when every key starts with '$'.
func operators(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func sortedOps(ops map[string]any) []string {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func apply(op string, arg, value any, exists bool) (bool, error) {
	switch op {
	case "$eq":
		return equalOrContains(value, exists, arg), nil
	case "$ne":
		return !equalOrContains(value, exists, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !exists {
			return false, nil
		}
		c, ok := Compare(value, arg)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "$in", "$nin":
		list, ok := arg.([]any)
		if !ok {
			return false, fmt.Errorf("%s expects a list, got %T", op, arg)
		}
		found := false
		for _, candidate := range list {
			if equalOrContains(value, exists, candidate) {
				found = true
				break
			}
		}
		if op == "$in" {
			return found, nil
		}
		return !found, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false, fmt.Errorf("$exists expects a bool, got %T", arg)
		}
		return exists == want, nil
	case "$glob":
		pattern, ok := arg.(string)
		if !ok {
			return false, fmt.Errorf("$glob expects a string, got %T", arg)
		}
		if !doublestar.ValidatePattern(pattern) {
			return false, fmt.Errorf("invalid $glob pattern %q", pattern)
		}
		s, ok := value.(string)
		if !exists || !ok {
			return false, nil
		}
		matched, err := doublestar.Match(pattern, s)
		if err != nil {
			return false, fmt.Errorf("invalid $glob pattern %q: %w", pattern, err)
		}
		return matched, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func equalOrContains(value any, exists bool, want any) bool {
	if !exists {
		return want == nil
	}
	if diff.Equal(value, want) {
		return true
	}
	if arr, ok := value.([]any); ok {
		for _, e := range arr {
			if diff.Equal(e, want) {
				return true
			}
		}
	}
	return false
}

// Compare orders two scalar values of the same family (numbers, strings,
// booleans, instants). ok is false when they are not comparable.
func Compare(a, b any) (c int, ok bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		return cmpOrdered(af, bf), true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
