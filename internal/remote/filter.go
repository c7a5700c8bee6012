package remote

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Op is a comparison operator. Every operator has both a remote encoding
// and an exact local evaluator (Match), so cache fallbacks filter rows the
// same way the remote would.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpIn     Op = "in"
	OpIsNull Op = "is"
)

// Predicate compares one column. For OpIn, Values holds the candidates.
// For OpIsNull, Value is a bool: true matches null, false matches non-null.
// Comparisons against a missing or null column never match, as in SQL.
type Predicate struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Filter is a conjunction of predicates. The empty filter matches all rows.
type Filter []Predicate

func Eq(field string, v any) Predicate  { return Predicate{Field: field, Op: OpEq, Value: v} }
func Neq(field string, v any) Predicate { return Predicate{Field: field, Op: OpNeq, Value: v} }
func Gt(field string, v any) Predicate  { return Predicate{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Predicate { return Predicate{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Predicate  { return Predicate{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Predicate { return Predicate{Field: field, Op: OpLte, Value: v} }
func IsNull(field string) Predicate     { return Predicate{Field: field, Op: OpIsNull, Value: true} }
func NotNull(field string) Predicate    { return Predicate{Field: field, Op: OpIsNull, Value: false} }

func In[V any](field string, values ...V) Predicate {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Predicate{Field: field, Op: OpIn, Values: vs}
}

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks column names and operand types.
func (f Filter) Validate() error {
	for _, p := range f {
		if !fieldPattern.MatchString(p.Field) {
			return fmt.Errorf("invalid filter field %q", p.Field)
		}
		switch p.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
			if !isScalar(p.Value) {
				return fmt.Errorf("filter %s.%s: unsupported operand %T", p.Field, p.Op, p.Value)
			}
		case OpIn:
			for _, v := range p.Values {
				if !isScalar(v) {
					return fmt.Errorf("filter %s.in: unsupported operand %T", p.Field, v)
				}
			}
		case OpIsNull:
			if _, ok := p.Value.(bool); !ok {
				return fmt.Errorf("filter %s.is: operand must be bool", p.Field)
			}
		default:
			return fmt.Errorf("filter %s: unknown operator %q", p.Field, p.Op)
		}
	}
	return nil
}

// Match evaluates the filter against one JSON row.
func (f Filter) Match(row json.RawMessage) bool {
	for _, p := range f {
		if !p.Match(row) {
			return false
		}
	}
	return true
}

// Apply returns the rows that match f, preserving order.
func (f Filter) Apply(rows []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f Filter) String() string {
	parts := make([]string, len(f))
	for i, p := range f {
		if p.Op == OpIn {
			parts[i] = fmt.Sprintf("%s=in.%v", p.Field, p.Values)
		} else {
			parts[i] = fmt.Sprintf("%s=%s.%v", p.Field, p.Op, p.Value)
		}
	}
	return strings.Join(parts, "&")
}

func (p Predicate) Match(row json.RawMessage) bool {
	res := gjson.GetBytes(row, escapePath(p.Field))
	null := !res.Exists() || res.Type == gjson.Null

	switch p.Op {
	case OpIsNull:
		want, _ := p.Value.(bool)
		return null == want
	case OpIn:
		if null {
			return false
		}
		for _, v := range p.Values {
			if c, ok := compare(res, v); ok && c == 0 {
				return true
			}
		}
		return false
	}

	if null {
		return false
	}
	c, ok := compare(res, p.Value)
	if !ok {
		return false
	}
	switch p.Op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// compare orders a JSON value against a Go operand. Numbers compare
// numerically, strings lexically (which orders YYYY-MM-DD dates), bools as
// false < true. ok is false for mismatched kinds.
func compare(res gjson.Result, v any) (int, bool) {
	switch val := v.(type) {
	case string:
		if res.Type != gjson.String {
			return 0, false
		}
		return strings.Compare(res.Str, val), true
	case bool:
		if res.Type != gjson.True && res.Type != gjson.False {
			return 0, false
		}
		return cmpBool(res.Bool(), val), true
	default:
		n, ok := toFloat(v)
		if !ok || res.Type != gjson.Number {
			return 0, false
		}
		return cmpFloat(res.Num, n), true
	}
}

// SortRows orders rows by the given columns using the same comparison rules
// as Match. Rows missing a column sort last.
func SortRows(rows []json.RawMessage, order []Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			path := escapePath(o.Field)
			a, b := gjson.GetBytes(rows[i], path), gjson.GetBytes(rows[j], path)
			c := compareResults(a, b)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareResults(a, b gjson.Result) int {
	aNull := !a.Exists() || a.Type == gjson.Null
	bNull := !b.Exists() || b.Type == gjson.Null
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return 1
	case bNull:
		return -1
	}
	if a.Type == gjson.Number && b.Type == gjson.Number {
		return cmpFloat(a.Num, b.Num)
	}
	return strings.Compare(a.String(), b.String())
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat(v)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
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

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// escapePath guards gjson path syntax; column names are plain identifiers
// but gjson treats '.', '*', '?' specially.
func escapePath(field string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(field)
}
