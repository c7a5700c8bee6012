package postgres

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	pq "github.com/lib/pq"

	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/remote"
)

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// args accumulates positional parameters.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func buildList(table, owner string, f remote.Filter, order []remote.Order) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	var a args
	where, err := buildWhere(&a, owner, f)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT row_to_json(t) FROM %s t WHERE %s", pq.QuoteIdentifier(table), where)
	if len(order) > 0 {
		parts := make([]string, 0, len(order))
		for _, o := range order {
			if !columnPattern.MatchString(o.Field) {
				return "", nil, fmt.Errorf("%w: invalid order column %q", remote.ErrRejected, o.Field)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, fmt.Sprintf("t.%s %s NULLS LAST", pq.QuoteIdentifier(o.Field), dir))
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	return b.String(), a, nil
}

func buildDeleteWhere(table, owner string, f remote.Filter) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	var a args
	where, err := buildWhere(&a, owner, f)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s t WHERE %s", pq.QuoteIdentifier(table), where), a, nil
}

func buildInsert(table, owner string, fields remote.Fields) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	cols, err := sortedColumns(fields)
	if err != nil {
		return "", nil, err
	}

	var a args
	names := []string{`"id"`, `"user_id"`}
	values := []string{"gen_random_uuid()::text", a.add(owner)}
	for _, c := range cols {
		names = append(names, pq.QuoteIdentifier(c))
		values = append(values, a.add(sqlValue(fields[c])))
	}

	query := fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES (%s) RETURNING row_to_json(t)",
		pq.QuoteIdentifier(table), strings.Join(names, ", "), strings.Join(values, ", "))
	return query, a, nil
}

func buildUpdate(table, owner, id string, fields remote.Fields) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	cols, err := sortedColumns(fields)
	if err != nil {
		return "", nil, err
	}

	var a args
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = %s", pq.QuoteIdentifier(c), a.add(sqlValue(fields[c]))))
	}
	sets = append(sets, `"updated_at" = now()`)

	query := fmt.Sprintf(`UPDATE %s AS t SET %s WHERE t."id" = %s AND t."user_id" = %s RETURNING row_to_json(t)`,
		pq.QuoteIdentifier(table), strings.Join(sets, ", "), a.add(id), a.add(owner))
	return query, a, nil
}

func buildWhere(a *args, owner string, f remote.Filter) (string, error) {
	if err := f.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", remote.ErrRejected, err)
	}

	clauses := []string{`t."user_id" = ` + a.add(owner)}
	for _, p := range f {
		col := "t." + pq.QuoteIdentifier(p.Field)
		switch p.Op {
		case remote.OpEq:
			clauses = append(clauses, col+" = "+a.add(p.Value))
		case remote.OpNeq:
			clauses = append(clauses, col+" <> "+a.add(p.Value))
		case remote.OpGt:
			clauses = append(clauses, col+" > "+a.add(p.Value))
		case remote.OpGte:
			clauses = append(clauses, col+" >= "+a.add(p.Value))
		case remote.OpLt:
			clauses = append(clauses, col+" < "+a.add(p.Value))
		case remote.OpLte:
			clauses = append(clauses, col+" <= "+a.add(p.Value))
		case remote.OpIn:
			if len(p.Values) == 0 {
				clauses = append(clauses, "FALSE")
				continue
			}
			ph := make([]string, len(p.Values))
			for i, v := range p.Values {
				ph[i] = a.add(v)
			}
			clauses = append(clauses, col+" IN ("+strings.Join(ph, ", ")+")")
		case remote.OpIsNull:
			if p.Value.(bool) {
				clauses = append(clauses, col+" IS NULL")
			} else {
				clauses = append(clauses, col+" IS NOT NULL")
			}
		}
	}
	return strings.Join(clauses, " AND "), nil
}

func sortedColumns(fields remote.Fields) ([]string, error) {
	cols := make([]string, 0, len(fields))
	for k := range fields {
		if !columnPattern.MatchString(k) {
			return nil, fmt.Errorf("%w: invalid column %q", remote.ErrRejected, k)
		}
		if slices.Contains(models.ServerFields, k) {
			continue
		}
		cols = append(cols, k)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no columns to write", remote.ErrRejected)
	}
	sort.Strings(cols)
	return cols, nil
}

// sqlValue adapts decoded JSON values for lib/pq. Arrays become postgres
// array literals; nested objects are sent as JSON text.
func sqlValue(v any) any {
	switch val := v.(type) {
	case []int:
		return pq.Array(val)
	case []string:
		return pq.Array(val)
	case []any:
		allStrings := true
		for _, e := range val {
			if _, ok := e.(string); !ok {
				allStrings = false
				break
			}
		}
		if allStrings {
			out := make([]string, len(val))
			for i, e := range val {
				out[i] = e.(string)
			}
			return pq.StringArray(out)
		}
		out := make([]float64, 0, len(val))
		for _, e := range val {
			if n, ok := e.(float64); ok {
				out = append(out, n)
			}
		}
		return pq.Float64Array(out)
	case map[string]any:
		data, _ := json.Marshal(val)
		return string(data)
	}
	return v
}
