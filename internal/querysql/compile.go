// Package querysql compiles query predicates to parameterized SQLite over the
// JSON document table.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/query"
)

// SQLCompiler compiles predicates into SELECT statements over a document table
// with (collection, id, body) columns.
//
// Every statement is ordered by id with COLLATE BINARY so results are
// deterministic, and every value is bound as a parameter.
type SQLCompiler struct {
	Table string
}

// NewSQLCompiler creates a compiler for the given document table.
func NewSQLCompiler(table string) *SQLCompiler {
	return &SQLCompiler{Table: table}
}

// Compile converts a predicate scoped to one collection into
// (sql, params, error). The statement selects id and body.
func (c *SQLCompiler) Compile(collection string, p query.Predicate) (string, []any, error) {
	if err := query.Validate(p); err != nil {
		return "", nil, fmt.Errorf("invalid predicate: %w", err)
	}

	where, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT id, body FROM %s WHERE collection = ? AND %s ORDER BY %s",
		c.Table, where, stableOrderKey())

	return sql, append([]any{collection}, params...), nil
}

// stableOrderKey is the ORDER BY clause every statement ends with.
func stableOrderKey() string {
	return "id ASC COLLATE BINARY"
}

func (c *SQLCompiler) compilePredicate(p query.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case query.Eq:
		return c.compileEq(pred)
	case *query.Eq:
		return c.compileEq(*pred)
	case query.Contains:
		return c.compileContains(pred)
	case *query.Contains:
		return c.compileContains(*pred)
	case query.And:
		return c.compileAnd(pred)
	case *query.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEq checks the JSON type before the value so Int never matches Bool
// or Float, mirroring ir.Equal.
func (c *SQLCompiler) compileEq(eq query.Eq) (string, []any, error) {
	path, err := jsonPath(eq.Path)
	if err != nil {
		return "", nil, err
	}

	typ, param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("eq %q: %w", eq.Path, err)
	}

	if param == nil {
		return "json_type(body, ?) = ?", []any{path, typ}, nil
	}
	return "(json_type(body, ?) = ? AND json_extract(body, ?) = ?)",
		[]any{path, typ, path, param}, nil
}

func (c *SQLCompiler) compileContains(ct query.Contains) (string, []any, error) {
	path, err := jsonPath(ct.Path)
	if err != nil {
		return "", nil, err
	}

	typ, param, err := valueToParam(ct.Value)
	if err != nil {
		return "", nil, fmt.Errorf("contains %q: %w", ct.Path, err)
	}

	elem := "je.type = ?"
	elemParams := []any{typ}
	if param != nil {
		elem += " AND je.value = ?"
		elemParams = append(elemParams, param)
	}

	sql := "(json_type(body, ?) = 'array' AND EXISTS (SELECT 1 FROM json_each(body, ?) AS je WHERE " + elem + "))"
	return sql, append([]any{path, path}, elemParams...), nil
}

func (c *SQLCompiler) compileAnd(and query.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any

	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return "(" + strings.Join(sqlParts, " AND ") + ")", allParams, nil
}

// jsonPath converts a dotted field path to a SQLite JSON path.
// Example: "author.name" -> $."author"."name", "tags.0" -> $."tags"[0]
func jsonPath(path string) (string, error) {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return "", fmt.Errorf("path %q: empty segment", path)
		}
		if strings.ContainsAny(seg, `"[]`) {
			return "", fmt.Errorf("path %q: segment %q contains reserved characters", path, seg)
		}
		if i, err := strconv.Atoi(seg); err == nil && i >= 0 {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString(`."` + seg + `"`)
	}
	return b.String(), nil
}

// valueToParam returns the SQLite JSON type name for v and, for types that
// carry a payload, the bound parameter. Null and booleans are matched on type alone.
func valueToParam(v ir.Value) (string, any, error) {
	switch val := v.(type) {
	case ir.String:
		return "text", string(val), nil
	case ir.Int:
		return "integer", int64(val), nil
	case ir.Float:
		return "real", float64(val), nil
	case ir.Bool:
		if val {
			return "true", nil, nil
		}
		return "false", nil, nil
	case ir.Null:
		return "null", nil, nil
	case ir.Array, ir.Object:
		return "", nil, fmt.Errorf("%T cannot be used as SQL parameter", v)
	default:
		return "", nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
