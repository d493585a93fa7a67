package rowquery

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Placeholder styles.
const (
	// Question emits "?" placeholders (SQLite).
	Question = iota
	// Dollar emits "$1, $2, ..." placeholders (Postgres).
	Dollar
)

// ErrMissingTenant is returned for a Select without a tenant scope.
var ErrMissingTenant = errors.New("rowquery: select has no tenant")

var identRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Compiler turns queries into parameterized SQL.
//
// CRITICAL: every query includes the tenant filter and an ORDER BY ending in
// a unique tiebreaker, so results are identical across runs.
type Compiler struct {
	style int
}

// NewCompiler returns a compiler for the given placeholder style.
func NewCompiler(style int) *Compiler {
	return &Compiler{style: style}
}

// Compile converts q to SQL and its parameters.
func (c *Compiler) Compile(q Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	switch query := q.(type) {
	case Select:
		return c.compileSelect(query)
	case *Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// Compile compiles q with "?" placeholders.
func Compile(q Query) (string, []any, error) {
	return NewCompiler(Question).Compile(q)
}

func (c *Compiler) compileSelect(q Select) (string, []any, error) {
	if err := checkIdent("table", q.From); err != nil {
		return "", nil, err
	}
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select from %s: no columns", q.From)
	}
	for _, col := range q.Columns {
		if err := checkIdent("column", col); err != nil {
			return "", nil, err
		}
	}
	if q.Tenant == "" && !q.Shared {
		return "", nil, fmt.Errorf("select from %s: %w", q.From, ErrMissingTenant)
	}
	if q.Tenant != "" && q.Shared {
		return "", nil, fmt.Errorf("select from %s: tenant and shared scope are exclusive", q.From)
	}

	b := &builder{style: c.style}
	where := "tenant_id = " + b.param(string(q.Tenant))
	if q.Filter != nil {
		sql, err := b.predicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + sql
	}

	order, err := stableOrder(q, c.collate())
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(q.Columns, ", "), q.From, where, order)
	return sql, b.params, nil
}

// collate is appended to the tiebreaker. Postgres has no BINARY collation and
// its default byte ordering on the unique key is already total.
func (c *Compiler) collate() string {
	if c.style == Dollar {
		return ""
	}
	return " COLLATE BINARY"
}

// stableOrder renders ORDER BY terms followed by the tiebreaker, unless the
// tiebreaker is already the last term.
func stableOrder(q Select, collate string) (string, error) {
	tie := q.Tiebreaker
	if tie == "" {
		tie = "id"
	}
	if err := checkIdent("tiebreaker", tie); err != nil {
		return "", err
	}

	var parts []string
	for _, o := range q.OrderBy {
		if err := checkIdent("order column", o.Column); err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, o.Column+" "+dir)
	}
	if n := len(parts); n > 0 && q.OrderBy[n-1].Column == tie {
		parts[n-1] += collate
	} else {
		parts = append(parts, tie+" ASC"+collate)
	}
	return strings.Join(parts, ", "), nil
}

type builder struct {
	style  int
	params []any
}

func (b *builder) param(v any) string {
	b.params = append(b.params, v)
	if b.style == Dollar {
		return fmt.Sprintf("$%d", len(b.params))
	}
	return "?"
}

func (b *builder) predicate(p Predicate) (string, error) {
	switch pred := p.(type) {
	case Equals:
		return b.equals(pred)
	case *Equals:
		return b.equals(*pred)
	case In:
		return b.in(pred)
	case *In:
		return b.in(*pred)
	case And:
		return b.and(pred)
	case *And:
		return b.and(*pred)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (b *builder) equals(eq Equals) (string, error) {
	if err := checkIdent("column", eq.Column); err != nil {
		return "", err
	}
	v, err := param(eq.Value)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", eq.Column, err)
	}
	return eq.Column + " = " + b.param(v), nil
}

func (b *builder) in(in In) (string, error) {
	if err := checkIdent("column", in.Column); err != nil {
		return "", err
	}
	if len(in.Values) == 0 {
		return "1 = 0", nil
	}
	marks := make([]string, len(in.Values))
	for i, raw := range in.Values {
		v, err := param(raw)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", in.Column, err)
		}
		marks[i] = b.param(v)
	}
	return in.Column + " IN (" + strings.Join(marks, ", ") + ")", nil
}

func (b *builder) and(and And) (string, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil
	}
	parts := make([]string, 0, len(and.Predicates))
	for _, p := range and.Predicates {
		sql, err := b.predicate(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

// param normalizes a predicate value to a driver parameter.
func param(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		return val, nil
	case bool:
		return val, nil
	default:
		// Named string types such as domain.Status or domain.TenantID.
		if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.String {
			return rv.String(), nil
		}
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func checkIdent(kind, name string) error {
	if !identRE.MatchString(name) {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}
