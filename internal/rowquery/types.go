// Package rowquery is a small select IR for tenant-scoped row reads.
//
// Every Select carries the tenant it reads for. The compiler always emits the
// tenant filter and a deterministic ORDER BY, so callers cannot forget either.
// Values are always parameterized, never interpolated into the SQL text.
package rowquery

import "github.com/roach88/galley/internal/domain"

// Query is a compilable query.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate is a filter condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: column = value
//   - In: column IN (values...)
//   - And: all predicates must be true
type Predicate interface {
	predicateNode()
}

// Select reads rows of one table for one tenant.
//
//	SELECT <columns> FROM <from>
//	WHERE tenant_id = ? [AND <filter>]
//	ORDER BY <order by...>, <tiebreaker> ASC COLLATE BINARY
//
// Columns must be explicit (no SELECT *). Tiebreaker defaults to "id".
// An empty Tenant is rejected at compile time except when Shared is set,
// which reads the shared template scope (tenant_id = '').
type Select struct {
	From    string
	Columns []string
	Tenant  domain.TenantID
	Shared  bool
	Filter  Predicate
	OrderBy []Order

	// Tiebreaker names the column that makes the ordering total.
	Tiebreaker string
}

func (Select) queryNode() {}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Equals matches rows whose column equals Value.
// Value must be a string, integer, float, or bool.
type Equals struct {
	Column string
	Value  any
}

func (Equals) predicateNode() {}

// In matches rows whose column equals any of Values. An empty In matches
// nothing.
type In struct {
	Column string
	Values []any
}

func (In) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Strings converts ids for use in In.Values.
func Strings(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
