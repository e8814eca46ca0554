package storage

// Op is a filter comparison operator.
type Op string

const (
	OpEq      Op = "eq"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Filter restricts a query to rows where Column satisfies Op.
type Filter struct {
	Column string
	Op     Op
	Value  any
	// Values is used by OpIn.
	Values []any
}

func Eq(col string, v any) Filter  { return Filter{Column: col, Op: OpEq, Value: v} }
func Gte(col string, v any) Filter { return Filter{Column: col, Op: OpGte, Value: v} }
func Lt(col string, v any) Filter  { return Filter{Column: col, Op: OpLt, Value: v} }
func In(col string, vs []any) Filter {
	return Filter{Column: col, Op: OpIn, Values: vs}
}
func IsNull(col string) Filter  { return Filter{Column: col, Op: OpIsNull} }
func NotNull(col string) Filter { return Filter{Column: col, Op: OpNotNull} }

// Query describes a select. Empty Columns selects every column.
// Limit <= 0 means no limit.
type Query struct {
	Columns []string
	Filters []Filter
	OrderBy []string
	Offset  int
	Limit   int
}
