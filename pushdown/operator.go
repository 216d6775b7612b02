package pushdown

import "fmt"

type BinaryOperator int

const (
	BinOpInvalid BinaryOperator = iota
	BinOpEqual
	BinOpNotEqual
	BinOpGreater
	BinOpGreaterEqual
	BinOpLower
	BinOpLowerEqual
)

func (o BinaryOperator) String() string {
	switch o {
	case BinOpEqual:
		return "="
	case BinOpNotEqual:
		return "!="
	case BinOpGreater:
		return ">"
	case BinOpGreaterEqual:
		return ">="
	case BinOpLower:
		return "<"
	case BinOpLowerEqual:
		return "<="
	}
	return fmt.Sprintf("[!UNKNOWN BinaryOperator %d]", o)
}

// IsComparisonOperator returns true for the operators >, >=, < and <=. The =
// and != operators are equality but not comparison operators.
func (o BinaryOperator) IsComparisonOperator() bool {
	return o == BinOpGreater || o == BinOpGreaterEqual || o == BinOpLower || o == BinOpLowerEqual
}

// Column names the fixed relational columns a filter can reference. Tag
// predicates additionally carry the tag key.
type Column int

const (
	ColumnInvalid Column = iota
	ColumnID
	ColumnKind
	ColumnTag
)

func (c Column) String() string {
	switch c {
	case ColumnID:
		return "id"
	case ColumnKind:
		return "kind"
	case ColumnTag:
		return "tags"
	}
	return fmt.Sprintf("[!UNKNOWN Column %d]", c)
}
