package strategy

import "strings"

// Operator is a compare block's relation.
type Operator int

const (
	OpGT Operator = iota
	OpLT
	OpGTE
	OpLTE
	OpEQ
	OpNEQ
)

var operatorByName = map[string]Operator{
	">": OpGT, "gt": OpGT, "greater_than": OpGT,
	"<": OpLT, "lt": OpLT, "less_than": OpLT,
	">=": OpGTE, "gte": OpGTE, "ge": OpGTE,
	"<=": OpLTE, "lte": OpLTE, "le": OpLTE,
	"==": OpEQ, "=": OpEQ, "eq": OpEQ, "equals": OpEQ,
	"!=": OpNEQ, "<>": OpNEQ, "neq": OpNEQ, "ne": OpNEQ,
}

// ParseOperator accepts symbols and their word aliases.
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorByName[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

func (op Operator) Apply(a, b float64) bool {
	switch op {
	case OpGT:
		return a > b
	case OpLT:
		return a < b
	case OpGTE:
		return a >= b
	case OpLTE:
		return a <= b
	case OpEQ:
		return a == b
	case OpNEQ:
		return a != b
	default:
		return false
	}
}

func (op Operator) String() string {
	switch op {
	case OpGT:
		return ">"
	case OpLT:
		return "<"
	case OpGTE:
		return ">="
	case OpLTE:
		return "<="
	case OpEQ:
		return "=="
	case OpNEQ:
		return "!="
	default:
		return "?"
	}
}
