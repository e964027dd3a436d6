// Package filter builds boolean predicate trees for listing queries and
// renders them to SQL. Handlers compose criteria into a Node; the database
// layer supplies the logical-field→column mapping when rendering, so filter
// semantics stay independent of any particular table layout.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Op is a field comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGte      Op = "gte"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// Node is a node of the predicate tree: a field comparison or a
// logical combination of other nodes.
type Node interface {
	node()
}

// Cmp compares a logical field against a value.
type Cmp struct {
	Field string
	Op    Op
	Value any
}

type andNode struct{ left, right Node }
type orNode struct{ left, right Node }
type notNode struct{ inner Node }

func (Cmp) node()     {}
func (andNode) node() {}
func (orNode) node()  {}
func (notNode) node() {}

// Eq matches field = value.
func Eq(field string, value any) Node { return Cmp{Field: field, Op: OpEq, Value: value} }

// Ne matches field <> value.
func Ne(field string, value any) Node { return Cmp{Field: field, Op: OpNe, Value: value} }

// Gte matches field >= value.
func Gte(field string, value any) Node { return Cmp{Field: field, Op: OpGte, Value: value} }

// Lte matches field <= value.
func Lte(field string, value any) Node { return Cmp{Field: field, Op: OpLte, Value: value} }

// In matches field against any of the given values.
func In(field string, values ...any) Node { return Cmp{Field: field, Op: OpIn, Value: values} }

// Contains matches a case-insensitive substring of a text field.
func Contains(field, substr string) Node {
	return Cmp{Field: field, Op: OpContains, Value: substr}
}

// And combines two nodes conjunctively. A nil side is treated as the
// neutral element, so predicates can be accumulated left to right the
// way optional criteria arrive.
func And(left, right Node) Node {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return andNode{left: left, right: right}
}

// Or combines two nodes disjunctively. A nil side is treated as the
// neutral element.
func Or(left, right Node) Node {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return orNode{left: left, right: right}
}

// Not negates a node. Not(nil) is nil.
func Not(inner Node) Node {
	if inner == nil {
		return nil
	}
	return notNode{inner: inner}
}

// ToSQL renders the tree as a parenthesized SQL boolean expression with
// $n placeholders starting at start. columns maps logical field names to
// column expressions; an unmapped field is an error rather than a silent
// pass-through. A nil node renders as "TRUE" with no args.
func ToSQL(n Node, columns map[string]string, start int) (string, []any, error) {
	if n == nil {
		return "TRUE", nil, nil
	}
	r := &renderer{columns: columns, next: start}
	expr, err := r.render(n)
	if err != nil {
		return "", nil, err
	}
	return expr, r.args, nil
}

type renderer struct {
	columns map[string]string
	args    []any
	next    int
}

func (r *renderer) placeholder(v any) string {
	r.args = append(r.args, sqlValue(v))
	p := fmt.Sprintf("$%d", r.next)
	r.next++
	return p
}

func (r *renderer) render(n Node) (string, error) {
	switch t := n.(type) {
	case Cmp:
		return r.renderCmp(t)
	case andNode:
		l, err := r.render(t.left)
		if err != nil {
			return "", err
		}
		rr, err := r.render(t.right)
		if err != nil {
			return "", err
		}
		return "(" + l + " AND " + rr + ")", nil
	case orNode:
		l, err := r.render(t.left)
		if err != nil {
			return "", err
		}
		rr, err := r.render(t.right)
		if err != nil {
			return "", err
		}
		return "(" + l + " OR " + rr + ")", nil
	case notNode:
		inner, err := r.render(t.inner)
		if err != nil {
			return "", err
		}
		return "NOT " + inner, nil
	}
	return "", fmt.Errorf("filter: unknown node type %T", n)
}

// UnknownFieldError marks a predicate referencing a field the target
// query does not expose. Handlers map it to a client error.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("filter: unknown field %q", e.Field)
}

// IsUnknownField reports whether err is an UnknownFieldError.
func IsUnknownField(err error) bool {
	var ufe *UnknownFieldError
	return errors.As(err, &ufe)
}

func (r *renderer) renderCmp(c Cmp) (string, error) {
	col, ok := r.columns[c.Field]
	if !ok {
		return "", &UnknownFieldError{Field: c.Field}
	}
	switch c.Op {
	case OpEq:
		return col + " = " + r.placeholder(c.Value), nil
	case OpNe:
		return col + " <> " + r.placeholder(c.Value), nil
	case OpGte:
		return col + " >= " + r.placeholder(c.Value), nil
	case OpLte:
		return col + " <= " + r.placeholder(c.Value), nil
	case OpIn:
		values, ok := c.Value.([]any)
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("filter: IN on %q requires at least one value", c.Field)
		}
		holders := make([]string, len(values))
		for i, v := range values {
			holders[i] = r.placeholder(v)
		}
		return col + " IN (" + strings.Join(holders, ", ") + ")", nil
	case OpContains:
		s, ok := c.Value.(string)
		if !ok {
			return "", fmt.Errorf("filter: CONTAINS on %q requires a string value", c.Field)
		}
		return col + " ILIKE " + r.placeholder("%"+escapeLike(s)+"%"), nil
	}
	return "", fmt.Errorf("filter: unknown operator %q", c.Op)
}

// sqlValue converts AST values into types pgx encodes natively.
// Money stays decimal in the tree and becomes numeric at the boundary.
func sqlValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		var n pgtype.Numeric
		_ = n.Scan(d.String())
		return n
	}
	return v
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
