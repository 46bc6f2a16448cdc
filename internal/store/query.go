package store

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type op string

const (
	opEq     op = "="
	opNeq    op = "<>"
	opIn     op = "IN"
	opGte    op = ">="
	opGt     op = ">"
	opLte    op = "<="
	opLt     op = "<"
	opIsNull op = "IS NULL"
	opLike   op = "LIKE"
)

type cond struct {
	field string
	op    op
	value any
}

type order struct {
	field string
	desc  bool
}

// Query is an immutable filter, ordering and page description. Every builder
// method returns a modified copy.
type Query struct {
	conds  []cond
	orders []order
	limit  int
	offset int
	err    error
}

// All matches every row.
func All() Query { return Query{} }

// Where starts a query with an equality condition.
func Where(field string, value any) Query { return Query{}.Eq(field, value) }

func (q Query) with(field string, o op, value any) Query {
	if !fieldPattern.MatchString(field) {
		q.err = fmt.Errorf("store: invalid field %q", field)
		return q
	}
	q.conds = append(append([]cond(nil), q.conds...), cond{field: field, op: o, value: value})
	return q
}

func (q Query) Eq(field string, value any) Query  { return q.with(field, opEq, value) }
func (q Query) Neq(field string, value any) Query { return q.with(field, opNeq, value) }
func (q Query) Gte(field string, value any) Query { return q.with(field, opGte, value) }
func (q Query) Gt(field string, value any) Query  { return q.with(field, opGt, value) }
func (q Query) Lte(field string, value any) Query { return q.with(field, opLte, value) }
func (q Query) Lt(field string, value any) Query  { return q.with(field, opLt, value) }
func (q Query) IsNull(field string) Query         { return q.with(field, opIsNull, nil) }

// In matches any of values. An empty slice matches nothing.
func (q Query) In(field string, values any) Query { return q.with(field, opIn, values) }

// Contains is a case-sensitive substring match.
func (q Query) Contains(field, substr string) Query {
	return q.with(field, opLike, "%"+escapeLike(substr)+"%")
}

// OrderBy appends an ascending sort.
func (q Query) OrderBy(field string) Query { return q.sort(field, false) }

// OrderByDesc appends a descending sort.
func (q Query) OrderByDesc(field string) Query { return q.sort(field, true) }

func (q Query) sort(field string, desc bool) Query {
	if !fieldPattern.MatchString(field) {
		q.err = fmt.Errorf("store: invalid order field %q", field)
		return q
	}
	q.orders = append(append([]order(nil), q.orders...), order{field: field, desc: desc})
	return q
}

// Page restricts the result window. Zero limit means unbounded.
func (q Query) Page(limit, offset int) Query {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	q.limit = limit
	q.offset = offset
	return q
}

// Unpaged drops limit, offset and ordering, for counting.
func (q Query) Unpaged() Query {
	q.limit, q.offset, q.orders = 0, 0, nil
	return q
}

// Err reports a malformed query.
func (q Query) Err() error { return q.err }

// HasConditions reports whether the query filters rows.
func (q Query) HasConditions() bool { return len(q.conds) > 0 }

func (q Query) apply(db *gorm.DB) *gorm.DB {
	for _, c := range q.conds {
		switch c.op {
		case opIsNull:
			db = db.Where(c.field + " IS NULL")
		case opIn:
			db = db.Where(c.field+" IN ?", c.value)
		case opLike:
			db = db.Where(c.field+" LIKE ? ESCAPE '\\'", c.value)
		default:
			db = db.Where(c.field+" "+string(c.op)+" ?", c.value)
		}
	}
	for _, o := range q.orders {
		if o.desc {
			db = db.Order(o.field + " DESC")
		} else {
			db = db.Order(o.field + " ASC")
		}
	}
	if q.limit > 0 {
		db = db.Limit(q.limit)
	}
	if q.offset > 0 {
		db = db.Offset(q.offset)
	}
	return db
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
