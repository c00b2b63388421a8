// Package search composes parameterised SQL for list endpoints.
package search

import (
	"fmt"
	"strings"
)

// Query builds a SELECT with a WHERE clause assembled from independent
// conditions. Placeholders are numbered in the order arguments are added.
type Query struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewQuery creates a new Query for the given table and columns.
func NewQuery(table, cols string) *Query {
	return &Query{
		table: table,
		cols:  cols,
		idx:   1,
	}
}

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *Query) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddEqual adds an exact match on column.
func (q *Query) AddEqual(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// AddGTE adds an inclusive lower bound on column.
func (q *Query) AddGTE(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s >= $%d", column, q.idx), value)
}

// AddLTE adds an inclusive upper bound on column.
func (q *Query) AddLTE(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s <= $%d", column, q.idx), value)
}

// AddContainsAny matches rows where any of columns contains value,
// case-insensitively. LIKE wildcards in value are matched literally.
func (q *Query) AddContainsAny(columns []string, value string) {
	if len(columns) == 0 {
		return
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", col, q.idx)
	}
	q.Add("("+strings.Join(parts, " OR ")+")", "%"+EscapeLike(value)+"%")
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *Query) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// SQL returns the data query with its ORDER BY clause.
func (q *Query) SQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// Args returns the arguments in placeholder order.
func (q *Query) Args() []interface{} {
	return q.args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes the LIKE metacharacters in s using the default
// backslash escape.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
