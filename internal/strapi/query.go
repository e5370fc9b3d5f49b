package strapi

import (
	"net/url"
	"strconv"
	"strings"
)

// Operator is a filter comparison understood by the content backend.
type Operator string

const (
	Eq         Operator = "$eq"
	Ne         Operator = "$ne"
	Lt         Operator = "$lt"
	Lte        Operator = "$lte"
	Gt         Operator = "$gt"
	Gte        Operator = "$gte"
	In         Operator = "$in"
	Contains   Operator = "$contains"
	ContainsI  Operator = "$containsi"
	StartsWith Operator = "$startsWith"
	Null       Operator = "$null"
)

// ParseOperator accepts an operator with or without the leading "$".
func ParseOperator(s string) (Operator, bool) {
	op := Operator("$" + strings.TrimPrefix(strings.TrimSpace(s), "$"))
	switch op {
	case Eq, Ne, Lt, Lte, Gt, Gte, In, Contains, ContainsI, StartsWith, Null:
		return op, true
	}
	return "", false
}

type filter struct {
	path  []string
	op    Operator
	value string
}

// Query accumulates filters, sort and populate parameters.
type Query struct {
	filters  []filter
	sort     []string
	populate string
	page     int
	pageSize int
}

func NewQuery() *Query {
	return &Query{}
}

// Filter adds filters[a][b][op]=value for a dotted field path such as
// "customer.email". In accepts a comma separated value list.
func (q *Query) Filter(field string, op Operator, value string) *Query {
	q.filters = append(q.filters, filter{path: strings.Split(field, "."), op: op, value: value})
	return q
}

// Sort adds field:asc or field:desc.
func (q *Query) Sort(field string, desc bool) *Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	q.sort = append(q.sort, field+":"+dir)
	return q
}

// Populate requests relations; "*" populates every first level relation.
func (q *Query) Populate(what string) *Query {
	q.populate = what
	return q
}

func (q *Query) Page(page, size int) *Query {
	q.page, q.pageSize = page, size
	return q
}

// Encode renders the query string.
func (q *Query) Encode() string {
	v := url.Values{}
	for _, f := range q.filters {
		key := "filters"
		for _, p := range f.path {
			key += "[" + p + "]"
		}
		key += "[" + string(f.op) + "]"
		if f.op == In {
			for i, item := range strings.Split(f.value, ",") {
				v.Add(key+"["+strconv.Itoa(i)+"]", strings.TrimSpace(item))
			}
			continue
		}
		v.Add(key, f.value)
	}
	for i, s := range q.sort {
		v.Add("sort["+strconv.Itoa(i)+"]", s)
	}
	if q.populate != "" {
		v.Set("populate", q.populate)
	}
	if q.page > 0 {
		v.Set("pagination[page]", strconv.Itoa(q.page))
	}
	if q.pageSize > 0 {
		v.Set("pagination[pageSize]", strconv.Itoa(q.pageSize))
	}
	return v.Encode()
}
