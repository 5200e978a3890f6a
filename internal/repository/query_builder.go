package repository

import "github.com/doug-martin/goqu/v9"

// QueryBuilder collects list filters from request parameters. Keys are the
// public filter names; repositories map them to column identifiers.
type QueryBuilder interface {
	AddCondition(key string, value interface{})
	AddAnyOf(key string, values []string)
	Len() int
	BuildConditions(aliases map[string]string) goqu.Ex
}

type conditionSet struct {
	conditions map[string]interface{}
}

func NewQueryBuilder() QueryBuilder {
	return &conditionSet{
		conditions: make(map[string]interface{}),
	}
}

func (q *conditionSet) AddCondition(key string, value interface{}) {
	q.conditions[key] = value
}

// AddAnyOf matches rows whose column equals any of values. A single value
// becomes a plain equality.
func (q *conditionSet) AddAnyOf(key string, values []string) {
	switch len(values) {
	case 0:
		return
	case 1:
		q.conditions[key] = values[0]
	default:
		q.conditions[key] = values
	}
}

func (q *conditionSet) Len() int {
	return len(q.conditions)
}

func (q *conditionSet) BuildConditions(aliases map[string]string) goqu.Ex {
	conditions := goqu.Ex{}
	for key, value := range q.conditions {
		column := key
		if alias, ok := aliases[key]; ok {
			column = alias
		}
		conditions[column] = value
	}
	return conditions
}
