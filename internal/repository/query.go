package repository

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors raised inside transactional guards.
var (
	ErrDuplicate     = errors.New("duplicate record")
	ErrCapacity      = errors.New("capacity exceeded")
	ErrStateConflict = errors.New("record is not in the expected state")
)

// conditions accumulates WHERE clauses with positional placeholders. The
// format receives the placeholder index as %[1]d so it may be reused.
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(format string, value interface{}) {
	c.args = append(c.args, value)
	c.clauses = append(c.clauses, fmt.Sprintf(format, len(c.args)))
}

// where renders the clauses joined with AND, prefixed by keyword.
func (c *conditions) where(keyword string) string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " " + keyword + " " + strings.Join(c.clauses, " AND ")
}

// paginate returns LIMIT and OFFSET for a page, using 20 rows as the default
// and 100 as the ceiling.
func paginate(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}

// orderBy resolves a whitelisted sort column and direction.
func orderBy(allowed map[string]string, sortBy, sortOrder, fallback, fallbackOrder string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = allowed[fallback]
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = fallbackOrder
	}
	return column + " " + order
}

func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}
