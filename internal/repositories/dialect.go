package repositories

import (
	"strconv"
	"strings"
)

// Dialect selects SQL syntax for the configured driver.
type Dialect int

const (
	DialectMySQL Dialect = iota
	DialectPostgres
)

// DialectFor maps a database/sql driver name to a Dialect.
func DialectFor(driver string) Dialect {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "pgx", "postgres", "postgresql":
		return DialectPostgres
	default:
		return DialectMySQL
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "mysql"
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// insertIgnore returns an INSERT that silently skips rows violating a unique key.
func (d Dialect) insertIgnore(table, columns string, args int) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", args), ", ")
	if d == DialectPostgres {
		return d.Rebind("INSERT INTO " + table + " (" + columns + ") VALUES (" + ph + ") ON CONFLICT DO NOTHING")
	}
	return "INSERT IGNORE INTO " + table + " (" + columns + ") VALUES (" + ph + ")"
}
