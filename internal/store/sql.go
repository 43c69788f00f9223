package store

import (
	"fmt"
	"strings"
)

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// splitTable splits "schema.table" into its parts. A bare name has an
// empty schema.
func splitTable(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i > 0 && i < len(name)-1 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(name string) string {
	schema, table := splitTable(name)
	if schema == "" {
		return quoteIdentifier(table)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}

// qualifiedName renders a table name for listings, leaving out the
// default schema.
func qualifiedName(schema, table, defaultSchema string) string {
	if schema == "" || schema == defaultSchema {
		return table
	}
	return schema + "." + table
}

func columnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func countQuery(table string) string {
	return "SELECT count(*) FROM " + quoteTable(table)
}

// selectQuery pages through table. orderBy is an optional expression that
// keeps page boundaries stable across queries; empty means storage order.
func selectQuery(table string, columns []string, orderBy string, limit, offset int) string {
	order := ""
	if orderBy != "" {
		order = " ORDER BY " + orderBy
	}
	return fmt.Sprintf("SELECT %s FROM %s%s LIMIT %d OFFSET %d",
		columnList(columns), quoteTable(table), order, limit, offset)
}

// insertQuery builds a single-row INSERT; placeholder renders the i-th
// (zero-based) parameter marker.
func insertQuery(table string, columns []string, placeholder func(i int) string) string {
	params := make([]string, len(columns))
	for i := range columns {
		params[i] = placeholder(i)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteTable(table), columnList(columns), strings.Join(params, ", "))
}

// createTableQuery creates table with every column typed as textType.
func createTableQuery(table string, columns []string, textType string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdentifier(c) + " " + textType
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteTable(table), strings.Join(defs, ", "))
}

func dollarPlaceholder(i int) string { return fmt.Sprintf("$%d", i+1) }

func questionPlaceholder(int) string { return "?" }
