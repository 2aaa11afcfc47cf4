package database

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var (
	driverMu     sync.RWMutex
	activeDriver = "mysql"

	placeholderRe = regexp.MustCompile(`\$\d+`)
)

func setActiveDriver(name string) {
	driverMu.Lock()
	activeDriver = strings.ToLower(name)
	driverMu.Unlock()
}

// ActiveDriver returns the driver name the pool was opened with.
func ActiveDriver() string {
	driverMu.RLock()
	defer driverMu.RUnlock()
	return activeDriver
}

// IsPostgreSQL reports whether the active driver speaks $n placeholders.
func IsPostgreSQL() bool {
	return ActiveDriver() == "postgres"
}

// ConvertPlaceholders rewrites PostgreSQL-style placeholders ($1, $2) to ?
// for drivers that expect them. Queries are written in PostgreSQL form and
// converted at the call site.
func ConvertPlaceholders(query string) string {
	if IsPostgreSQL() {
		return query
	}
	result := query
	for _, placeholder := range placeholderRe.FindAllString(query, -1) {
		result = strings.Replace(result, placeholder, "?", 1)
	}
	return result
}

// InPlaceholders builds a placeholder list for an IN clause with n members,
// numbered starting at first ($3, $4, ... before conversion).
func InPlaceholders(first, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(first+i)
	}
	return strings.Join(parts, ", ")
}
