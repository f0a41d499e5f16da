package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/config"
)

type dialect struct {
	name       string // config name and migrations directory
	driverName string // database/sql driver
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
	// INSERT ... RETURNING id instead of LastInsertId
	returning    bool
	singleWriter bool
}

var dialects = map[string]dialect{
	config.DriverSQLite:   {name: config.DriverSQLite, driverName: "sqlite", singleWriter: true},
	config.DriverPostgres: {name: config.DriverPostgres, driverName: "postgres", numbered: true, returning: true},
	config.DriverMySQL:    {name: config.DriverMySQL, driverName: "mysql"},
}

func dialectFor(name string) (dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
	return d, nil
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
