// Package database opens SQL connections and serves tables as data sources.
//
// Connect builds a GORM handle for the configured driver (mysql or sqlite)
// and pings it. TableSource turns one table into a countable data source:
// windows become LIMIT/OFFSET queries, sort orders become ORDER BY clauses
// with the primary key appended as tie-breaker, and Where filters become
// parameterized conditions. Column names are checked against the schema
// returned by GetTableColumns before they reach SQL.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	src, err := database.NewTableSource(db, "people")
package database
