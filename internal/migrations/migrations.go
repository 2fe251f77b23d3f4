package migrations

import "embed"

// Files holds the SQL migrations, applied in lexical order (001_init.sql,
// 002_calendar_events.sql, ...).
//
//go:embed *.sql
var Files embed.FS
