// Package migrations embeds the SQL schema scripts for the local cache
// (sqlite/) and the postgres remote (postgres/).
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
