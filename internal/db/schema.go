// Package db embeds the Postgres schema applied by `genqueuectl migrate`.
package db

import _ "embed"

//go:embed schema.sql
var Schema string
