// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the idempotent DDL for every table, applied at startup and
// by the seed command.
//
//go:embed migrations/001_schema.sql
var Schema string
