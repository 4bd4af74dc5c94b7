// Package db provides the embedded database schema and seed catalog.
package db

import _ "embed"

// Schema contains the idempotent DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string
