package repository

import _ "embed"

// Schema is the idempotent DDL for the boost tables
//
//go:embed schema.sql
var Schema string
