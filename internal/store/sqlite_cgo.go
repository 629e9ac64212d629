// ABOUTME: Registers the cgo SQLite driver when the binary is built with cgo
// ABOUTME: Enables database.driver "sqlite3" via github.com/mattn/go-sqlite3

//go:build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3"
)
