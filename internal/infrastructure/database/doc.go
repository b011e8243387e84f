// Package database manages the SQLite connection and schema migrations
// for the auth service. Migrations are embedded SQL files applied in
// order, each in its own transaction.
package database
