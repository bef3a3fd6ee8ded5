// Package database provides the PostgreSQL connection pool used to load
// instrument seeds at startup.
package database
