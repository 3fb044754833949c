package store

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and locates a graph backend.
type Config struct {
	// Driver is "sqlite" (default), "postgres" or "neo4j".
	Driver string `json:"driver" yaml:"driver"`
	// DSN is a file path for SQLite or a connection URL for PostgreSQL and
	// Neo4j.
	DSN string `json:"dsn" yaml:"dsn"`
}

// Open constructs the backend named by cfg.Driver. The returned store owns
// its connection and must be closed by the caller.
func Open(ctx context.Context, cfg Config) (GraphStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite store requires a database path")
		}
		s, err := New(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql", "pgx":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres store requires a connection URL")
		}
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "neo4j":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("neo4j store requires a connection URL")
		}
		s, err := OpenNeo4j(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
