package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/papergraph/value"
)

// SourceKey is the reserved property holding the originating document ID.
const SourceKey = "source"

// Node represents a row in the nodes table.
type Node struct {
	ID         int64     `json:"id"`
	Label      string    `json:"label"`
	Type       string    `json:"type"`
	Properties value.Map `json:"properties"`
}

// Source returns the provenance document ID recorded on the node, if any.
func (n Node) Source() (string, bool) {
	return n.Properties.GetString(SourceKey)
}

// Edge represents a row in the edges table.
type Edge struct {
	ID           int64     `json:"id"`
	SourceID     int64     `json:"source_id"`
	TargetID     int64     `json:"target_id"`
	RelationType string    `json:"relation_type"`
	Properties   value.Map `json:"properties"`
}

// Stats holds row counts for a quick health check of the graph.
type Stats struct {
	Nodes   int `json:"nodes"`
	Edges   int `json:"edges"`
	Sources int `json:"sources"`
}

// Writer is the write side of the graph used by batch commits.
type Writer interface {
	// UpsertNode creates the node identified by (label, typ) or replaces its
	// properties in full. The returned ID is stable across upserts.
	UpsertNode(ctx context.Context, label, typ string, props value.Map) (int64, error)
	// CreateEdge inserts a new edge. Edges are never deduplicated.
	CreateEdge(ctx context.Context, sourceID, targetID int64, relationType string, props value.Map) (int64, error)
}

// Reader is the read side of the graph.
type Reader interface {
	ListNodes(ctx context.Context) ([]Node, error)
	ListEdges(ctx context.Context) ([]Edge, error)
	// ListNodesBySource returns nodes whose source property equals documentID.
	ListNodesBySource(ctx context.Context, documentID string) ([]Node, error)
	// ListEdgesBySource returns edges whose two endpoints both carry documentID.
	ListEdgesBySource(ctx context.Context, documentID string) ([]Edge, error)
	// ListDistinctSources returns every non-null source value, sorted.
	ListDistinctSources(ctx context.Context) ([]string, error)
}

// GraphStore is the full persistence contract implemented by the SQLite,
// PostgreSQL and Neo4j backends.
type GraphStore interface {
	Writer
	Reader
	Stats(ctx context.Context) (*Stats, error)
	// BackfillSource stamps documentID on every node lacking a source and
	// returns the number of nodes changed.
	BackfillSource(ctx context.Context, documentID string) (int64, error)
	// InTx runs fn against a writer bound to a single transaction.
	InTx(ctx context.Context, fn func(Writer) error) error
	Close() error
}

var (
	_ GraphStore = (*Store)(nil)
	_ GraphStore = (*PostgresStore)(nil)
	_ GraphStore = (*Neo4jStore)(nil)
)

// Store wraps the SQLite database for graph persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteWriter performs writes against a querier.
type sqliteWriter struct {
	q querier
}

// --- Node / edge writes ---

// UpsertNode inserts a node or replaces the properties of the existing node
// with the same (label, type). Returns the node ID.
func (s *Store) UpsertNode(ctx context.Context, label, typ string, props value.Map) (int64, error) {
	return sqliteWriter{q: s.db}.UpsertNode(ctx, label, typ, props)
}

// CreateEdge inserts an edge between two existing nodes. Returns the edge ID.
func (s *Store) CreateEdge(ctx context.Context, sourceID, targetID int64, relationType string, props value.Map) (int64, error) {
	return sqliteWriter{q: s.db}.CreateEdge(ctx, sourceID, targetID, relationType, props)
}

func (w sqliteWriter) UpsertNode(ctx context.Context, label, typ string, props value.Map) (int64, error) {
	raw, err := props.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("marshalling node properties: %w", err)
	}

	// A single statement keeps concurrent upserts of the same key race-free.
	var id int64
	err = w.q.QueryRowContext(ctx, `
		INSERT INTO nodes (label, type, properties)
		VALUES (?, ?, ?)
		ON CONFLICT(label, type) DO UPDATE SET
			properties = excluded.properties,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, label, typ, string(raw)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting node %q (%s): %w", label, typ, err)
	}
	return id, nil
}

func (w sqliteWriter) CreateEdge(ctx context.Context, sourceID, targetID int64, relationType string, props value.Map) (int64, error) {
	raw, err := props.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("marshalling edge properties: %w", err)
	}

	res, err := w.q.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, relation_type, properties)
		VALUES (?, ?, ?, ?)
	`, sourceID, targetID, relationType, string(raw))
	if err != nil {
		return 0, fmt.Errorf("creating edge %d-[%s]->%d: %w", sourceID, relationType, targetID, err)
	}
	return res.LastInsertId()
}

// InTx runs fn with a writer bound to one transaction. The transaction is
// rolled back if fn returns an error.
func (s *Store) InTx(ctx context.Context, fn func(Writer) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(sqliteWriter{q: tx})
	})
}

// --- Reads ---

const (
	sqliteNodeColumns = "id, label, type, properties"
	sqliteEdgeColumns = "e.id, e.source_id, e.target_id, e.relation_type, e.properties"
)

// ListNodes returns every node ordered by ID.
func (s *Store) ListNodes(ctx context.Context) ([]Node, error) {
	return s.queryNodes(ctx, "SELECT "+sqliteNodeColumns+" FROM nodes ORDER BY id")
}

// ListNodesBySource returns the nodes stamped with the given document ID.
func (s *Store) ListNodesBySource(ctx context.Context, documentID string) ([]Node, error) {
	return s.queryNodes(ctx, "SELECT "+sqliteNodeColumns+` FROM nodes
		WHERE json_extract(properties, '$.source') = ?
		ORDER BY id`, documentID)
}

// ListEdges returns every edge ordered by ID.
func (s *Store) ListEdges(ctx context.Context) ([]Edge, error) {
	return s.queryEdges(ctx, "SELECT "+sqliteEdgeColumns+" FROM edges e ORDER BY e.id")
}

// ListEdgesBySource returns edges whose endpoints both belong to documentID.
func (s *Store) ListEdgesBySource(ctx context.Context, documentID string) ([]Edge, error) {
	return s.queryEdges(ctx, "SELECT "+sqliteEdgeColumns+` FROM edges e
		JOIN nodes src ON src.id = e.source_id
		JOIN nodes dst ON dst.id = e.target_id
		WHERE json_extract(src.properties, '$.source') = ?
		  AND json_extract(dst.properties, '$.source') = ?
		ORDER BY e.id`, documentID, documentID)
}

// ListDistinctSources returns the sorted set of document IDs present on nodes.
func (s *Store) ListDistinctSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT json_extract(properties, '$.source') AS source
		FROM nodes
		WHERE json_type(properties, '$.source') = 'text'
		ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	sources := []string{}
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// Stats returns node, edge and distinct source counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM nodes", &stats.Nodes},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(DISTINCT json_extract(properties, '$.source')) FROM nodes WHERE json_type(properties, '$.source') = 'text'", &stats.Sources},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// BackfillSource sets source = documentID on nodes that have none.
func (s *Store) BackfillSource(ctx context.Context, documentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes
		SET properties = json_set(properties, '$.source', ?),
			updated_at = CURRENT_TIMESTAMP
		WHERE json_extract(properties, '$.source') IS NULL
	`, documentID)
	if err != nil {
		return 0, fmt.Errorf("backfilling source: %w", err)
	}
	return res.RowsAffected()
}

// --- helpers ---

func (s *Store) queryNodes(ctx context.Context, query string, args ...any) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		var n Node
		var props sql.NullString
		if err := rows.Scan(&n.ID, &n.Label, &n.Type, &props); err != nil {
			return nil, err
		}
		if n.Properties, err = value.ParseMap([]byte(props.String)); err != nil {
			return nil, fmt.Errorf("decoding properties of node %d: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...any) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	edges := []Edge{}
	for rows.Next() {
		var e Edge
		var props sql.NullString
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.RelationType, &props); err != nil {
			return nil, err
		}
		if e.Properties, err = value.ParseMap([]byte(props.String)); err != nil {
			return nil, fmt.Errorf("decoding properties of edge %d: %w", e.ID, err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
