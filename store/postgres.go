package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brunobiangulo/papergraph/value"
)

// DBPool abstracts the pgxpool.Pool methods the store needs so tests can
// substitute pgxmock.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

// pgQuerier is satisfied by both DBPool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists the graph in PostgreSQL with JSONB properties.
type PostgresStore struct {
	pool DBPool
}

// NewPostgresStore wraps an existing pool. The schema is not touched; call
// Bootstrap to create it.
func NewPostgresStore(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to the database at url, verifies connectivity and
// bootstraps the schema.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Bootstrap creates tables and indexes if they do not exist.
func (p *PostgresStore) Bootstrap(ctx context.Context) error {
	for i, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrapping postgres schema (statement %d): %w", i+1, err)
		}
	}
	slog.Debug("store: postgres schema ready", "statements", len(postgresSchema))
	return nil
}

// Close releases the pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

type pgWriter struct {
	q pgQuerier
}

const (
	pgUpsertNode = `
		INSERT INTO nodes (label, type, properties)
		VALUES ($1, $2, $3)
		ON CONFLICT (label, type) DO UPDATE SET
			properties = EXCLUDED.properties,
			updated_at = now()
		RETURNING id`
	pgCreateEdge = `
		INSERT INTO edges (source_id, target_id, relation_type, properties)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
)

// UpsertNode inserts a node or replaces the properties of the existing node
// with the same (label, type).
func (p *PostgresStore) UpsertNode(ctx context.Context, label, typ string, props value.Map) (int64, error) {
	return pgWriter{q: p.pool}.UpsertNode(ctx, label, typ, props)
}

// CreateEdge inserts an edge between two existing nodes.
func (p *PostgresStore) CreateEdge(ctx context.Context, sourceID, targetID int64, relationType string, props value.Map) (int64, error) {
	return pgWriter{q: p.pool}.CreateEdge(ctx, sourceID, targetID, relationType, props)
}

func (w pgWriter) UpsertNode(ctx context.Context, label, typ string, props value.Map) (int64, error) {
	raw, err := props.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal node properties: %w", err)
	}
	var id int64
	if err := w.q.QueryRow(ctx, pgUpsertNode, label, typ, raw).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting node %q (%s): %w", label, typ, err)
	}
	return id, nil
}

func (w pgWriter) CreateEdge(ctx context.Context, sourceID, targetID int64, relationType string, props value.Map) (int64, error) {
	raw, err := props.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal edge properties: %w", err)
	}
	var id int64
	if err := w.q.QueryRow(ctx, pgCreateEdge, sourceID, targetID, relationType, raw).Scan(&id); err != nil {
		return 0, fmt.Errorf("creating edge %d-[%s]->%d: %w", sourceID, relationType, targetID, err)
	}
	return id, nil
}

// InTx runs fn with a writer bound to one transaction.
func (p *PostgresStore) InTx(ctx context.Context, fn func(Writer) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Error("store: rollback failed", "error", rbErr)
		}
	}()

	if err := fn(pgWriter{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const (
	pgListNodes = `SELECT id, label, type, properties FROM nodes ORDER BY id`
	pgListEdges = `SELECT id, source_id, target_id, relation_type, properties FROM edges ORDER BY id`

	pgListNodesBySource = `
		SELECT id, label, type, properties FROM nodes
		WHERE properties->>'source' = $1
		ORDER BY id`
	pgListEdgesBySource = `
		SELECT e.id, e.source_id, e.target_id, e.relation_type, e.properties
		FROM edges e
		JOIN nodes src ON src.id = e.source_id
		JOIN nodes dst ON dst.id = e.target_id
		WHERE src.properties->>'source' = $1
		  AND dst.properties->>'source' = $1
		ORDER BY e.id`
	pgListSources = `
		SELECT DISTINCT properties->>'source' AS source
		FROM nodes
		WHERE jsonb_typeof(properties->'source') = 'string'
		ORDER BY source`
	pgStats = `
		SELECT
			(SELECT COUNT(*) FROM nodes),
			(SELECT COUNT(*) FROM edges),
			(SELECT COUNT(DISTINCT properties->>'source') FROM nodes
				WHERE jsonb_typeof(properties->'source') = 'string')`
	pgBackfillSource = `
		UPDATE nodes
		SET properties = jsonb_set(properties, '{source}', to_jsonb($1::text)),
			updated_at = now()
		WHERE properties->>'source' IS NULL`
)

// ListNodes returns every node ordered by ID.
func (p *PostgresStore) ListNodes(ctx context.Context) ([]Node, error) {
	return p.queryNodes(ctx, pgListNodes)
}

// ListNodesBySource returns the nodes stamped with the given document ID.
func (p *PostgresStore) ListNodesBySource(ctx context.Context, documentID string) ([]Node, error) {
	return p.queryNodes(ctx, pgListNodesBySource, documentID)
}

// ListEdges returns every edge ordered by ID.
func (p *PostgresStore) ListEdges(ctx context.Context) ([]Edge, error) {
	return p.queryEdges(ctx, pgListEdges)
}

// ListEdgesBySource returns edges whose endpoints both belong to documentID.
func (p *PostgresStore) ListEdgesBySource(ctx context.Context, documentID string) ([]Edge, error) {
	return p.queryEdges(ctx, pgListEdgesBySource, documentID)
}

// ListDistinctSources returns the sorted set of document IDs present on nodes.
func (p *PostgresStore) ListDistinctSources(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, pgListSources)
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
func (p *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var nodes, edges, sources int64
	if err := p.pool.QueryRow(ctx, pgStats).Scan(&nodes, &edges, &sources); err != nil {
		return nil, fmt.Errorf("counting graph rows: %w", err)
	}
	return &Stats{Nodes: int(nodes), Edges: int(edges), Sources: int(sources)}, nil
}

// BackfillSource sets source = documentID on nodes that have none.
func (p *PostgresStore) BackfillSource(ctx context.Context, documentID string) (int64, error) {
	tag, err := p.pool.Exec(ctx, pgBackfillSource, documentID)
	if err != nil {
		return 0, fmt.Errorf("backfilling source: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) queryNodes(ctx context.Context, query string, args ...any) ([]Node, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		var n Node
		var props []byte
		if err := rows.Scan(&n.ID, &n.Label, &n.Type, &props); err != nil {
			return nil, err
		}
		if n.Properties, err = value.ParseMap(props); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node properties: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (p *PostgresStore) queryEdges(ctx context.Context, query string, args ...any) ([]Edge, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	edges := []Edge{}
	for rows.Next() {
		var e Edge
		var props []byte
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.RelationType, &props); err != nil {
			return nil, err
		}
		if e.Properties, err = value.ParseMap(props); err != nil {
			return nil, fmt.Errorf("failed to unmarshal edge properties: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
