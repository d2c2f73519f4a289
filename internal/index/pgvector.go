package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/ppiankov/veritas/internal/embed"
	"github.com/ppiankov/veritas/internal/model"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PgStore keeps the index in a Postgres table with a pgvector column.
// Position is the insertion order, matching the flat index.
type PgStore struct {
	db       *sql.DB
	table    string
	buildID  uuid.UUID
	embedder string
	dim      int
	count    int
}

// OpenPgStore connects to dsn and, if the table exists, loads its build identity
func OpenPgStore(ctx context.Context, dsn, table string) (*PgStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PgStore{db: db, table: table}, nil
}

// Close closes the database handle
func (p *PgStore) Close() error {
	return p.db.Close()
}

// Build replaces the table contents with the given segments and their embeddings
func (p *PgStore) Build(ctx context.Context, segments []model.Segment, e embed.Embedder, opts BuildOptions) error {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	var progress func(int)
	if opts.Progress != nil {
		progress = func(done int) { opts.Progress(done, len(texts)) }
	}
	vectors, err := embed.Batched(ctx, e, texts, opts.BatchSize, progress)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	buildID := uuid.New()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, p.table),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s_build`, p.table),
		fmt.Sprintf(`CREATE TABLE %s (
			position INTEGER PRIMARY KEY,
			source_id TEXT NOT NULL,
			seg_index INTEGER NOT NULL,
			char_start INTEGER NOT NULL,
			char_end INTEGER NOT NULL,
			text TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			embedding vector(%d) NOT NULL
		)`, p.table, e.Dimension()),
		fmt.Sprintf(`CREATE TABLE %s_build (
			build_id UUID NOT NULL,
			embedder TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			count INTEGER NOT NULL
		)`, p.table),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("prepare schema: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (position, source_id, seg_index, char_start, char_end, text, token_count, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, p.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = insert.Close() }()

	for i, s := range segments {
		_, err := insert.ExecContext(ctx, i, s.SourceID, s.Index, s.CharStart, s.CharEnd, s.Text, s.TokenCount, pgvector.NewVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s_build (build_id, embedder, dimension, count) VALUES ($1, $2, $3, $4)`, p.table),
		buildID.String(), e.Name(), e.Dimension(), len(segments))
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.buildID = buildID
	p.embedder = e.Name()
	p.dim = e.Dimension()
	p.count = len(segments)
	return nil
}

// Verify loads the build record and checks it against the row count
func (p *PgStore) Verify(ctx context.Context) error {
	var (
		buildID  string
		embedder string
		dim      int
		count    int
	)
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT build_id, embedder, dimension, count FROM %s_build`, p.table)).
		Scan(&buildID, &embedder, &dim, &count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: table %s has no build record", model.ErrIntegrity, p.table)
		}
		return fmt.Errorf("%w: index table %s: %v", model.ErrInputMissing, p.table, err)
	}

	var rows int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&rows); err != nil {
		return fmt.Errorf("%w: count %s: %v", model.ErrIntegrity, p.table, err)
	}
	if rows != count {
		return fmt.Errorf("%w: build %s declares %d segments but table holds %d", model.ErrIntegrity, buildID, count, rows)
	}

	id, err := uuid.Parse(buildID)
	if err != nil {
		return fmt.Errorf("%w: build id: %v", model.ErrIntegrity, err)
	}
	p.buildID = id
	p.embedder = embedder
	p.dim = dim
	p.count = count
	return nil
}

func (p *PgStore) Len() int { return p.count }

func (p *PgStore) EmbedderName() string { return p.embedder }

// BuildID identifies the current table contents
func (p *PgStore) BuildID() uuid.UUID { return p.buildID }

// Search orders by cosine distance; 1 - distance is the cosine similarity
func (p *PgStore) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if p.dim != 0 && len(query) != p.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), p.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT position, 1 - (embedding <=> $1::vector) AS score FROM %s ORDER BY embedding <=> $1::vector, position LIMIT $2`, p.table),
		pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Position, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for len(hits) < k {
		hits = append(hits, Hit{Position: NoMatch})
	}
	return hits, nil
}

func (p *PgStore) Lookup(ctx context.Context, position int) (model.Segment, error) {
	var s model.Segment
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT source_id, seg_index, char_start, char_end, text, token_count FROM %s WHERE position = $1`, p.table), position).
		Scan(&s.SourceID, &s.Index, &s.CharStart, &s.CharEnd, &s.Text, &s.TokenCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Segment{}, fmt.Errorf("%w: position %d not in %s", model.ErrIntegrity, position, p.table)
		}
		return model.Segment{}, fmt.Errorf("lookup %d: %w", position, err)
	}
	return s, nil
}
