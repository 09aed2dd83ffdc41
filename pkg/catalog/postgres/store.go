// Package postgres implements [catalog.Store] on PostgreSQL with pgvector
// columns for the two embedding spaces.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/lyricroom/songmatch/pkg/catalog"
)

// Schema is the SQL DDL for the songs table. Execute it via [Store.Migrate]
// or apply it manually during deployment.
//
// The vector dimension placeholder is filled in by [SchemaFor]; HNSW indexes
// use cosine distance to match the `<=>` operator used by Nearest.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS songs (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    artist              TEXT NOT NULL DEFAULT '',
    year                INT  NOT NULL DEFAULT 0,
    popularity          INT  NOT NULL DEFAULT 0,
    tags                TEXT[] NOT NULL DEFAULT '{}',
    phrases             TEXT[] NOT NULL DEFAULT '{}',
    embedding           vector(%d),
    aboutness_embedding vector(%d),
    placeholder         BOOLEAN NOT NULL DEFAULT false,
    canonical_id        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_songs_popularity ON songs(popularity DESC) WHERE NOT placeholder;
CREATE INDEX IF NOT EXISTS idx_songs_embedding
    ON songs USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_songs_aboutness
    ON songs USING hnsw (aboutness_embedding vector_cosine_ops);
`

// SchemaFor returns the [Schema] DDL with the vector columns sized to dims.
func SchemaFor(dims int) string {
	return fmt.Sprintf(Schema, dims, dims)
}

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [catalog.Store] backed by a PostgreSQL database with pgvector.
// All methods are safe for concurrent use.
type Store struct {
	db   DB
	dims int
}

// Compile-time interface check.
var _ catalog.Store = (*Store)(nil)

// New creates a [Store] using the given connection or pool. dims is the
// embedding dimension used when migrating the schema. The caller is
// responsible for calling [Store.Migrate] before issuing queries against a
// fresh database.
func New(db DB, dims int) *Store {
	return &Store{db: db, dims: dims}
}

// Migrate executes the schema DDL, creating the songs table and its vector
// indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, SchemaFor(s.dims)); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

const songColumns = `id, title, artist, year, popularity, tags, phrases,
	embedding, aboutness_embedding, placeholder, canonical_id`

// Song implements [catalog.Store.Song].
func (s *Store) Song(ctx context.Context, id string) (catalog.Song, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+songColumns+` FROM songs WHERE id = $1`, id)
	song, err := scanSong(row)
	if err == pgx.ErrNoRows {
		return catalog.Song{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Song{}, fmt.Errorf("catalog: get song %q: %w", id, err)
	}
	return song, nil
}

// Songs implements [catalog.Store.Songs]. IDs that do not resolve are
// silently skipped.
func (s *Store) Songs(ctx context.Context, ids []string) ([]catalog.Song, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+songColumns+` FROM songs WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: bulk get: %w", err)
	}
	return collectSongs(rows)
}

// Active implements [catalog.Store.Active].
func (s *Store) Active(ctx context.Context) ([]catalog.Song, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+songColumns+` FROM songs WHERE NOT placeholder`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list active: %w", err)
	}
	return collectSongs(rows)
}

// TopByPopularity implements [catalog.Store.TopByPopularity].
func (s *Store) TopByPopularity(ctx context.Context, limit int) ([]catalog.Song, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+songColumns+` FROM songs
		 WHERE NOT placeholder
		 ORDER BY popularity DESC, id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: top by popularity: %w", err)
	}
	return collectSongs(rows)
}

// Nearest implements [catalog.Store.Nearest]. It runs a cosine-distance ANN
// query over the selected embedding space using the pgvector `<=>` operator
// and returns up to k neighbours ordered by ascending distance.
//
// Rows whose selected embedding column is NULL are excluded. Placeholder
// songs are NOT excluded here; the orchestrator re-filters defensively.
func (s *Store) Nearest(ctx context.Context, embedding []float32, k int, space catalog.Space) ([]catalog.Neighbor, error) {
	col := "embedding"
	if space == catalog.SpaceAboutness {
		col = "aboutness_embedding"
	}
	queryVec := pgvector.NewVector(embedding)

	q := fmt.Sprintf(`
		SELECT id, %s <=> $1 AS distance
		FROM   songs
		WHERE  %s IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`, col, col)

	rows, err := s.db.Query(ctx, q, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("catalog: nearest (%s): %w", space, err)
	}
	neighbors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Neighbor, error) {
		var n catalog.Neighbor
		err := row.Scan(&n.SongID, &n.Distance)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: nearest (%s): scan: %w", space, err)
	}
	return neighbors, nil
}

// CountActive implements [catalog.Store.CountActive].
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM songs WHERE NOT placeholder`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("catalog: count active: %w", err)
	}
	return n, nil
}

// Ping implements [catalog.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `SELECT 1`); err != nil {
		return fmt.Errorf("catalog: ping: %w", err)
	}
	return nil
}

// Upsert inserts or fully replaces a song. It exists for the external import
// pipeline and for test seeding; the matching engine itself never writes.
func (s *Store) Upsert(ctx context.Context, song catalog.Song) error {
	if song.ID == "" {
		return fmt.Errorf("catalog: upsert: song id must not be empty")
	}
	var emb, aboutEmb any
	if song.Embedding != nil {
		emb = pgvector.NewVector(song.Embedding)
	}
	if song.AboutnessEmbedding != nil {
		aboutEmb = pgvector.NewVector(song.AboutnessEmbedding)
	}

	const q = `
		INSERT INTO songs (` + songColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
		    title               = EXCLUDED.title,
		    artist              = EXCLUDED.artist,
		    year                = EXCLUDED.year,
		    popularity          = EXCLUDED.popularity,
		    tags                = EXCLUDED.tags,
		    phrases             = EXCLUDED.phrases,
		    embedding           = EXCLUDED.embedding,
		    aboutness_embedding = EXCLUDED.aboutness_embedding,
		    placeholder         = EXCLUDED.placeholder,
		    canonical_id        = EXCLUDED.canonical_id`

	_, err := s.db.Exec(ctx, q,
		song.ID, song.Title, song.Artist, song.Year, song.Popularity,
		song.Tags, song.Phrases, emb, aboutEmb,
		song.Placeholder, song.CanonicalID,
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert %q: %w", song.ID, err)
	}
	return nil
}

// scanSong scans one songs row in songColumns order.
func scanSong(row pgx.Row) (catalog.Song, error) {
	var (
		song       catalog.Song
		emb, about *pgvector.Vector
	)
	err := row.Scan(
		&song.ID, &song.Title, &song.Artist, &song.Year, &song.Popularity,
		&song.Tags, &song.Phrases, &emb, &about,
		&song.Placeholder, &song.CanonicalID,
	)
	if err != nil {
		return catalog.Song{}, err
	}
	if emb != nil {
		song.Embedding = emb.Slice()
	}
	if about != nil {
		song.AboutnessEmbedding = about.Slice()
	}
	return song, nil
}

func collectSongs(rows pgx.Rows) ([]catalog.Song, error) {
	songs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Song, error) {
		return scanSong(row)
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scan rows: %w", err)
	}
	return songs, nil
}
