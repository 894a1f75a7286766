package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"gaceta/internal/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	Register("sqlite", func(ctx context.Context, cfg Config) (Store, error) {
		return OpenSQLite(ctx, cfg.Path)
	})
}

// SQLiteStore keeps delivered identifiers in a single table. Row inserts are
// atomic on their own, which also makes this the backend of choice if runs
// ever need to overlap.
type SQLiteStore struct {
	conn  *sql.DB
	index map[string]struct{}
}

func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	slog.Info("Initializing sqlite ledger", "path", dbPath)

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &core.PersistenceError{Op: "open", Err: err}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, &core.PersistenceError{Op: "open", Err: err}
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	s := &SQLiteStore{
		conn:  conn,
		index: make(map[string]struct{}),
	}

	if err := s.load(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Debug("Loaded ledger", "path", dbPath, "entries", len(s.index))
	return s, nil
}

func runMigrations(conn *sql.DB) error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return &core.PersistenceError{Op: "migrate", Err: err}
	}

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.Up(conn, "migrations"); err != nil {
		return &core.PersistenceError{Op: "migrate", Err: err}
	}

	return nil
}

func (s *SQLiteStore) load(ctx context.Context) error {
	// rowid, not delivered_at: the timestamp has second granularity, which
	// would shuffle commits landing in the same second.
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM delivered ORDER BY rowid`)
	if err != nil {
		return &core.PersistenceError{Op: "load", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return &core.PersistenceError{Op: "load", Err: err}
		}
		s.index[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return &core.PersistenceError{Op: "load", Err: err}
	}

	return nil
}

func (s *SQLiteStore) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *SQLiteStore) Len() int {
	return len(s.index)
}

func (s *SQLiteStore) Commit(ctx context.Context, id string) error {
	query := `
		INSERT INTO delivered (id)
		VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`

	if _, err := s.conn.ExecContext(ctx, query, id); err != nil {
		return &core.PersistenceError{Op: "commit", Err: err}
	}

	s.index[id] = struct{}{}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
