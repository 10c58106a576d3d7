package identity

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Sirojiddin1dev/carinfopro/internal/models"
)

// SQLiteStore keeps session records in a local SQLite database. Suited to
// hosts that already carry a data directory and want atomic writes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/carchat.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/carchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates the table if it doesn't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS visitor_sessions (
		owner_id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		visitor_token TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Load retrieves the record for an owner, or nil when absent or unusable.
func (s *SQLiteStore) Load(ctx context.Context, ownerID string) (*models.SessionRecord, error) {
	rec := &models.SessionRecord{OwnerID: ownerID}
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, visitor_token FROM visitor_sessions WHERE owner_id = ?
	`, ownerID).Scan(&rec.RoomID, &rec.VisitorToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if rec.RoomID == "" || rec.VisitorToken == "" {
		return nil, nil
	}
	return rec, nil
}

// Save writes the record, replacing any previous one for the same owner.
func (s *SQLiteStore) Save(ctx context.Context, rec *models.SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visitor_sessions (owner_id, room_id, visitor_token, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(owner_id) DO UPDATE SET
			room_id = excluded.room_id,
			visitor_token = excluded.visitor_token,
			updated_at = CURRENT_TIMESTAMP
	`, rec.OwnerID, rec.RoomID, rec.VisitorToken)
	return err
}

// Clear removes the record for an owner.
func (s *SQLiteStore) Clear(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM visitor_sessions WHERE owner_id = ?
	`, ownerID)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
