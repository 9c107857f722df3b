package history

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rebelice/kioskquery/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = "2006-01-02 15:04:05"

// Store persists search history in sqlite
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) a history database at path
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Append records one executed search
func (s *Store) Append(entry models.HistoryEntry) error {
	filters, err := json.Marshal(entry.Filters)
	if err != nil {
		return err
	}

	executedAt := entry.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO search_history
		(session_id, content_type, query, filters, result_count, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.ContentType,
		entry.Query,
		string(filters),
		entry.ResultCount,
		executedAt.UTC().Format(timeLayout),
	)
	return err
}

// Recent retrieves the most recent history entries
func (s *Store) Recent(limit int) ([]models.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, content_type, query, filters, result_count, executed_at
		FROM search_history
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

// Search retrieves history entries whose query text contains text
func (s *Store) Search(text string, limit int) ([]models.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, content_type, query, filters, result_count, executed_at
		FROM search_history
		WHERE query LIKE ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`, "%"+text+"%", limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

// PruneOlderThan deletes entries executed before cutoff and returns how
// many were removed. The host invokes this on its own retention schedule.
func (s *Store) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM search_history WHERE executed_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var filters, executedAt string

		err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.ContentType,
			&e.Query,
			&filters,
			&e.ResultCount,
			&executedAt,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(filters), &e.Filters); err != nil {
			return nil, err
		}
		e.ExecutedAt, _ = time.Parse(timeLayout, executedAt)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
