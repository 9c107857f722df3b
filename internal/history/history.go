package history

import "github.com/rebelice/kioskquery/internal/models"

// Log is the history collaborator the engine consumes. The engine treats it
// as a read/append-only record of executed searches; retention is the
// owner's concern.
type Log interface {
	// Append records one executed search
	Append(entry models.HistoryEntry) error
	// Recent returns up to limit entries, newest first
	Recent(limit int) ([]models.HistoryEntry, error)
	// Search returns up to limit entries whose query text contains text,
	// newest first
	Search(text string, limit int) ([]models.HistoryEntry, error)
}
