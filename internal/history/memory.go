package history

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rebelice/kioskquery/internal/models"
)

// MemoryLog is an in-process Log for kiosks without persistent storage and
// for tests
type MemoryLog struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	nextID  int
}

// NewMemoryLog creates an empty in-memory history log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1}
}

// Append records one executed search
func (m *MemoryLog) Append(entry models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.nextID
	m.nextID++
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Recent returns up to limit entries, newest first
func (m *MemoryLog) Recent(limit int) ([]models.HistoryEntry, error) {
	return m.filter(limit, func(models.HistoryEntry) bool { return true })
}

// Search returns up to limit entries containing text, newest first
func (m *MemoryLog) Search(text string, limit int) ([]models.HistoryEntry, error) {
	needle := strings.ToLower(text)
	return m.filter(limit, func(e models.HistoryEntry) bool {
		return strings.Contains(strings.ToLower(e.Query), needle)
	})
}

// PruneOlderThan drops entries executed before cutoff
func (m *MemoryLog) PruneOlderThan(cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	var removed int64
	for _, e := range m.entries {
		if e.ExecutedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}

func (m *MemoryLog) filter(limit int, match func(models.HistoryEntry) bool) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.HistoryEntry
	for _, e := range m.entries {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.After(out[j].ExecutedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
