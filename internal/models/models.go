package models

import "time"

// QueryResult holds the outcome of executing a compiled query
type QueryResult struct {
	Columns  []string
	Rows     [][]string
	Count    int64
	Duration time.Duration
}

// HistoryEntry records one executed search
type HistoryEntry struct {
	ID          int
	SessionID   string
	ContentType string
	Query       string
	Filters     FilterConfig
	ResultCount int
	ExecutedAt  time.Time
}

// SuggestionType classifies where a suggestion candidate came from
type SuggestionType string

const (
	SuggestionRecent   SuggestionType = "recent"
	SuggestionPopular  SuggestionType = "popular"
	SuggestionCategory SuggestionType = "category"
	SuggestionSmart    SuggestionType = "smart"
)

// Suggestion is one ranked candidate search term. Suggestions are computed
// per keystroke and never persisted.
type Suggestion struct {
	Type        SuggestionType
	Text        string
	Category    string
	ResultCount int
	Score       float64
}
