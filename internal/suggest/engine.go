package suggest

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"

	"github.com/rebelice/kioskquery/internal/models"
)

// Weights tune the three terms of the ranking score. Recency and popularity
// are normalized to [0,1] against the observed history window before
// weighting.
type Weights struct {
	Recency    float64 `mapstructure:"recency"`
	Popularity float64 `mapstructure:"popularity"`
	Similarity float64 `mapstructure:"similarity"`
}

// DefaultWeights favors popularity slightly, matching kiosk usage where a
// handful of terms dominate
func DefaultWeights() Weights {
	return Weights{Recency: 0.3, Popularity: 0.4, Similarity: 0.3}
}

// Context carries the active filter context a suggestion call runs under
type Context struct {
	ContentType string
	// Vocabulary lists the content type's known filter field and category
	// names, offered as "category" suggestions on prefix match.
	Vocabulary []string
}

// Engine ranks candidate search terms from history, popularity and fuzzy
// similarity. Its popularity table is session state; call Reset between
// independent kiosk sessions so one visitor's selections never leak into
// the next visitor's ranking.
type Engine struct {
	mu               sync.Mutex
	weights          Weights
	popularThreshold int
	maxResults       int
	now              func() time.Time
	learned          map[string]*learnedTerm
}

// learnedTerm accumulates selections made through LearnFromSelection
type learnedTerm struct {
	text  string
	count int
	last  time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithWeights overrides the ranking weights
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithPopularThreshold sets the minimum occurrence count for a term to rank
// as "popular"
func WithPopularThreshold(n int) Option {
	return func(e *Engine) { e.popularThreshold = n }
}

// WithMaxResults caps the number of suggestions returned
func WithMaxResults(n int) Option {
	return func(e *Engine) { e.maxResults = n }
}

// WithClock injects a clock, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a suggestion engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights:          DefaultWeights(),
		popularThreshold: 3,
		maxResults:       10,
		now:              time.Now,
		learned:          make(map[string]*learnedTerm),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// termStat aggregates everything known about one search term
type termStat struct {
	text        string
	count       int
	last        time.Time
	resultCount int
}

// candidate is a term selected by one of the four sources, pre-scoring
type candidate struct {
	text        string
	kind        models.SuggestionType
	category    string
	resultCount int
}

// Generate produces a ranked, deduplicated list of suggestions for a
// partial input. An empty input returns only recent and popular terms,
// since similarity against an empty string is meaningless. Output order is
// deterministic for identical inputs. Any internal fault degrades to an
// empty list rather than blocking search.
func (e *Engine) Generate(partial string, history []models.HistoryEntry, ctx Context) (out []models.Suggestion) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()

	input := strings.ToLower(strings.TrimSpace(partial))
	stats, order := e.collectStats(history)

	var candidates []candidate
	seen := make(map[string]bool)
	add := func(c candidate) {
		key := strings.ToLower(c.text)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, c)
	}

	// (a) recent terms matching the input as prefix or substring
	recent := append([]string(nil), order...)
	sort.SliceStable(recent, func(i, j int) bool {
		si, sj := stats[recent[i]], stats[recent[j]]
		if !si.last.Equal(sj.last) {
			return si.last.After(sj.last)
		}
		return si.text < sj.text
	})
	for _, key := range recent {
		s := stats[key]
		if input == "" || strings.Contains(key, input) {
			add(candidate{text: s.text, kind: models.SuggestionRecent, resultCount: s.resultCount})
		}
	}

	// (b) terms past the popularity threshold, matched or not; low
	// similarity sinks the unrelated ones
	for _, key := range order {
		s := stats[key]
		if s.count >= e.popularThreshold {
			add(candidate{text: s.text, kind: models.SuggestionPopular, resultCount: s.resultCount})
		}
	}

	if input != "" {
		// (c) filter vocabulary of the active content type
		for _, name := range ctx.Vocabulary {
			if strings.HasPrefix(strings.ToLower(name), input) {
				add(candidate{text: name, kind: models.SuggestionCategory, category: ctx.ContentType})
			}
		}

		// (d) fuzzy fallback when nothing in history starts with the input
		if !hasPrefixMatch(order, input) {
			terms := make([]string, len(order))
			for i, key := range order {
				terms[i] = stats[key].text
			}
			for _, m := range fuzzy.Find(input, terms) {
				s := stats[strings.ToLower(m.Str)]
				add(candidate{text: s.text, kind: models.SuggestionSmart, resultCount: s.resultCount})
			}
		}
	}

	return e.rank(input, candidates, stats)
}

// LearnFromSelection records that the user picked a suggestion, raising its
// popularity and recency for future calls. The list already returned to the
// caller is unaffected.
func (e *Engine) LearnFromSelection(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	key := strings.ToLower(text)
	t, ok := e.learned[key]
	if !ok {
		t = &learnedTerm{text: text}
		e.learned[key] = t
	}
	t.count++
	t.last = e.now()
}

// Reset clears the learned popularity table between kiosk sessions
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.learned = make(map[string]*learnedTerm)
}

// collectStats folds the history log and the learned table into per-term
// stats. order preserves first appearance so ranking never depends on map
// iteration.
func (e *Engine) collectStats(history []models.HistoryEntry) (map[string]*termStat, []string) {
	stats := make(map[string]*termStat)
	var order []string

	for _, entry := range history {
		text := strings.TrimSpace(entry.Query)
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		s, ok := stats[key]
		if !ok {
			s = &termStat{text: text}
			stats[key] = s
			order = append(order, key)
		}
		s.count++
		if entry.ExecutedAt.After(s.last) {
			s.last = entry.ExecutedAt
			s.resultCount = entry.ResultCount
		}
	}

	e.mu.Lock()
	learnedKeys := make([]string, 0, len(e.learned))
	for key := range e.learned {
		learnedKeys = append(learnedKeys, key)
	}
	sort.Strings(learnedKeys)
	for _, key := range learnedKeys {
		t := e.learned[key]
		s, ok := stats[key]
		if !ok {
			s = &termStat{text: t.text}
			stats[key] = s
			order = append(order, key)
		}
		s.count += t.count
		if t.last.After(s.last) {
			s.last = t.last
		}
	}
	e.mu.Unlock()

	return stats, order
}

func hasPrefixMatch(order []string, input string) bool {
	for _, key := range order {
		if strings.HasPrefix(key, input) {
			return true
		}
	}
	return false
}

// rank scores the candidates and orders them most relevant first. Ties
// break by shorter text, then lexicographic order.
func (e *Engine) rank(input string, candidates []candidate, stats map[string]*termStat) []models.Suggestion {
	var oldest, newest time.Time
	maxCount := 0
	for _, s := range stats {
		if oldest.IsZero() || s.last.Before(oldest) {
			oldest = s.last
		}
		if s.last.After(newest) {
			newest = s.last
		}
		if s.count > maxCount {
			maxCount = s.count
		}
	}
	window := newest.Sub(oldest)

	out := make([]models.Suggestion, 0, len(candidates))
	for _, c := range candidates {
		var recency, popularity float64
		if s, ok := stats[strings.ToLower(c.text)]; ok {
			if window > 0 {
				recency = float64(s.last.Sub(oldest)) / float64(window)
			} else {
				recency = 1
			}
			if maxCount > 0 {
				popularity = float64(s.count) / float64(maxCount)
			}
		}

		similarity := 0.0
		if input != "" {
			similarity = textSimilarity(input, strings.ToLower(c.text))
		}

		score := e.weights.Recency*recency +
			e.weights.Popularity*popularity +
			e.weights.Similarity*similarity

		out = append(out, models.Suggestion{
			Type:        c.kind,
			Text:        c.text,
			Category:    c.category,
			ResultCount: c.resultCount,
			Score:       score,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if len(out[i].Text) != len(out[j].Text) {
			return len(out[i].Text) < len(out[j].Text)
		}
		return out[i].Text < out[j].Text
	})

	if e.maxResults > 0 && len(out) > e.maxResults {
		out = out[:e.maxResults]
	}
	return out
}

// textSimilarity is 1 - editDistance/max(len(a), len(b))
func textSimilarity(a, b string) float64 {
	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	sim := 1 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}
