package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rebelice/kioskquery/internal/cache"
	"github.com/rebelice/kioskquery/internal/compiler"
	"github.com/rebelice/kioskquery/internal/history"
	"github.com/rebelice/kioskquery/internal/models"
	"github.com/rebelice/kioskquery/internal/optimizer"
)

// ExecutionError wraps a failure from the external data layer. The engine
// never retries; retry policy belongs to the data-layer collaborator.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return "query execution failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor runs a compiled, parameterized query against the external data
// layer. Implementations must bind args positionally and never receive raw
// user text in sql.
type Executor interface {
	Execute(ctx context.Context, sql string, args []interface{}) (models.QueryResult, error)
}

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Engine is the search entry point: it compiles a FilterConfig, optimizes
// the compiled query, consults the result cache, and executes on a miss.
// Concurrent searches for the same signature share one execution.
type Engine struct {
	compiler  *compiler.Compiler
	optimizer *optimizer.Optimizer
	cache     *cache.ResultCache
	exec      Executor
	log       history.Log
	limit     int

	mu        sync.Mutex
	sessionID string
}

// Option configures an Engine
type Option func(*Engine)

// WithHistory attaches a history log; every successful search is appended
func WithHistory(log history.Log) Option {
	return func(e *Engine) { e.log = log }
}

// WithCache replaces the default result cache
func WithCache(c *cache.ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCompiler replaces the default compiler (a fixed clock, for tests)
func WithCompiler(c *compiler.Compiler) Option {
	return func(e *Engine) { e.compiler = c }
}

// WithLimit caps result rows per search; 0 means no limit
func WithLimit(n int) Option {
	return func(e *Engine) { e.limit = n }
}

// New creates an Engine over an executor
func New(exec Executor, opts ...Option) *Engine {
	e := &Engine{
		compiler:  compiler.New(),
		optimizer: optimizer.New(),
		cache:     cache.New(100, cache.DefaultTTL),
		exec:      exec,
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search compiles, optimizes and executes a filter config, returning the
// matching rows. Results are served from the cache when a fresh entry
// exists; a superseded caller must discard its own late result ("last
// request started wins" is the host's contract, not the engine's).
func (e *Engine) Search(ctx context.Context, cfg models.FilterConfig) (models.QueryResult, error) {
	sql, args, err := e.compileFull(cfg, false)
	if err != nil {
		return models.QueryResult{}, err
	}

	key := cache.Key(cfg.ContentType, sql, args)
	result, err := e.cache.GetOrFill(key, func() (models.QueryResult, error) {
		res, execErr := e.exec.Execute(ctx, sql, args)
		if execErr != nil {
			return models.QueryResult{}, &ExecutionError{Err: execErr}
		}
		return res, nil
	})
	if err != nil {
		return models.QueryResult{}, err
	}

	if e.log != nil {
		// history is advisory; a failed append never fails the search
		_ = e.log.Append(models.HistoryEntry{
			SessionID:   e.SessionID(),
			ContentType: cfg.ContentType,
			Query:       primaryTerm(cfg),
			Filters:     cfg,
			ResultCount: int(result.Count),
			ExecutedAt:  time.Now(),
		})
	}

	return result, nil
}

// Count is Search for the matching row count only
func (e *Engine) Count(ctx context.Context, cfg models.FilterConfig) (int64, error) {
	sql, args, err := e.compileFull(cfg, true)
	if err != nil {
		return 0, err
	}

	key := cache.Key(cfg.ContentType, sql, args)
	result, err := e.cache.GetOrFill(key, func() (models.QueryResult, error) {
		res, execErr := e.exec.Execute(ctx, sql, args)
		if execErr != nil {
			return models.QueryResult{}, &ExecutionError{Err: execErr}
		}
		// COUNT(*) comes back as a single cell
		if len(res.Rows) == 1 && len(res.Rows[0]) == 1 {
			if n, perr := strconv.ParseInt(res.Rows[0][0], 10, 64); perr == nil {
				res.Count = n
			}
		}
		return res, nil
	})
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

// InvalidateData drops every cached result. The host must call this when
// the underlying data set changes; the cache cannot detect mutation itself.
func (e *Engine) InvalidateData() {
	e.cache.InvalidateAll()
}

// InvalidateConfig drops the cached result for one filter config
func (e *Engine) InvalidateConfig(cfg models.FilterConfig) error {
	sql, args, err := e.compileFull(cfg, false)
	if err != nil {
		return err
	}
	e.cache.Invalidate(cache.Key(cfg.ContentType, sql, args))
	return nil
}

// Reset clears cached results and starts a fresh session, so one visitor's
// state never leaks into the next kiosk session
func (e *Engine) Reset() {
	e.cache.InvalidateAll()
	e.mu.Lock()
	e.sessionID = uuid.NewString()
	e.mu.Unlock()
}

// SessionID returns the current session identifier
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// compileFull builds the complete statement for a config: compiled
// predicate, optimizer pass, then the outer SELECT
func (e *Engine) compileFull(cfg models.FilterConfig, count bool) (string, []interface{}, error) {
	if !tablePattern.MatchString(cfg.ContentType) {
		return "", nil, &compiler.InvalidFilterError{
			Field:  "content_type",
			Reason: fmt.Sprintf("%q is not a valid content type", cfg.ContentType),
		}
	}

	pred, args, err := e.compiler.Compile(cfg)
	if err != nil {
		return "", nil, err
	}
	pred, args = e.optimizer.Optimize(pred, args)

	if count {
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", cfg.ContentType, pred), args, nil
	}

	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s", cfg.ContentType, pred)
	if e.limit > 0 {
		sql = fmt.Sprintf("%s LIMIT %d", sql, e.limit)
	}
	return sql, args, nil
}

// primaryTerm extracts the user-facing search term from a config for the
// history log: the first text filter's value
func primaryTerm(cfg models.FilterConfig) string {
	if cfg.Tree != nil {
		return firstTextValue(*cfg.Tree)
	}
	if len(cfg.TextFilters) > 0 {
		return cfg.TextFilters[0].Value
	}
	return ""
}

func firstTextValue(n models.FilterNode) string {
	if n.Kind == models.NodeLeaf {
		if n.Leaf != nil && n.Leaf.Kind == models.LeafText && n.Leaf.Text != nil {
			return n.Leaf.Text.Value
		}
		return ""
	}
	for _, child := range n.Children {
		if v := firstTextValue(child); v != "" {
			return v
		}
	}
	return ""
}
