package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rebelice/kioskquery/internal/history"
	"github.com/rebelice/kioskquery/internal/models"
)

// fakeExecutor records executions and returns a canned result
type fakeExecutor struct {
	mu     sync.Mutex
	calls  int
	sqls   []string
	args   [][]interface{}
	result models.QueryResult
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, sql string, args []interface{}) (models.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sqls = append(f.sqls, sql)
	f.args = append(f.args, args)
	if f.err != nil {
		return models.QueryResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func smithConfig() models.FilterConfig {
	return models.FilterConfig{
		ContentType: "alumni",
		Operator:    models.LogicAnd,
		TextFilters: []models.TextFilter{
			{Field: "lastName", Value: "Smith", Match: models.MatchEquals, CaseSensitive: true},
		},
		RangeFilters: []models.RangeFilter{{Field: "gradYear", Min: 1990, Max: 1999}},
	}
}

// smithTree is smithConfig expressed as an explicit tree
func smithTree() models.FilterConfig {
	tree := models.NewOperator(models.LogicAnd,
		models.NewLeaf(models.FilterLeaf{Kind: models.LeafText, Text: &models.TextFilter{
			Field: "lastName", Value: "Smith", Match: models.MatchEquals, CaseSensitive: true,
		}}),
		models.NewLeaf(models.FilterLeaf{Kind: models.LeafRange, Range: &models.RangeFilter{
			Field: "gradYear", Min: 1990, Max: 1999,
		}}),
	)
	return models.FilterConfig{ContentType: "alumni", Tree: &tree}
}

func TestSearch_CompilesAndExecutes(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{
		Columns: []string{"lastName"},
		Rows:    [][]string{{"Smith"}},
		Count:   1,
	}}
	eng := New(exec)

	result, err := eng.Search(context.Background(), smithConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Count != 1 {
		t.Errorf("unexpected result %+v", result)
	}

	wantSQL := "SELECT * FROM alumni WHERE lastName = $1 AND gradYear BETWEEN $2 AND $3"
	if exec.sqls[0] != wantSQL {
		t.Errorf("expected %q, got %q", wantSQL, exec.sqls[0])
	}
	wantArgs := []interface{}{"Smith", 1990.0, 1999.0}
	if len(exec.args[0]) != 3 {
		t.Fatalf("expected 3 bound values, got %v", exec.args[0])
	}
	for i, v := range wantArgs {
		if exec.args[0][i] != v {
			t.Errorf("arg %d: expected %v, got %v", i, v, exec.args[0][i])
		}
	}
}

func TestSearch_EquivalentConfigsShareCacheEntry(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{Count: 2}}
	eng := New(exec)
	ctx := context.Background()

	if _, err := eng.Search(ctx, smithConfig()); err != nil {
		t.Fatalf("flat config: %v", err)
	}
	if _, err := eng.Search(ctx, smithTree()); err != nil {
		t.Fatalf("tree config: %v", err)
	}

	if exec.callCount() != 1 {
		t.Errorf("equivalent configs should share one execution, got %d", exec.callCount())
	}
}

func TestSearch_CachedUntilInvalidated(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{Count: 2}}
	eng := New(exec)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := eng.Search(ctx, smithConfig()); err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
	}
	if exec.callCount() != 1 {
		t.Fatalf("expected one execution before invalidation, got %d", exec.callCount())
	}

	eng.InvalidateData()
	if _, err := eng.Search(ctx, smithConfig()); err != nil {
		t.Fatalf("search after invalidation: %v", err)
	}
	if exec.callCount() != 2 {
		t.Errorf("expected a re-execution after InvalidateData, got %d", exec.callCount())
	}
}

func TestSearch_ScopedInvalidation(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{Count: 2}}
	eng := New(exec)
	ctx := context.Background()

	if _, err := eng.Search(ctx, smithConfig()); err != nil {
		t.Fatal(err)
	}
	if err := eng.InvalidateConfig(smithConfig()); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Search(ctx, smithConfig()); err != nil {
		t.Fatal(err)
	}
	if exec.callCount() != 2 {
		t.Errorf("expected re-execution after scoped invalidation, got %d", exec.callCount())
	}
}

func TestSearch_ExecutionErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	exec := &fakeExecutor{err: boom}
	eng := New(exec)

	_, err := eng.Search(context.Background(), smithConfig())
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %T: %v", err, err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected the cause to be preserved, got %v", err)
	}
}

func TestSearch_InvalidFilterRejected(t *testing.T) {
	exec := &fakeExecutor{}
	eng := New(exec)

	cfg := models.FilterConfig{
		ContentType: "alumni",
		TextFilters: []models.TextFilter{{Field: "", Value: "x", Match: models.MatchContains}},
	}
	if _, err := eng.Search(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an empty field")
	}
	if exec.callCount() != 0 {
		t.Error("invalid configs must never reach the executor")
	}
}

func TestSearch_RejectsBadContentType(t *testing.T) {
	eng := New(&fakeExecutor{})

	cfg := models.FilterConfig{ContentType: "alumni; DROP TABLE alumni"}
	if _, err := eng.Search(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an invalid content type")
	}
}

func TestSearch_AppendsHistory(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{Count: 4}}
	log := history.NewMemoryLog()
	eng := New(exec, WithHistory(log))

	if _, err := eng.Search(context.Background(), smithConfig()); err != nil {
		t.Fatal(err)
	}

	entries, err := log.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ContentType != "alumni" || e.Query != "Smith" || e.ResultCount != 4 {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.SessionID != eng.SessionID() {
		t.Errorf("entry should carry the engine session id")
	}
}

func TestCount_UsesCountStatement(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{Rows: [][]string{{"42"}}, Count: 1}}
	eng := New(exec)

	n, err := eng.Count(context.Background(), smithConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
	if !strings.HasPrefix(exec.sqls[0], "SELECT COUNT(*) FROM alumni WHERE ") {
		t.Errorf("unexpected count statement %q", exec.sqls[0])
	}
}

func TestSearch_EmptyConfigMatchesAll(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{Count: 100}}
	eng := New(exec)

	if _, err := eng.Search(context.Background(), models.FilterConfig{ContentType: "alumni"}); err != nil {
		t.Fatal(err)
	}
	if exec.sqls[0] != "SELECT * FROM alumni WHERE TRUE" {
		t.Errorf("unexpected sql %q", exec.sqls[0])
	}
	if len(exec.args[0]) != 0 {
		t.Errorf("expected no bound values, got %v", exec.args[0])
	}
}

func TestReset_NewSessionAndColdCache(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{Count: 2}}
	eng := New(exec)
	ctx := context.Background()

	if _, err := eng.Search(ctx, smithConfig()); err != nil {
		t.Fatal(err)
	}
	before := eng.SessionID()

	eng.Reset()
	if eng.SessionID() == before {
		t.Error("Reset should start a new session")
	}

	if _, err := eng.Search(ctx, smithConfig()); err != nil {
		t.Fatal(err)
	}
	if exec.callCount() != 2 {
		t.Errorf("Reset should drop cached results, got %d executions", exec.callCount())
	}
}

func TestSearch_WithLimit(t *testing.T) {
	exec := &fakeExecutor{result: models.QueryResult{Count: 0}}
	eng := New(exec, WithLimit(50))

	if _, err := eng.Search(context.Background(), models.FilterConfig{ContentType: "alumni"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(exec.sqls[0], " LIMIT 50") {
		t.Errorf("expected a LIMIT clause, got %q", exec.sqls[0])
	}
}
