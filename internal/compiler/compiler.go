package compiler

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rebelice/kioskquery/internal/models"
)

// InvalidFilterError reports a filter that violates a structural invariant.
// It is raised synchronously by Compile and never partially applied.
type InvalidFilterError struct {
	Field  string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	if e.Field == "" {
		return "invalid filter: " + e.Reason
	}
	return fmt.Sprintf("invalid filter on %q: %s", e.Field, e.Reason)
}

// fields are interpolated into the query text, so they must be plain
// identifiers (optionally schema-qualified)
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Compiler turns a FilterConfig into a parameterized predicate. Literal
// values are never interpolated into the query text; every value becomes a
// positional $n placeholder bound in traversal order.
type Compiler struct {
	now func() time.Time
}

// New creates a compiler resolving date presets against the wall clock
func New() *Compiler {
	return &Compiler{now: time.Now}
}

// NewWithClock creates a compiler with an injected clock, for tests
func NewWithClock(now func() time.Time) *Compiler {
	return &Compiler{now: now}
}

// Normalize merges the flat per-kind filter lists into a single tree.
// When cfg.Tree is set it is returned as-is (the tree is the richer
// representation); otherwise the lists become leaves of an implicit
// Operator node joined by cfg.Operator (AND when unset).
func Normalize(cfg models.FilterConfig) models.FilterNode {
	if cfg.Tree != nil {
		return *cfg.Tree
	}

	op := cfg.Operator
	if op == "" {
		op = models.LogicAnd
	}

	node := models.FilterNode{Kind: models.NodeOperator, Op: op}
	for _, f := range cfg.TextFilters {
		f := f
		node.Children = append(node.Children, models.NewLeaf(models.FilterLeaf{Kind: models.LeafText, Text: &f}))
	}
	for _, f := range cfg.DateFilters {
		f := f
		node.Children = append(node.Children, models.NewLeaf(models.FilterLeaf{Kind: models.LeafDate, Date: &f}))
	}
	for _, f := range cfg.RangeFilters {
		f := f
		node.Children = append(node.Children, models.NewLeaf(models.FilterLeaf{Kind: models.LeafRange, Range: &f}))
	}
	for _, f := range cfg.BooleanFilters {
		f := f
		node.Children = append(node.Children, models.NewLeaf(models.FilterLeaf{Kind: models.LeafBoolean, Boolean: &f}))
	}
	for _, f := range cfg.CustomFilters {
		f := f
		node.Children = append(node.Children, models.NewLeaf(models.FilterLeaf{Kind: models.LeafCustom, Custom: &f}))
	}
	return node
}

// Compile generates a parameterized predicate from a FilterConfig. An empty
// config compiles to the match-all predicate TRUE with no bound values.
func (c *Compiler) Compile(cfg models.FilterConfig) (string, []interface{}, error) {
	if cfg.IsEmpty() {
		return "TRUE", nil, nil
	}

	sql, args, _, err := c.compileNode(Normalize(cfg), 1)
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

// compileNode recursively builds one tree node, numbering placeholders
// from paramIndex. It returns the fragment, its bound values, and the next
// free placeholder index.
func (c *Compiler) compileNode(node models.FilterNode, paramIndex int) (string, []interface{}, int, error) {
	switch node.Kind {
	case models.NodeLeaf:
		if node.Leaf == nil {
			return "", nil, 0, &InvalidFilterError{Reason: "leaf node has no filter"}
		}
		return c.compileLeaf(*node.Leaf, paramIndex)

	case models.NodeOperator, models.NodeGroup:
		// An empty scope nested inside a larger tree still has to emit
		// something; TRUE keeps the surrounding expression valid and the
		// optimizer strips it back out.
		if len(node.Children) == 0 {
			return "TRUE", nil, paramIndex, nil
		}

		op := node.Op
		if node.Kind == models.NodeGroup || op == "" {
			op = models.LogicAnd
		}

		var clauses []string
		var args []interface{}
		current := paramIndex
		for _, child := range node.Children {
			clause, childArgs, next, err := c.compileNode(child, current)
			if err != nil {
				return "", nil, 0, err
			}
			if child.Kind != models.NodeLeaf {
				clause = "(" + clause + ")"
			}
			clauses = append(clauses, clause)
			args = append(args, childArgs...)
			current = next
		}
		return strings.Join(clauses, " "+string(op)+" "), args, current, nil

	default:
		return "", nil, 0, &InvalidFilterError{Reason: fmt.Sprintf("unknown node kind %q", node.Kind)}
	}
}

// compileLeaf builds the predicate fragment for a single filter leaf
func (c *Compiler) compileLeaf(leaf models.FilterLeaf, paramIndex int) (string, []interface{}, int, error) {
	field := leaf.Field()
	if field == "" {
		return "", nil, 0, &InvalidFilterError{Reason: "filter has an empty field"}
	}
	if !identPattern.MatchString(field) {
		return "", nil, 0, &InvalidFilterError{Field: field, Reason: "field is not a valid identifier"}
	}

	switch leaf.Kind {
	case models.LeafText:
		return compileText(*leaf.Text, paramIndex)
	case models.LeafDate:
		return c.compileDate(*leaf.Date, paramIndex)
	case models.LeafRange:
		f := *leaf.Range
		if f.Min > f.Max {
			return "", nil, 0, &InvalidFilterError{Field: field, Reason: "range min is greater than max"}
		}
		clause := fmt.Sprintf("%s BETWEEN $%d AND $%d", field, paramIndex, paramIndex+1)
		return clause, []interface{}{f.Min, f.Max}, paramIndex + 2, nil
	case models.LeafBoolean:
		clause := fmt.Sprintf("%s = $%d", field, paramIndex)
		return clause, []interface{}{leaf.Boolean.Value}, paramIndex + 1, nil
	case models.LeafCustom:
		return compileCustom(*leaf.Custom, paramIndex)
	default:
		return "", nil, 0, &InvalidFilterError{Field: field, Reason: fmt.Sprintf("unknown filter kind %q", leaf.Kind)}
	}
}

func compileText(f models.TextFilter, paramIndex int) (string, []interface{}, int, error) {
	var pattern string
	switch f.Match {
	case models.MatchEquals:
		// case-insensitive equality goes through ILIKE, so wildcards in
		// the value still need escaping there
		pattern = f.Value
		if !f.CaseSensitive {
			pattern = escapeLike(f.Value)
		}
	case models.MatchStartsWith:
		pattern = escapeLike(f.Value) + "%"
	case models.MatchEndsWith:
		pattern = "%" + escapeLike(f.Value)
	case models.MatchContains, "":
		pattern = "%" + escapeLike(f.Value) + "%"
	default:
		return "", nil, 0, &InvalidFilterError{Field: f.Field, Reason: fmt.Sprintf("unknown match type %q", f.Match)}
	}

	op := "ILIKE"
	if f.CaseSensitive {
		op = "LIKE"
		if f.Match == models.MatchEquals {
			op = "="
		}
	}

	clause := fmt.Sprintf("%s %s $%d", f.Field, op, paramIndex)
	return clause, []interface{}{pattern}, paramIndex + 1, nil
}

func (c *Compiler) compileDate(f models.DateFilter, paramIndex int) (string, []interface{}, int, error) {
	start, end := f.Start, f.End
	if f.Preset != "" && f.Preset != models.PresetCustom {
		ps, pe, ok := resolvePreset(f.Preset, c.now())
		if !ok {
			return "", nil, 0, &InvalidFilterError{Field: f.Field, Reason: fmt.Sprintf("unknown date preset %q", f.Preset)}
		}
		// explicit bounds win over the preset
		if start == nil {
			start = &ps
		}
		if end == nil {
			end = &pe
		}
	}

	switch {
	case start == nil && end == nil:
		return "", nil, 0, &InvalidFilterError{Field: f.Field, Reason: "date filter has neither bounds nor preset"}
	case start != nil && end != nil:
		if start.After(*end) {
			return "", nil, 0, &InvalidFilterError{Field: f.Field, Reason: "date range start is after end"}
		}
		clause := fmt.Sprintf("%s BETWEEN $%d AND $%d", f.Field, paramIndex, paramIndex+1)
		return clause, []interface{}{*start, *end}, paramIndex + 2, nil
	case start != nil:
		return fmt.Sprintf("%s >= $%d", f.Field, paramIndex), []interface{}{*start}, paramIndex + 1, nil
	default:
		return fmt.Sprintf("%s <= $%d", f.Field, paramIndex), []interface{}{*end}, paramIndex + 1, nil
	}
}

func compileCustom(f models.CustomFilter, paramIndex int) (string, []interface{}, int, error) {
	if strings.TrimSpace(f.Predicate) == "" {
		return "", nil, 0, &InvalidFilterError{Field: f.Field, Reason: "custom filter has an empty predicate"}
	}
	if strings.Count(f.Predicate, "?") != len(f.Args) {
		return "", nil, 0, &InvalidFilterError{Field: f.Field, Reason: "custom filter placeholder count does not match its arguments"}
	}

	var sb strings.Builder
	current := paramIndex
	for _, r := range f.Predicate {
		if r == '?' {
			fmt.Fprintf(&sb, "$%d", current)
			current++
			continue
		}
		sb.WriteRune(r)
	}
	return "(" + sb.String() + ")", append([]interface{}{}, f.Args...), current, nil
}

// escapeLike escapes LIKE wildcard characters in a user-supplied value so
// they match literally
func escapeLike(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "%", `\%`)
	v = strings.ReplaceAll(v, "_", `\_`)
	return v
}
