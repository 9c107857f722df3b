package optimizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Optimizer rewrites a compiled predicate: tautological fragments are
// removed, redundant parentheses collapsed, and duplicate predicates under
// the same AND scope deduplicated. Optimization is pure and idempotent;
// bound values stay aligned with their placeholders throughout.
//
// Rewrites of structurally identical queries are memoized, so repeated
// optimization of the same compiled shape is a map lookup.
type Optimizer struct {
	mu   sync.Mutex
	memo map[string]memoEntry
}

// memoEntry records a rewrite: the optimized text plus, for each surviving
// placeholder in order, the index of the original bound value it kept.
type memoEntry struct {
	sql  string
	keep []int
}

// New creates an optimizer with an empty memo table
func New() *Optimizer {
	return &Optimizer{memo: make(map[string]memoEntry)}
}

// Optimize rewrites a compiled predicate and its bound values. Input that
// cannot be parsed as a predicate the compiler emits is returned unchanged.
func (o *Optimizer) Optimize(sql string, args []interface{}) (string, []interface{}) {
	// deduplication is sensitive to which bound values coincide, so the
	// memo key carries the value-equality pattern alongside the text
	key := sql + "|" + equalityPattern(args)

	o.mu.Lock()
	entry, ok := o.memo[key]
	o.mu.Unlock()
	if ok && aligned(entry.keep, len(args)) {
		return entry.sql, pick(args, entry.keep)
	}

	entry, ok = rewrite(sql, args)
	if !ok {
		return sql, args
	}

	o.mu.Lock()
	o.memo[key] = entry
	o.mu.Unlock()
	return entry.sql, pick(args, entry.keep)
}

// equalityPattern maps each bound value to the index of its first equal
// predecessor, so [a a b] and [x x y] share a pattern while [a b b] does not
func equalityPattern(args []interface{}) string {
	var sb strings.Builder
	for i, v := range args {
		first := i
		for j := 0; j < i; j++ {
			if fmt.Sprintf("%v", args[j]) == fmt.Sprintf("%v", v) {
				first = j
				break
			}
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(first))
	}
	return sb.String()
}

// ClearMemo drops all memoized rewrites
func (o *Optimizer) ClearMemo() {
	o.mu.Lock()
	o.memo = make(map[string]memoEntry)
	o.mu.Unlock()
}

func rewrite(sql string, args []interface{}) (memoEntry, bool) {
	// every placeholder must have a bound value or the rewrite cannot keep
	// them aligned
	for _, m := range placeholderRe.FindAllStringSubmatch(sql, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(args) {
			return memoEntry{}, false
		}
	}

	root := parseExpr(sql)
	root = simplify(root, args)

	r := &rebuilder{next: 1}
	text := r.render(root)
	return memoEntry{sql: text, keep: r.keep}, true
}

func aligned(keep []int, argCount int) bool {
	for _, idx := range keep {
		if idx >= argCount {
			return false
		}
	}
	return true
}

func pick(args []interface{}, keep []int) []interface{} {
	if len(keep) == 0 {
		return nil
	}
	out := make([]interface{}, len(keep))
	for i, idx := range keep {
		out[i] = args[idx]
	}
	return out
}

// node is one operand of the parsed predicate. A leaf holds fragment text;
// an inner node joins children with op.
type node struct {
	op       string
	frag     string
	children []*node
}

func (n *node) leaf() bool { return len(n.children) == 0 }

func isMatchAll(n *node) bool {
	if !n.leaf() {
		return false
	}
	switch strings.TrimSpace(n.frag) {
	case "TRUE", "1=1", "1 = 1":
		return true
	}
	return false
}

// parseExpr parses the predicate grammar the compiler emits: fragments
// joined by a single logical operator per scope, with parenthesized
// sub-scopes. Anything irregular stays an opaque leaf.
func parseExpr(s string) *node {
	s = strings.TrimSpace(s)
	if inner, ok := unwrapParens(s); ok {
		return parseExpr(inner)
	}

	operands, op, ok := splitTop(s)
	if !ok || len(operands) == 1 {
		if len(operands) == 1 && ok && operands[0] != s {
			return parseExpr(operands[0])
		}
		return &node{frag: s}
	}

	children := make([]*node, len(operands))
	for i, operand := range operands {
		children[i] = parseExpr(operand)
	}
	return &node{op: op, children: children}
}

// unwrapParens strips one balanced outer paren pair
func unwrapParens(s string) (string, bool) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return "", false
			}
		}
	}
	return s[1 : len(s)-1], depth == 0
}

// splitTop splits s on its depth-zero logical operator. A scope mixing AND
// and OR is not something the compiler produces, so it reports !ok and the
// caller keeps the text opaque.
func splitTop(s string) ([]string, string, bool) {
	var operands []string
	var op string
	depth := 0
	start := 0
	betweenAnd := false // the AND of "x BETWEEN a AND b" is not a join

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth != 0 {
			continue
		}

		if strings.HasPrefix(s[i:], " BETWEEN ") {
			betweenAnd = true
			i += len(" BETWEEN ") - 1
			continue
		}

		var found string
		switch {
		case strings.HasPrefix(s[i:], " AND "):
			found = "AND"
		case strings.HasPrefix(s[i:], " OR "):
			found = "OR"
		default:
			continue
		}

		if found == "AND" && betweenAnd {
			betweenAnd = false
			i += len(" AND ") - 1
			continue
		}

		if op != "" && op != found {
			return nil, "", false
		}
		op = found
		operands = append(operands, strings.TrimSpace(s[start:i]))
		i += len(found) + 1
		start = i + 1
	}

	operands = append(operands, strings.TrimSpace(s[start:]))
	return operands, op, true
}

// simplify rewrites the tree bottom-up to its simplest equivalent form
func simplify(n *node, args []interface{}) *node {
	if n.leaf() {
		return n
	}

	children := make([]*node, 0, len(n.children))
	for _, child := range n.children {
		child = simplify(child, args)
		// nested scope with the same operator folds into this one
		if !child.leaf() && child.op == n.op {
			children = append(children, child.children...)
			continue
		}
		children = append(children, child)
	}

	if n.op == "OR" {
		// TRUE absorbs the whole OR scope
		for _, child := range children {
			if isMatchAll(child) {
				return &node{frag: "TRUE"}
			}
		}
	}

	if n.op == "AND" {
		children = dropTautologies(children)
		children = dedupe(children, args)
	}

	if len(children) == 1 {
		return children[0]
	}
	return &node{op: n.op, children: children}
}

// dropTautologies removes match-all conjuncts, keeping one if nothing else
// remains
func dropTautologies(children []*node) []*node {
	kept := children[:0:0]
	for _, child := range children {
		if !isMatchAll(child) {
			kept = append(kept, child)
		}
	}
	if len(kept) == 0 {
		return []*node{{frag: "TRUE"}}
	}
	return kept
}

// dedupe removes conjuncts that repeat an earlier sibling: same fragment
// shape and the same bound values. The first occurrence and its values
// survive. A repeat with different values is a different predicate and
// stays.
func dedupe(children []*node, args []interface{}) []*node {
	seen := make(map[string]bool, len(children))
	kept := children[:0:0]
	for _, child := range children {
		plain := renderPlain(child)
		key := maskPlaceholders(plain) + "|" + fmt.Sprintf("%v", boundValues(plain, args))
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, child)
	}
	return kept
}

// boundValues resolves the values a rendered subtree binds, in placeholder
// order
func boundValues(plain string, args []interface{}) []interface{} {
	var vals []interface{}
	for _, m := range placeholderRe.FindAllStringSubmatch(plain, -1) {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= len(args) {
			vals = append(vals, args[n-1])
		}
	}
	return vals
}

func maskPlaceholders(s string) string {
	return placeholderRe.ReplaceAllString(s, "$$?")
}

// renderPlain renders a subtree without renumbering, for shape comparison
func renderPlain(n *node) string {
	if n.leaf() {
		return n.frag
	}
	parts := make([]string, len(n.children))
	for i, child := range n.children {
		parts[i] = renderPlain(child)
		if !child.leaf() {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, " "+n.op+" ")
}

// rebuilder renders the simplified tree, renumbering placeholders
// left-to-right and recording which original bound values survive
type rebuilder struct {
	next int
	keep []int
}

func (r *rebuilder) render(n *node) string {
	if n.leaf() {
		return placeholderRe.ReplaceAllStringFunc(n.frag, func(m string) string {
			old, _ := strconv.Atoi(m[1:])
			r.keep = append(r.keep, old-1)
			out := "$" + strconv.Itoa(r.next)
			r.next++
			return out
		})
	}

	parts := make([]string, len(n.children))
	for i, child := range n.children {
		parts[i] = r.render(child)
		if !child.leaf() {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, " "+n.op+" ")
}
