package models

import "time"

// LogicOp combines sibling filter nodes
type LogicOp string

const (
	LogicAnd LogicOp = "AND"
	LogicOr  LogicOp = "OR"
)

// MatchType controls how a text filter compares its value
type MatchType string

const (
	MatchContains   MatchType = "contains"
	MatchEquals     MatchType = "equals"
	MatchStartsWith MatchType = "startsWith"
	MatchEndsWith   MatchType = "endsWith"
)

// DatePreset names a date range relative to "now"
type DatePreset string

const (
	PresetToday  DatePreset = "today"
	PresetWeek   DatePreset = "week"
	PresetMonth  DatePreset = "month"
	PresetYear   DatePreset = "year"
	PresetCustom DatePreset = "custom"
)

// TextFilter matches a text column against a pattern
type TextFilter struct {
	Field         string    `json:"field"`
	Value         string    `json:"value"`
	Match         MatchType `json:"match"`
	CaseSensitive bool      `json:"case_sensitive,omitempty"`
}

// DateFilter restricts a date column to a range. Explicit bounds take
// precedence over Preset when both are set.
type DateFilter struct {
	Field  string     `json:"field"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Preset DatePreset `json:"preset,omitempty"`
}

// RangeFilter restricts a numeric column to a closed interval.
// Step is display metadata for the host UI and is ignored when compiling.
type RangeFilter struct {
	Field string  `json:"field"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step,omitempty"`
}

// BooleanFilter matches a boolean column
type BooleanFilter struct {
	Field string `json:"field"`
	Value bool   `json:"value"`
}

// CustomFilter carries a raw predicate supplied by the host. Placeholders
// are written as "?" and bind Args in order; the compiler renumbers them.
type CustomFilter struct {
	Field     string        `json:"field"`
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args,omitempty"`
}

// LeafKind tags the concrete filter held by a FilterLeaf
type LeafKind string

const (
	LeafText    LeafKind = "text"
	LeafDate    LeafKind = "date"
	LeafRange   LeafKind = "range"
	LeafBoolean LeafKind = "boolean"
	LeafCustom  LeafKind = "custom"
)

// FilterLeaf is a tagged union over the five concrete filter kinds.
// Exactly the pointer named by Kind is set.
type FilterLeaf struct {
	Kind    LeafKind       `json:"kind"`
	Text    *TextFilter    `json:"text,omitempty"`
	Date    *DateFilter    `json:"date,omitempty"`
	Range   *RangeFilter   `json:"range,omitempty"`
	Boolean *BooleanFilter `json:"boolean,omitempty"`
	Custom  *CustomFilter  `json:"custom,omitempty"`
}

// Field returns the column the leaf filters on, or "" for a malformed leaf
func (l FilterLeaf) Field() string {
	switch l.Kind {
	case LeafText:
		if l.Text != nil {
			return l.Text.Field
		}
	case LeafDate:
		if l.Date != nil {
			return l.Date.Field
		}
	case LeafRange:
		if l.Range != nil {
			return l.Range.Field
		}
	case LeafBoolean:
		if l.Boolean != nil {
			return l.Boolean.Field
		}
	case LeafCustom:
		if l.Custom != nil {
			return l.Custom.Field
		}
	}
	return ""
}

// NodeKind tags a FilterNode
type NodeKind string

const (
	NodeLeaf     NodeKind = "leaf"
	NodeOperator NodeKind = "operator"
	NodeGroup    NodeKind = "group"
)

// FilterNode is one node of a filter tree. Leaf nodes hold a single
// FilterLeaf; Operator nodes combine Children with Op; Group nodes behave
// like AND operators but carry a user-facing Name.
type FilterNode struct {
	Kind     NodeKind     `json:"kind"`
	Op       LogicOp      `json:"op,omitempty"`
	Name     string       `json:"name,omitempty"`
	Leaf     *FilterLeaf  `json:"leaf,omitempty"`
	Children []FilterNode `json:"children,omitempty"`
}

// NewLeaf wraps a FilterLeaf in a tree node
func NewLeaf(leaf FilterLeaf) FilterNode {
	return FilterNode{Kind: NodeLeaf, Leaf: &leaf}
}

// NewOperator combines children under a logical operator
func NewOperator(op LogicOp, children ...FilterNode) FilterNode {
	return FilterNode{Kind: NodeOperator, Op: op, Children: children}
}

// NewGroup combines children under a named AND scope
func NewGroup(name string, children ...FilterNode) FilterNode {
	return FilterNode{Kind: NodeGroup, Name: name, Children: children}
}

// FilterConfig is the root filter state for one search. The flat per-kind lists
// and Tree are two representations of the same predicate set; when Tree is
// set it wins, otherwise the lists become leaves of an implicit Operator
// node joined by Operator.
type FilterConfig struct {
	ContentType    string          `json:"content_type"`
	Operator       LogicOp         `json:"operator,omitempty"`
	TextFilters    []TextFilter    `json:"text_filters,omitempty"`
	DateFilters    []DateFilter    `json:"date_filters,omitempty"`
	RangeFilters   []RangeFilter   `json:"range_filters,omitempty"`
	BooleanFilters []BooleanFilter `json:"boolean_filters,omitempty"`
	CustomFilters  []CustomFilter  `json:"custom_filters,omitempty"`
	Tree           *FilterNode     `json:"tree,omitempty"`
}

// IsEmpty reports whether the config carries no predicates at all
func (c FilterConfig) IsEmpty() bool {
	if c.Tree != nil {
		return treeEmpty(*c.Tree)
	}
	return len(c.TextFilters) == 0 && len(c.DateFilters) == 0 &&
		len(c.RangeFilters) == 0 && len(c.BooleanFilters) == 0 &&
		len(c.CustomFilters) == 0
}

func treeEmpty(n FilterNode) bool {
	if n.Kind == NodeLeaf {
		return n.Leaf == nil
	}
	for _, child := range n.Children {
		if !treeEmpty(child) {
			return false
		}
	}
	return true
}
