package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rebelice/kioskquery/internal/models"
)

// Signature computes a canonical string for a filter tree's shape: filter
// kinds, field names and operator kinds, with child order sorted. Two trees
// that differ only in commutative child order or group labels share a
// signature. Bound values are excluded, so the signature identifies a query
// shape, not a concrete query.
func Signature(root models.FilterNode) string {
	return signatureNode(root)
}

func signatureNode(n models.FilterNode) string {
	switch n.Kind {
	case models.NodeLeaf:
		if n.Leaf == nil {
			return "leaf()"
		}
		return signatureLeaf(*n.Leaf)
	default:
		op := n.Op
		if n.Kind == models.NodeGroup || op == "" {
			op = models.LogicAnd
		}
		parts := make([]string, len(n.Children))
		for i, child := range n.Children {
			parts[i] = signatureNode(child)
		}
		sort.Strings(parts)
		return string(op) + "(" + strings.Join(parts, ",") + ")"
	}
}

func signatureLeaf(l models.FilterLeaf) string {
	field := strings.ToLower(l.Field())
	switch l.Kind {
	case models.LeafText:
		return fmt.Sprintf("text(%s,%s,%t)", field, l.Text.Match, l.Text.CaseSensitive)
	case models.LeafDate:
		bounds := ""
		if l.Date.Start != nil {
			bounds += "s"
		}
		if l.Date.End != nil {
			bounds += "e"
		}
		return fmt.Sprintf("date(%s,%s,%s)", field, l.Date.Preset, bounds)
	case models.LeafRange:
		return fmt.Sprintf("range(%s)", field)
	case models.LeafBoolean:
		return fmt.Sprintf("bool(%s)", field)
	case models.LeafCustom:
		return fmt.Sprintf("custom(%s,%s)", field, l.Custom.Predicate)
	default:
		return fmt.Sprintf("unknown(%s)", field)
	}
}
