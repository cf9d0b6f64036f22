// Package pivot groups line items into a fixed-depth tree with quantity and
// amount rollups at every level.
package pivot

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// KeySeparator joins the labels of a node path into its key. A separator or
// backslash inside a label is escaped with a backslash, so distinct paths
// never share a key.
const KeySeparator = "›"

var labelEscaper = strings.NewReplacer(`\`, `\\`, KeySeparator, `\`+KeySeparator)

// PathKey returns the node key of a label path.
func PathKey(labels ...string) string {
	escaped := make([]string, len(labels))
	for i, l := range labels {
		escaped[i] = labelEscaper.Replace(l)
	}
	return strings.Join(escaped, KeySeparator)
}

// Dimension maps an item to its label at one level. SortKey orders sibling
// nodes; when nil the label is used.
type Dimension[T any] struct {
	Name    string
	Label   func(T) string
	SortKey func(T) string
}

// Measure extracts the quantity and amount of an item.
type Measure[T any] func(T) (qty float64, amount decimal.Decimal)

// Node is one grouping level. Only leaf nodes carry Items.
type Node[T any] struct {
	Key           string          `json:"key"`
	Dimension     string          `json:"dimension"`
	Label         string          `json:"label"`
	Depth         int             `json:"depth"`
	TotalQuantity float64         `json:"total_quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Children      []*Node[T]      `json:"children,omitempty"`
	Items         []T             `json:"items,omitempty"`

	sortKey string
}

// IsLeaf reports whether the node sits at the last dimension.
func (n *Node[T]) IsLeaf() bool {
	return len(n.Children) == 0
}

// Build walks every item down the dimensions, creating nodes on first sight
// and accumulating totals at each level touched. Siblings at every level are
// ordered by sort key, then label, so locale-formatted labels still sort by
// their underlying value.
func Build[T any](items []T, dims []Dimension[T], measure Measure[T]) []*Node[T] {
	if len(dims) == 0 {
		return nil
	}
	var roots []*Node[T]
	for _, item := range items {
		qty, amount := measure(item)
		siblings := &roots
		path := make([]string, 0, len(dims))
		for depth, dim := range dims {
			label := dim.Label(item)
			path = append(path, label)
			node := find(*siblings, label)
			if node == nil {
				sortKey := label
				if dim.SortKey != nil {
					sortKey = dim.SortKey(item)
				}
				node = &Node[T]{
					Key:       PathKey(path...),
					Dimension: dim.Name,
					Label:     label,
					Depth:     depth,
					sortKey:   sortKey,
				}
				*siblings = append(*siblings, node)
			}
			node.TotalQuantity += qty
			node.TotalAmount = node.TotalAmount.Add(amount)
			if depth == len(dims)-1 {
				node.Items = append(node.Items, item)
			}
			siblings = &node.Children
		}
	}
	sortNodes(roots)
	return roots
}

func find[T any](nodes []*Node[T], label string) *Node[T] {
	for _, n := range nodes {
		if n.Label == label {
			return n
		}
	}
	return nil
}

func sortNodes[T any](nodes []*Node[T]) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].sortKey != nodes[j].sortKey {
			return nodes[i].sortKey < nodes[j].sortKey
		}
		return nodes[i].Label < nodes[j].Label
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Walk visits nodes depth first, parents before children. Returning false
// from fn skips the node's children.
func Walk[T any](nodes []*Node[T], fn func(*Node[T]) bool) {
	for _, n := range nodes {
		if fn(n) {
			Walk(n.Children, fn)
		}
	}
}

// Totals sums the quantity and amount of root nodes.
func Totals[T any](nodes []*Node[T]) (qty float64, amount decimal.Decimal) {
	for _, n := range nodes {
		qty += n.TotalQuantity
		amount = amount.Add(n.TotalAmount)
	}
	return qty, amount
}
