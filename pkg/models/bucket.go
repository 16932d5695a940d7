package models

import "strings"

// CatchAllName is the reserved root bucket for empty and unclassified values.
const CatchAllName = "General / Unformatted"

// BucketNode is one node of a classification hierarchy.
// RowCount aggregates the whole subtree; RowIndices only holds rows assigned
// directly to this node.
type BucketNode struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Depth         int           `json:"depth"`
	RowCount      int           `json:"rowCount"`
	RowIndices    []int         `json:"rowIndices"`
	Children      []*BucketNode `json:"children"`
	ChildrenCount int           `json:"childrenCount"`
}

// IsCatchAll reports whether the node is the reserved catch-all bucket.
func (n *BucketNode) IsCatchAll() bool {
	return n != nil && n.Depth == 0 && strings.EqualFold(n.Name, CatchAllName)
}

// TaxonomyNode is the input shape of a proposed or confirmed taxonomy.
type TaxonomyNode struct {
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Children      []TaxonomyNode `json:"children,omitempty" yaml:"children,omitempty"`
	IsAISuggested bool           `json:"isAiSuggested,omitempty" yaml:"isAiSuggested,omitempty"`
}
