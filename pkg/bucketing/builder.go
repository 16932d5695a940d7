package bucketing

import (
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// missingName is used for taxonomy nodes that arrive without a name.
const missingName = "undefined"

// BuildTree turns a confirmed taxonomy into a fresh bucket tree with the
// catch-all prepended. Case-insensitive duplicate siblings are merged into
// the first occurrence. A root named like the catch-all is dropped.
func BuildTree(taxonomy []models.TaxonomyNode) *Tree {
	t := NewTree()
	for _, tn := range taxonomy {
		name := nodeName(tn)
		if strings.EqualFold(name, models.CatchAllName) {
			continue
		}
		n := findSibling(t.Roots, name, true)
		if n == nil {
			n = t.addChild(nil, name)
		}
		t.addTaxonomyChildren(n, tn.Children)
	}
	return t
}

func (t *Tree) addTaxonomyChildren(parent *models.BucketNode, children []models.TaxonomyNode) {
	for _, tn := range children {
		name := nodeName(tn)
		n := findSibling(parent.Children, name, false)
		if n == nil {
			n = t.addChild(parent, name)
		}
		t.addTaxonomyChildren(n, tn.Children)
	}
}

func nodeName(tn models.TaxonomyNode) string {
	if name := strings.TrimSpace(tn.Name); name != "" {
		return name
	}
	return missingName
}

// SimplifyTaxonomy returns the name-only forest of the tree without the
// catch-all, used as the classifier payload.
func SimplifyTaxonomy(t *Tree) []models.TaxonomyNode {
	if len(t.Roots) <= 1 {
		return []models.TaxonomyNode{}
	}
	return simplify(t.Roots[1:])
}

func simplify(nodes []*models.BucketNode) []models.TaxonomyNode {
	out := make([]models.TaxonomyNode, 0, len(nodes))
	for _, n := range nodes {
		tn := models.TaxonomyNode{Name: n.Name}
		if len(n.Children) > 0 {
			tn.Children = simplify(n.Children)
		}
		out = append(out, tn)
	}
	return out
}

// SortedValues orders distinct values by descending count, then by value.
// Blank values are dropped and values equal after trimming are combined.
func SortedValues(values map[string]int) []models.ValueCount {
	merged := make(map[string]int, len(values))
	for v, c := range values {
		if v = strings.TrimSpace(v); v != "" {
			merged[v] += c
		}
	}
	out := make([]models.ValueCount, 0, len(merged))
	for v, c := range merged {
		out = append(out, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// FlatTree builds the deterministic tree used when no classifier is
// configured: one root per most frequent value, up to limit roots, with the
// exact map pointing each of those values at its root.
func FlatTree(values map[string]int, limit int) (*Tree, ExactMap) {
	t := NewTree()
	exact := make(ExactMap)
	for i, vc := range SortedValues(values) {
		if limit > 0 && i >= limit {
			break
		}
		path, _ := t.FindOrCreatePath([]string{vc.Value})
		if len(path) > 0 {
			exact[vc.Value] = path
		}
	}
	return t, exact
}
