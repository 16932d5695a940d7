package bucketing

import (
	"strings"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// Source records which rule of the cascade resolved a value.
type Source string

const (
	SourceExact    Source = "exact"
	SourceFuzzy    Source = "fuzzy"
	SourceCatchAll Source = "catch_all"
)

// ExactMap maps a trimmed distinct value to its root-to-target path.
type ExactMap map[string][]*models.BucketNode

// Resolution is the outcome of classifying one value.
type Resolution struct {
	Path   []*models.BucketNode
	Source Source
}

// Target returns the last node of the path.
func (r Resolution) Target() *models.BucketNode {
	if len(r.Path) == 0 {
		return nil
	}
	return r.Path[len(r.Path)-1]
}

// Classifier resolves distinct values against a tree and an exact map.
// Not safe for concurrent use.
type Classifier struct {
	tree  *Tree
	exact ExactMap

	frozen      bool
	memo        map[string]Resolution
	memoVersion uint64
}

// NewClassifier creates a classifier. exact may be nil.
func NewClassifier(tree *Tree, exact ExactMap) *Classifier {
	if exact == nil {
		exact = make(ExactMap)
	}
	return &Classifier{tree: tree, exact: exact}
}

// Exact returns the exact map backing the classifier.
func (c *Classifier) Exact() ExactMap {
	return c.exact
}

// Freeze enables memoisation of fuzzy results. Call it once the tree stops
// growing; any later mutation drops the memo.
func (c *Classifier) Freeze() {
	c.frozen = true
	c.memo = make(map[string]Resolution)
	c.memoVersion = c.tree.Version()
}

// Resolve applies exact match, then fuzzy substring match, then catch-all.
func (c *Classifier) Resolve(value string) Resolution {
	v := strings.TrimSpace(value)
	if v == "" {
		return c.catchAll()
	}
	if path, ok := c.exact[v]; ok && len(path) > 0 {
		return Resolution{Path: path, Source: SourceExact}
	}

	if c.frozen {
		if c.memoVersion != c.tree.Version() {
			c.memo = make(map[string]Resolution)
			c.memoVersion = c.tree.Version()
		}
		if r, ok := c.memo[v]; ok {
			return r
		}
	}

	r := c.fuzzy(v)
	if c.frozen {
		c.memo[v] = r
	}
	return r
}

func (c *Classifier) fuzzy(value string) Resolution {
	lv := strings.ToLower(value)
	var match []*models.BucketNode
	walkNodes(c.tree.Roots[1:], make([]*models.BucketNode, 0, 8), func(n *models.BucketNode, path []*models.BucketNode) bool {
		name := strings.ToLower(strings.TrimSpace(n.Name))
		if name == "" {
			return true
		}
		if strings.Contains(lv, name) || strings.Contains(name, lv) {
			match = append([]*models.BucketNode(nil), path...)
			return false
		}
		return true
	})
	if match == nil {
		return c.catchAll()
	}
	return Resolution{Path: match, Source: SourceFuzzy}
}

func (c *Classifier) catchAll() Resolution {
	return Resolution{Path: []*models.BucketNode{c.tree.CatchAll()}, Source: SourceCatchAll}
}
