package bucketing

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// Tree is an ordered forest of buckets owned by a single job.
// Roots[0] is always the catch-all.
type Tree struct {
	Roots []*models.BucketNode

	// version is bumped on every structural mutation.
	version uint64
}

// NewTree returns a tree holding only the catch-all root.
func NewTree() *Tree {
	return &Tree{Roots: []*models.BucketNode{newNode(models.CatchAllName, 0)}}
}

// FromRoots wraps an existing forest, e.g. one loaded from a stored result.
func FromRoots(roots []*models.BucketNode) *Tree {
	return &Tree{Roots: roots}
}

func newNode(name string, depth int) *models.BucketNode {
	return &models.BucketNode{
		ID:         uuid.New().String(),
		Name:       name,
		Depth:      depth,
		RowIndices: []int{},
		Children:   []*models.BucketNode{},
	}
}

// CatchAll returns the reserved catch-all root.
func (t *Tree) CatchAll() *models.BucketNode {
	return t.Roots[0]
}

// Version changes whenever a node is added.
func (t *Tree) Version() uint64 {
	return t.version
}

// Walk visits every node in pre-order, left to right, catch-all first.
// path holds the nodes from the root to n inclusive and is only valid for the
// duration of the call. Returning false stops the walk.
func (t *Tree) Walk(fn func(n *models.BucketNode, path []*models.BucketNode) bool) {
	walkNodes(t.Roots, make([]*models.BucketNode, 0, 8), fn)
}

func walkNodes(nodes []*models.BucketNode, path []*models.BucketNode, fn func(*models.BucketNode, []*models.BucketNode) bool) bool {
	for _, n := range nodes {
		p := append(path, n)
		if !fn(n, p) {
			return false
		}
		if !walkNodes(n.Children, p, fn) {
			return false
		}
	}
	return true
}

// FindByID returns the node with the given id, or nil.
func (t *Tree) FindByID(id string) *models.BucketNode {
	path := t.FindPath(id)
	if len(path) == 0 {
		return nil
	}
	return path[len(path)-1]
}

// FindPath returns the nodes from a root down to id inclusive, or nil when
// id is not in the tree.
func (t *Tree) FindPath(id string) []*models.BucketNode {
	var found []*models.BucketNode
	t.Walk(func(n *models.BucketNode, path []*models.BucketNode) bool {
		if n.ID == id {
			found = append([]*models.BucketNode(nil), path...)
			return false
		}
		return true
	})
	return found
}

// Ancestors returns the path to id without the node itself.
func (t *Tree) Ancestors(id string) []*models.BucketNode {
	path := t.FindPath(id)
	if len(path) == 0 {
		return nil
	}
	return path[:len(path)-1]
}

// FindOrCreatePath walks segments from the roots, matching siblings
// case-insensitively and creating any missing node. Blank segments are
// skipped. A path whose first segment names the catch-all resolves to the
// catch-all alone. Returns the resolved path and the number of created nodes.
func (t *Tree) FindOrCreatePath(segments []string) ([]*models.BucketNode, int) {
	clean := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return nil, 0
	}
	if strings.EqualFold(clean[0], models.CatchAllName) {
		return []*models.BucketNode{t.CatchAll()}, 0
	}

	path := make([]*models.BucketNode, 0, len(clean))
	created := 0
	var parent *models.BucketNode
	for _, name := range clean {
		siblings := t.Roots
		if parent != nil {
			siblings = parent.Children
		}
		next := findSibling(siblings, name, parent == nil)
		if next == nil {
			next = t.addChild(parent, name)
			created++
		}
		path = append(path, next)
		parent = next
	}
	return path, created
}

func findSibling(siblings []*models.BucketNode, name string, skipCatchAll bool) *models.BucketNode {
	for i, s := range siblings {
		if skipCatchAll && i == 0 {
			continue
		}
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

func (t *Tree) addChild(parent *models.BucketNode, name string) *models.BucketNode {
	t.version++
	if parent == nil {
		n := newNode(name, 0)
		t.Roots = append(t.Roots, n)
		return n
	}
	n := newNode(name, parent.Depth+1)
	parent.Children = append(parent.Children, n)
	parent.ChildrenCount++
	return n
}

// TotalRootRows sums the row counts of every root.
func (t *Tree) TotalRootRows() int {
	total := 0
	for _, r := range t.Roots {
		total += r.RowCount
	}
	return total
}

// NodeCount returns the number of nodes in the tree, catch-all included.
func (t *Tree) NodeCount() int {
	count := 0
	t.Walk(func(*models.BucketNode, []*models.BucketNode) bool {
		count++
		return true
	})
	return count
}

// Validate checks the structural invariants of the tree.
func (t *Tree) Validate() error {
	if len(t.Roots) == 0 || !t.Roots[0].IsCatchAll() {
		return fmt.Errorf("first root must be the %q bucket", models.CatchAllName)
	}
	if err := validateSiblings(t.Roots, 0); err != nil {
		return err
	}
	var err error
	t.Walk(func(n *models.BucketNode, _ []*models.BucketNode) bool {
		if n.ChildrenCount != len(n.Children) {
			err = fmt.Errorf("bucket %q: childrenCount %d != %d children", n.Name, n.ChildrenCount, len(n.Children))
			return false
		}
		if err = validateSiblings(n.Children, n.Depth+1); err != nil {
			return false
		}
		return true
	})
	return err
}

func validateSiblings(nodes []*models.BucketNode, depth int) error {
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.Depth != depth {
			return fmt.Errorf("bucket %q: depth %d, expected %d", n.Name, n.Depth, depth)
		}
		key := strings.ToLower(n.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate sibling bucket %q", n.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
