// Package locktree implements the containment tree that backs the
// occam_fifo/occam_depset scheduler variants: a tree of nodes, each
// denoting a set of devices by regex, where inserting a new request
// splits existing nodes along the overlap between the request and
// whatever is already there so that every node in the tree denotes a
// disjoint slice of the device universe. Insertion runs in four
// stages: classify the current layer, partition the overlapping
// siblings, rebuild the split-off edges, and rebuild the children of
// everything that split.
package locktree

import (
	"fmt"
	"sort"

	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/ilock"
	"github.com/occam-sim/occam/internal/regexset"
)

// TreeNode denotes one slice of the device universe and the workflows
// holding or intending a lock against it. Locks[c] mirrors the
// corresponding category list on every workflow recorded there; the
// engine package keeps both sides updated together.
type TreeNode struct {
	ID       ids.NodeID
	Set      *regexset.Set
	Lo, Hi   string
	Children []*TreeNode
	Locks    [ids.NumCategories][]ids.WorkflowID
}

func (n *TreeNode) setSet(set *regexset.Set) {
	n.Set = set
	n.Lo, n.Hi = set.Bound()
}

func (n *TreeNode) insertChildAt(i int, c *TreeNode) {
	n.Children = append(n.Children, nil)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = c
}

func (n *TreeNode) appendChild(c *TreeNode) { n.Children = append(n.Children, c) }

func (n *TreeNode) delChild(c *TreeNode) {
	for i, ch := range n.Children {
		if ch == c {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

func (n *TreeNode) hasChild(c *TreeNode) bool {
	for _, ch := range n.Children {
		if ch == c {
			return true
		}
	}
	return false
}

// Counts summarizes how many workflows hold node in each category, the
// shared currency the ilock compatibility predicates operate on.
func (n *TreeNode) Counts() ilock.Counts {
	return ilock.Counts{
		Shared:          len(n.Locks[ids.Shared]),
		Exclusive:       len(n.Locks[ids.Exclusive]),
		IntentShared:    len(n.Locks[ids.IntentShared]),
		IntentExclusive: len(n.Locks[ids.IntentExclusive]),
	}
}

// EdgeOp is one grant recorded on a node during Insert. locktree only
// owns the node side of a lock edge; the engine applies each EdgeOp to
// the workflow's own Category-indexed lists so both sides stay
// mirrored.
type EdgeOp struct {
	Node     *TreeNode
	Workflow ids.WorkflowID
	Category ids.Category
}

// Tree is the containment tree rooted at a node covering every device
// in the universe.
type Tree struct {
	Root   *TreeNode
	nextID ids.NodeID
}

// NewTree builds a tree rooted at a node covering rootSet (normally
// every device in the universe).
func NewTree(rootSet *regexset.Set) *Tree {
	t := &Tree{}
	t.Root = t.newNode(rootSet)
	return t
}

func (t *Tree) newNode(set *regexset.Set) *TreeNode {
	t.nextID++
	n := &TreeNode{ID: t.nextID}
	n.setSet(set)
	return n
}

func (t *Tree) grant(node *TreeNode, wfID ids.WorkflowID, category ids.Category, ops *[]EdgeOp) {
	node.Locks[category] = append(node.Locks[category], wfID)
	*ops = append(*ops, EdgeOp{Node: node, Workflow: wfID, Category: category})
}

func (t *Tree) sortLayer(root *TreeNode) {
	sort.SliceStable(root.Children, func(i, j int) bool {
		a, b := root.Children[i], root.Children[j]
		if a.Lo != b.Lo {
			return a.Lo < b.Lo
		}
		return a.Hi < b.Hi
	})
}

// Insert grants category to wfID against reqSet, splitting nodes as
// necessary so every node in the tree keeps denoting a disjoint slice
// of devices. It returns the node the requester's edge was ultimately
// recorded on (for bookkeeping/diagnostics; the workflow's own Locks
// list is driven entirely off the returned ops) and every edge the
// split touched, which the caller must mirror onto the corresponding
// workflows.
func (t *Tree) Insert(reqSet *regexset.Set, wfID ids.WorkflowID, category ids.Category) (*TreeNode, []EdgeOp) {
	obj := t.newNode(reqSet)
	var ops []EdgeOp
	t.insertNode(t.Root, obj, wfID, category, &ops)
	return obj, ops
}

func (t *Tree) insertNode(root, obj *TreeNode, wfID ids.WorkflowID, category ids.Category, ops *[]EdgeOp) {
	if len(root.Children) == 0 {
		root.insertChildAt(0, obj)
		t.grant(obj, wfID, category, ops)
		return
	}
	if obj.Hi < root.Children[0].Lo {
		root.insertChildAt(0, obj)
		t.grant(obj, wfID, category, ops)
		return
	}

	numChild := len(root.Children)
	untouched := true
	var contains, overlaps []*TreeNode

outer:
	for idx := 0; idx < numChild; idx++ {
		child := root.Children[idx]
		if child.Lo > obj.Hi {
			break outer
		}
		switch {
		case obj.Set.Contains(child.Set):
			// obj == child counts as obj containing child.
			untouched = false
			contains = append(contains, child)
		case child.Set.ProperlyContains(obj.Set):
			untouched = false
			if len(child.Children) == 0 {
				child.insertChildAt(0, obj)
				t.grant(obj, wfID, category, ops)
			} else {
				t.insertNode(child, obj, wfID, category, ops)
			}
			break outer
		case obj.Set.Overlaps(child.Set):
			untouched = false
			overlaps = append(overlaps, child)
		}
	}

	if untouched {
		root.appendChild(obj)
		t.grant(obj, wfID, category, ops)
		t.sortLayer(root)
		return
	}

	if len(overlaps) > 0 || len(contains) > 0 {
		var commons []*TreeNode
		remaining := true

		for _, ch := range overlaps {
			if obj.Set.Equal(ch.Set) {
				// The remaining obj shrank to exactly ch; it rides along
				// underneath rather than splitting further. Later overlaps
				// cannot intersect what is left, so the scan stops here.
				remaining = false
				ch.appendChild(obj)
				t.grant(obj, wfID, category, ops)
				overlaps = overlaps[:len(commons)]
				break
			}
			if ch.Set.Contains(obj.Set) {
				remaining = false
				if len(ch.Children) == 0 {
					ch.insertChildAt(0, obj)
					t.grant(obj, wfID, category, ops)
				} else {
					t.insertNode(ch, obj, wfID, category, ops)
				}
				overlaps = overlaps[:len(commons)]
				break
			}
			common, objDiff, chDiff := obj.Set.Intersect(ch.Set)
			commonNode := t.newNode(common)
			ch.setSet(chDiff)
			obj.setSet(objDiff)
			commons = append(commons, commonNode)
		}

		if len(overlaps) != len(commons) {
			panic(fmt.Sprintf("locktree: overlap/common mismatch (%d overlaps, %d commons)", len(overlaps), len(commons)))
		}

		// Stage 3: rebuild edges and children for every overlapping pair.
		for i := range overlaps {
			t.rebuildEdge(overlaps[i], commons[i], ops)
			t.rebuildChild(commons[i], overlaps[i], ops)
		}

		// Stage 4: update this layer's children.
		for _, c := range contains {
			obj.appendChild(c)
			root.delChild(c)
		}
		for _, c := range commons {
			root.appendChild(c)
			t.grant(c, wfID, category, ops)
		}
		if remaining {
			root.appendChild(obj)
			t.grant(obj, wfID, category, ops)
		}
	}

	t.sortLayer(root)
	t.sortLayer(obj)
}

// rebuildEdge copies every lock/intent edge held on child onto the
// newly split-off common node. child keeps its own edges too: the
// workflows that held the larger, pre-split region now hold both the
// shrunk child and the carved-out common node, so ownership of every
// device they covered is preserved across the split.
func (t *Tree) rebuildEdge(child, common *TreeNode, ops *[]EdgeOp) {
	for c := ids.Category(0); c < ids.NumCategories; c++ {
		for _, wf := range child.Locks[c] {
			common.Locks[c] = append(common.Locks[c], wf)
			*ops = append(*ops, EdgeOp{Node: common, Workflow: wf, Category: c})
		}
	}
}

// rebuildChild redistributes child's own children between child
// (now shrunk to its post-split region) and intersec (the newly
// carved-out common region), splitting any grandchild that straddles
// both.
func (t *Tree) rebuildChild(intersec, child *TreeNode, ops *[]EdgeOp) {
	i := 0
	childNum := len(child.Children)
	for i < childNum {
		ch := child.Children[i]
		i++
		switch {
		case child.Set.Contains(ch.Set):
			// Still fully inside child; nothing to do.
		case intersec.Set.Contains(ch.Set):
			intersec.appendChild(ch)
			child.delChild(ch)
			childNum--
			i--
		default:
			insecIntersec, _, _ := ch.Set.Intersect(intersec.Set)
			insecChild, _, _ := ch.Set.Intersect(child.Set)
			insecIntersecNode := t.newNode(insecIntersec)
			t.rebuildEdge(ch, insecIntersecNode, ops)
			ch.setSet(insecChild)
			intersec.appendChild(insecIntersecNode)
			t.rebuildChild(insecIntersecNode, ch, ops)
		}
	}
	t.sortLayer(intersec)
	t.sortLayer(child)
}

// Release removes wfID from node's category list and garbage-collects
// node if it now holds no lock or intent in any category.
func (t *Tree) Release(node *TreeNode, wfID ids.WorkflowID, category ids.Category) {
	list := node.Locks[category]
	for i, id := range list {
		if id == wfID {
			node.Locks[category] = append(list[:i], list[i+1:]...)
			break
		}
	}
	t.DeleteNodeIfPossible(node)
}

// DeleteNodeIfPossible removes node from the tree, reparenting its
// children onto its own parent, if and only if node holds no lock or
// intent in any of the four categories. It reports whether the node
// was removed.
func (t *Tree) DeleteNodeIfPossible(node *TreeNode) bool {
	if !node.Counts().Empty() {
		return false
	}
	if node == t.Root {
		return false
	}
	t.deleteNode(node)
	return true
}

func (t *Tree) deleteNode(node *TreeNode) {
	parent := t.findParent(t.Root, node)
	if parent == nil {
		panic("locktree: cannot find parent of node being deleted")
	}
	for _, c := range node.Children {
		parent.appendChild(c)
	}
	parent.delChild(node)
	t.sortLayer(parent)
}

func (t *Tree) findParent(root, node *TreeNode) *TreeNode {
	if root.hasChild(node) {
		return root
	}
	for _, c := range root.Children {
		if p := t.findParent(c, node); p != nil {
			return p
		}
	}
	return nil
}
