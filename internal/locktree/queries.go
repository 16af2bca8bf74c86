package locktree

import "github.com/occam-sim/occam/internal/ids"

// FindByID returns the node with the given ID, if any is currently
// live in the tree.
func (t *Tree) FindByID(id ids.NodeID) *TreeNode {
	return findByID(t.Root, id)
}

func findByID(root *TreeNode, id ids.NodeID) *TreeNode {
	if root.ID == id {
		return root
	}
	for _, c := range root.Children {
		if n := findByID(c, id); n != nil {
			return n
		}
	}
	return nil
}

// AllChildren returns every descendant of node, not just its direct
// children.
func (t *Tree) AllChildren(node *TreeNode) []*TreeNode {
	var out []*TreeNode
	out = append(out, node.Children...)
	for _, c := range node.Children {
		out = append(out, t.AllChildren(c)...)
	}
	return out
}

func (t *Tree) findPath(root, node *TreeNode) []*TreeNode {
	if root == node {
		return []*TreeNode{root}
	}
	if len(root.Children) == 0 {
		return nil
	}
	for _, c := range root.Children {
		if res := t.findPath(c, node); res != nil {
			return append([]*TreeNode{root}, res...)
		}
	}
	return nil
}

// Path returns node's ancestors from (but not including) the root down
// to and including node itself.
func (t *Tree) Path(node *TreeNode) []*TreeNode {
	full := t.findPath(t.Root, node)
	if len(full) == 0 {
		return nil
	}
	return full[1:]
}

func removeNode(list []*TreeNode, node *TreeNode) []*TreeNode {
	out := make([]*TreeNode, 0, len(list))
	for _, n := range list {
		if n != node {
			out = append(out, n)
		}
	}
	return out
}

// Containment returns every node whose lock would conflict with a lock
// on node: its ancestors plus every descendant. When proper is true,
// node itself is excluded from the ancestor half.
func (t *Tree) Containment(node *TreeNode, proper bool) []*TreeNode {
	path := t.Path(node)
	if proper {
		path = removeNode(path, node)
	}
	return append(path, t.AllChildren(node)...)
}

// HasLockInContainment reports whether any node in node's containment
// set holds a lock or intent in category c.
func (t *Tree) HasLockInContainment(node *TreeNode, c ids.Category, proper bool) bool {
	for _, n := range t.Containment(node, proper) {
		if len(n.Locks[c]) > 0 {
			return true
		}
	}
	return false
}

// WorkflowsInContainment collects the distinct workflows holding or
// intending category c anywhere in node's containment set.
func (t *Tree) WorkflowsInContainment(node *TreeNode, c ids.Category, proper bool) map[ids.WorkflowID]struct{} {
	out := make(map[ids.WorkflowID]struct{})
	for _, n := range t.Containment(node, proper) {
		for _, wf := range n.Locks[c] {
			out[wf] = struct{}{}
		}
	}
	return out
}

// HasLockInPathToRoot reports whether any ancestor of node (optionally
// excluding node itself) holds a lock in category c.
func (t *Tree) HasLockInPathToRoot(node *TreeNode, c ids.Category, proper bool) bool {
	return t.NumLockInPath(node, c, proper) > 0
}

// NumLockInPath counts nodes on the path from node to the root holding
// a lock in category c.
func (t *Tree) NumLockInPath(node *TreeNode, c ids.Category, proper bool) int {
	path := t.Path(node)
	if proper {
		path = removeNode(path, node)
	}
	n := 0
	for _, p := range path {
		if len(p.Locks[c]) > 0 {
			n++
		}
	}
	return n
}

// HasLockInChildren reports whether any descendant of node holds a
// lock in category c.
func (t *Tree) HasLockInChildren(node *TreeNode, c ids.Category) bool {
	for _, n := range t.AllChildren(node) {
		if len(n.Locks[c]) > 0 {
			return true
		}
	}
	return false
}

// OnlyWorkflowInChildren reports whether every held lock (shared or
// exclusive; pending intents don't count) anywhere in node's
// descendants belongs to wfID.
func (t *Tree) OnlyWorkflowInChildren(node *TreeNode, wfID ids.WorkflowID) bool {
	for _, n := range t.AllChildren(node) {
		for _, c := range []ids.Category{ids.Shared, ids.Exclusive} {
			for _, id := range n.Locks[c] {
				if id != wfID {
					return false
				}
			}
		}
	}
	return true
}

// OnlyWorkflowInPath reports whether every held lock on node's
// ancestors belongs to wfID and, for each ancestor where wfID
// itself holds, whether wfID is also the only holder throughout that
// ancestor's off-path subtrees. The second half matters for upgrades:
// an ancestor's shared grant can only be swapped for exclusive if no
// sibling subtree under it is held by anyone else.
func (t *Tree) OnlyWorkflowInPath(node *TreeNode, wfID ids.WorkflowID) bool {
	path := removeNode(t.Path(node), node)
	for _, n := range path {
		for _, c := range []ids.Category{ids.Shared, ids.Exclusive} {
			for _, id := range n.Locks[c] {
				if id != wfID {
					return false
				}
			}
		}
	}
	onPath := make(map[*TreeNode]bool, len(path))
	for _, n := range path {
		onPath[n] = true
	}
	for _, anc := range path {
		if !containsWorkflow(anc.Locks[ids.Shared], wfID) && !containsWorkflow(anc.Locks[ids.Exclusive], wfID) {
			continue
		}
		for _, child := range anc.Children {
			if onPath[child] {
				continue
			}
			for _, c := range []ids.Category{ids.Shared, ids.Exclusive} {
				for _, id := range child.Locks[c] {
					if id != wfID {
						return false
					}
				}
			}
			if !t.OnlyWorkflowInChildren(child, wfID) {
				return false
			}
		}
	}
	return true
}

func containsWorkflow(list []ids.WorkflowID, wfID ids.WorkflowID) bool {
	for _, id := range list {
		if id == wfID {
			return true
		}
	}
	return false
}
