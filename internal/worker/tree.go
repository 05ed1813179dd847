package worker

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/schleuse-ai/schleuse/internal/events"
)

// Status of one node in the delegation tree.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Node is one worker in the delegation tree.
type Node struct {
	ID       string
	Name     string
	Task     string
	Status   Status
	ParentID string
	Children []string
	Depth    int
}

// Tree is an immutable-update delegation tree keyed by worker id. Updates
// return a new Tree and never modify the receiver; queries are read-only
// derived views.
type Tree struct {
	nodes    map[string]Node
	rootID   string
	activeID string
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[string]Node)}
}

// NewNodeID produces a fresh worker id.
func NewNodeID() string {
	return uuid.NewString()
}

func (t *Tree) clone() *Tree {
	nodes := make(map[string]Node, len(t.nodes))
	for id, node := range t.nodes {
		copied := node
		copied.Children = append([]string(nil), node.Children...)
		nodes[id] = copied
	}
	return &Tree{nodes: nodes, rootID: t.rootID, activeID: t.activeID}
}

// Insert adds a node. A parentless node becomes the root; otherwise the node
// is appended to its parent's children and gets the parent's depth plus one.
// The inserted node becomes active.
func (t *Tree) Insert(node Node) *Tree {
	next := t.clone()

	if node.ParentID == "" {
		node.Depth = 0
		next.rootID = node.ID
	} else if parent, ok := next.nodes[node.ParentID]; ok {
		parent.Children = append(parent.Children, node.ID)
		next.nodes[node.ParentID] = parent
		node.Depth = parent.Depth + 1
	}

	next.nodes[node.ID] = node
	next.activeID = node.ID
	return next
}

// SetStatus updates one node's status.
func (t *Tree) SetStatus(id string, status Status) *Tree {
	node, ok := t.nodes[id]
	if !ok {
		return t
	}
	next := t.clone()
	node.Status = status
	next.nodes[id] = node
	return next
}

// Remove deletes a node and all its descendants. If the active node was
// removed, the removed node's parent becomes active.
func (t *Tree) Remove(id string) *Tree {
	node, ok := t.nodes[id]
	if !ok {
		return t
	}

	next := t.clone()
	removeSubtree(next.nodes, id)

	if parent, ok := next.nodes[node.ParentID]; ok {
		kept := parent.Children[:0]
		for _, child := range parent.Children {
			if child != id {
				kept = append(kept, child)
			}
		}
		parent.Children = kept
		next.nodes[node.ParentID] = parent
	}

	if next.rootID == id {
		next.rootID = ""
	}
	if _, stillThere := next.nodes[next.activeID]; !stillThere {
		next.activeID = node.ParentID
	}

	return next
}

func removeSubtree(nodes map[string]Node, id string) {
	node, ok := nodes[id]
	if !ok {
		return
	}
	for _, child := range node.Children {
		removeSubtree(nodes, child)
	}
	delete(nodes, id)
}

// Get returns a node by id.
func (t *Tree) Get(id string) (Node, bool) {
	node, ok := t.nodes[id]
	return node, ok
}

// Root returns the root node.
func (t *Tree) Root() (Node, bool) {
	return t.Get(t.rootID)
}

// Active returns the currently active node.
func (t *Tree) Active() (Node, bool) {
	return t.Get(t.activeID)
}

// PathToRoot returns the node names from the given node up to the root,
// root last.
func (t *Tree) PathToRoot(id string) []string {
	var path []string
	for {
		node, ok := t.nodes[id]
		if !ok {
			break
		}
		path = append(path, node.Name)
		if node.ParentID == "" {
			break
		}
		id = node.ParentID
	}
	return path
}

// Children returns the child nodes of the given node in insertion order.
func (t *Tree) Children(id string) []Node {
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}
	children := make([]Node, 0, len(node.Children))
	for _, childID := range node.Children {
		if child, ok := t.nodes[childID]; ok {
			children = append(children, child)
		}
	}
	return children
}

// DepthFirst returns all nodes in depth-first order from the root.
func (t *Tree) DepthFirst() []Node {
	var result []Node
	var walk func(id string)
	walk = func(id string) {
		node, ok := t.nodes[id]
		if !ok {
			return
		}
		result = append(result, node)
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(t.rootID)
	return result
}

// AtDepth returns the nodes at the given depth, ordered by name.
func (t *Tree) AtDepth(depth int) []Node {
	var result []Node
	for _, node := range t.nodes {
		if node.Depth == depth {
			result = append(result, node)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Snapshot renders the tree for display.
func (t *Tree) Snapshot() events.TreeNode {
	return t.snapshotNode(t.rootID)
}

func (t *Tree) snapshotNode(id string) events.TreeNode {
	node, ok := t.nodes[id]
	if !ok {
		return events.TreeNode{}
	}
	snapshot := events.TreeNode{
		ID:     node.ID,
		Name:   node.Name,
		Task:   node.Task,
		Status: string(node.Status),
		Depth:  node.Depth,
	}
	for _, child := range node.Children {
		snapshot.Children = append(snapshot.Children, t.snapshotNode(child))
	}
	return snapshot
}

// TreeState holds the current tree for one root runtime. Delegated runtimes
// share the holder so observers always see a consistent snapshot; each
// update swaps in a new immutable Tree value.
type TreeState struct {
	mu   sync.Mutex
	tree *Tree
}

// NewTreeState starts with an empty tree.
func NewTreeState() *TreeState {
	return &TreeState{tree: NewTree()}
}

// Update applies fn to the current tree and stores its result.
func (s *TreeState) Update(fn func(*Tree) *Tree) *Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = fn(s.tree)
	return s.tree
}

// Current returns the current tree value.
func (s *TreeState) Current() *Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}
