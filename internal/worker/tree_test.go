package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeInsertAndQueries(t *testing.T) {
	tree := NewTree().
		Insert(Node{ID: "r", Name: "root", Status: StatusRunning}).
		Insert(Node{ID: "a", Name: "alpha", ParentID: "r", Status: StatusPending}).
		Insert(Node{ID: "b", Name: "beta", ParentID: "r", Status: StatusPending}).
		Insert(Node{ID: "a1", Name: "gamma", ParentID: "a", Status: StatusPending})

	root, ok := tree.Root()
	require.True(t, ok)
	assert.Equal(t, "root", root.Name)

	active, ok := tree.Active()
	require.True(t, ok)
	assert.Equal(t, "a1", active.ID)

	assert.Equal(t, []string{"gamma", "alpha", "root"}, tree.PathToRoot("a1"))

	children := tree.Children("r")
	require.Len(t, children, 2)
	assert.Equal(t, "alpha", children[0].Name)
	assert.Equal(t, "beta", children[1].Name)

	dfs := tree.DepthFirst()
	names := make([]string, len(dfs))
	for i, node := range dfs {
		names[i] = node.Name
	}
	assert.Equal(t, []string{"root", "alpha", "gamma", "beta"}, names)

	depth1 := tree.AtDepth(1)
	require.Len(t, depth1, 2)
	assert.Equal(t, "alpha", depth1[0].Name)

	node, ok := tree.Get("a1")
	require.True(t, ok)
	assert.Equal(t, 2, node.Depth)
}

func TestTreeImmutableUpdates(t *testing.T) {
	base := NewTree().Insert(Node{ID: "r", Name: "root"})
	updated := base.SetStatus("r", StatusComplete)

	original, _ := base.Get("r")
	changed, _ := updated.Get("r")
	assert.NotEqual(t, StatusComplete, original.Status)
	assert.Equal(t, StatusComplete, changed.Status)

	grown := base.Insert(Node{ID: "c", Name: "child", ParentID: "r"})
	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, grown.Len())
}

func TestTreeRemoveCascades(t *testing.T) {
	tree := NewTree().
		Insert(Node{ID: "r", Name: "root"}).
		Insert(Node{ID: "a", Name: "alpha", ParentID: "r"}).
		Insert(Node{ID: "a1", Name: "beta", ParentID: "a"}).
		Insert(Node{ID: "a2", Name: "gamma", ParentID: "a1"})

	// Active is the last inserted node, deep inside the removed subtree.
	pruned := tree.Remove("a")

	assert.Equal(t, 1, pruned.Len())
	_, ok := pruned.Get("a1")
	assert.False(t, ok)
	_, ok = pruned.Get("a2")
	assert.False(t, ok)

	// Active pointer falls back to the removed node's parent.
	active, ok := pruned.Active()
	require.True(t, ok)
	assert.Equal(t, "r", active.ID)

	root, _ := pruned.Get("r")
	assert.Empty(t, root.Children)

	// The original tree is untouched.
	assert.Equal(t, 4, tree.Len())
}

func TestTreeSnapshot(t *testing.T) {
	tree := NewTree().
		Insert(Node{ID: "r", Name: "root", Task: "main", Status: StatusRunning}).
		Insert(Node{ID: "c", Name: "helper", Task: "sub", ParentID: "r", Status: StatusPending})

	snapshot := tree.Snapshot()
	assert.Equal(t, "root", snapshot.Name)
	require.Len(t, snapshot.Children, 1)
	assert.Equal(t, "helper", snapshot.Children[0].Name)
	assert.Equal(t, 1, snapshot.Children[0].Depth)
}
