package address

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sact-io/sact/node"
)

func testNode() node.UniqueNode {
	return node.UniqueNode{Node: node.New("sys", "127.0.0.1", 7337), ID: node.NodeID(1)}
}

func TestValidateRejectsEmptyPath(t *testing.T) {
	a := NewLocal(nil, 0)
	assert.ErrorIs(t, a.Validate(), ErrEmptyPath)
}

func TestValidateRejectsEmptySegment(t *testing.T) {
	a := NewLocal([]string{"user", ""}, 0)
	assert.ErrorIs(t, a.Validate(), ErrEmptySegment)
}

func TestEqualComparesNodePathAndIncarnation(t *testing.T) {
	n := testNode()
	a1 := New(n, []string{"user", "actor1"}, 3)
	a2 := New(n, []string{"user", "actor1"}, 3)
	a3 := New(n, []string{"user", "actor1"}, 4)
	assert.True(t, a1.Equal(a2))
	assert.False(t, a1.Equal(a3))
}

func TestEqualDistinguishesLocalFromBound(t *testing.T) {
	local := NewLocal([]string{"user", "actor1"}, 0)
	bound := New(testNode(), []string{"user", "actor1"}, 0)
	assert.False(t, local.Equal(bound))
}

func TestNewCopiesPathSlice(t *testing.T) {
	path := []string{"user", "actor1"}
	a := NewLocal(path, 0)
	path[0] = "mutated"
	assert.Equal(t, "user", a.Path[0])
}
