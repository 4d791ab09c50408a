package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
)

type node = container.ListNode[string, struct{}]

func TestListInit(t *testing.T) {
	l := &container.List[string, struct{}]{}
	assert.Nil(t, l.First())
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Keys())
}

func TestListOperation(t *testing.T) {
	l := &container.List[string, struct{}]{}

	// ^, 1, ^
	n1 := &node{S: 1, Value: "n1"}
	l.PushBack(n1)
	// ^, 2, 1, ^
	n2 := &node{S: 2, Value: "n2"}
	l.PushFront(n2)
	// ^, 3, 2, 1, ^
	n3 := &node{S: 3, Value: "n3"}
	n2.InsertBefore(n3)
	// ^, 3, 2, 1, 4, ^
	n4 := &node{S: 4, Value: "n4"}
	n1.InsertAfter(n4)
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []string{"n3", "n2", "n1", "n4"}, l.Values())
	assert.Equal(t, n3, l.First())
	assert.Equal(t, n1, n1.Next().Prev())
	assert.Nil(t, n4.Next())

	// 摘下逆序节点后归并回去恢复有序：head, 0, 3, 4, tail
	n0 := &node{S: 0, Value: "n0"}
	l.PushFront(n0)
	l.Remove(n2)
	l.Remove(n1)
	assert.Equal(t, 3, l.Len())

	l.Merge([]*node{n2, n1})
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, l.Keys())

	l.Remove(n4)
	assert.Nil(t, n1.Next().Next().Next())
	assert.Equal(t, 4, l.Len())
	// 移除的节点可以重新插入
	l.InsertSorted(n4)
	assert.Equal(t, []string{"n0", "n1", "n2", "n3", "n4"}, l.Values())
}

func TestListInsertSortedIsStable(t *testing.T) {
	l := &container.List[string, struct{}]{}
	l.InsertSorted(&node{S: 10, Value: "a"})
	l.InsertSorted(&node{S: 5, Value: "b"})
	l.InsertSorted(&node{S: 10, Value: "c"})
	l.InsertSorted(&node{S: 1, Value: "d"})
	l.InsertSorted(&node{S: 10, Value: "e"})
	assert.Equal(t, []string{"d", "b", "a", "c", "e"}, l.Values())

	l.Merge([]*node{{S: 10, Value: "f"}, {S: 5, Value: "g"}})
	assert.Equal(t, []string{"d", "b", "g", "a", "c", "e", "f"}, l.Values())
}

func TestListClear(t *testing.T) {
	l := &container.List[string, struct{}]{}
	l.PushBack(&node{S: 1, Value: "a"})
	l.PushBack(&node{S: 2, Value: "b"})
	nodes := l.Clear()
	assert.Len(t, nodes, 2)
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.First())
	// 被清空的节点可以重新插入
	l.Merge(nodes)
	assert.Equal(t, []string{"a", "b"}, l.Values())
}
