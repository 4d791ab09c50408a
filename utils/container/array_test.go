package container_test

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
)

type elem struct {
	container.IncrementalItemBase
	id int
}

func ids(a *container.IncrementalArray[*elem]) []int {
	return lo.Map(a.Data(), func(e *elem, _ int) int { return e.id })
}

func checkIndex(t *testing.T, a *container.IncrementalArray[*elem]) {
	for i, e := range a.Data() {
		assert.Equal(t, i, e.Index())
	}
}

func TestIncrementalArray(t *testing.T) {
	a := container.NewIncrementalArray[*elem]()
	es := lo.Times(6, func(i int) *elem { return &elem{id: i} })
	for _, e := range es {
		a.Add(e)
	}
	add, remove := a.Pending()
	assert.Equal(t, 6, add)
	assert.Equal(t, 0, remove)
	assert.Equal(t, 0, a.Len())
	a.Prepare()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, ids(a))
	checkIndex(t, a)

	// 删多于增，包含末尾元素
	a.Remove(es[1])
	a.Remove(es[5])
	a.Remove(es[4])
	n := &elem{id: 6}
	a.Add(n)
	a.Prepare()
	assert.ElementsMatch(t, []int{0, 6, 2, 3}, ids(a))
	checkIndex(t, a)

	// 增多于删
	a.Remove(es[0])
	a.Add(&elem{id: 7})
	a.Add(&elem{id: 8})
	a.Prepare()
	assert.ElementsMatch(t, []int{6, 2, 3, 7, 8}, ids(a))
	checkIndex(t, a)
}

func TestPriorityQueue(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	q.Push("c", 30)
	q.Push("a", 10)
	q.Push("d", 40)
	q.Push("b", 20)
	q.Heapify()

	v, p := q.First()
	assert.Equal(t, "a", v)
	assert.Equal(t, 10.0, p)

	assert.Equal(t, []string{"a", "b"}, q.PopUntil(25))
	assert.Equal(t, 2, q.Len())
	v, p = q.HeapPop()
	assert.Equal(t, "c", v)
	assert.Equal(t, 30.0, p)
	assert.Empty(t, q.PopUntil(35))
}
