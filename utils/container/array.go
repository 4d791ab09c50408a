package container

import (
	"sync"
)

// IIncrementalItem 支持增量更新的元素接口
// 说明：元素自己记录在数组中的下标，删除时据此O(1)定位
type IIncrementalItem interface {
	Index() int         // 获取元素的索引
	SetIndex(index int) // 设置元素的索引
}

// IncrementalItemBase 可嵌入的IIncrementalItem实现
type IncrementalItemBase struct {
	index int
}

func (b *IncrementalItemBase) Index() int {
	return b.index
}

func (b *IncrementalItemBase) SetIndex(index int) {
	b.index = index
}

// IncrementalArray 增量数组
// 功能：更新阶段内并发登记增删，准备阶段统一生效
// 说明：Data()的顺序在两次Prepare之间保持不变，可安全地并行遍历
type IncrementalArray[T IIncrementalItem] struct {
	data        []T
	add         []T
	remove      []T
	addMutex    sync.Mutex
	removeMutex sync.Mutex
}

// NewIncrementalArray 创建增量数组
func NewIncrementalArray[T IIncrementalItem]() *IncrementalArray[T] {
	return &IncrementalArray[T]{
		data:   make([]T, 0),
		add:    make([]T, 0),
		remove: make([]T, 0),
	}
}

// Len 已生效的元素个数
func (a *IncrementalArray[T]) Len() int {
	return len(a.data)
}

// Data 已生效的元素，调用方不得修改返回的切片
func (a *IncrementalArray[T]) Data() []T {
	return a.data
}

// Pending 尚未生效的增加与删除个数
func (a *IncrementalArray[T]) Pending() (add, remove int) {
	a.addMutex.Lock()
	add = len(a.add)
	a.addMutex.Unlock()
	a.removeMutex.Lock()
	remove = len(a.remove)
	a.removeMutex.Unlock()
	return
}

// Add 登记增加元素（Prepare时生效）
func (a *IncrementalArray[T]) Add(value T) {
	a.addMutex.Lock()
	defer a.addMutex.Unlock()
	a.add = append(a.add, value)
}

// Remove 登记删除元素（Prepare时生效）
// 说明：同一元素在一次Prepare前只能登记删除一次
func (a *IncrementalArray[T]) Remove(value T) {
	a.removeMutex.Lock()
	defer a.removeMutex.Unlock()
	a.remove = append(a.remove, value)
}

// Prepare 执行登记的增删
// 算法说明：
// 1. 被删除元素的空位优先由新增元素填补
// 2. 新增多于删除时，剩余新增元素追加到末尾
// 3. 删除多于新增时，按下标从大到小处理剩余空位，用末尾元素填补后截断
func (a *IncrementalArray[T]) Prepare() {
	n := min(len(a.add), len(a.remove))
	for i := 0; i < n; i++ {
		ind := a.remove[i].Index()
		a.data[ind] = a.add[i]
		a.data[ind].SetIndex(ind)
	}
	for _, x := range a.add[n:] {
		x.SetIndex(len(a.data))
		a.data = append(a.data, x)
	}
	rest := a.remove[n:]
	// 从大下标开始删除，保证用于填补的末尾元素不会是另一个待删除元素
	indices := make([]int, len(rest))
	for i, x := range rest {
		indices[i] = x.Index()
	}
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && indices[j-1] < indices[j]; j-- {
			indices[j-1], indices[j] = indices[j], indices[j-1]
		}
	}
	for _, ind := range indices {
		last := len(a.data) - 1
		if ind != last {
			a.data[ind] = a.data[last]
			a.data[ind].SetIndex(ind)
		}
		var zero T
		a.data[last] = zero
		a.data = a.data[:last]
	}

	a.add = []T{}
	a.remove = []T{}
}
