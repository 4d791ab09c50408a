package container

import (
	"fmt"
	"log"
)

// ListNode 有序双向链表中的节点
// 功能：保存键值S、主要值Value与额外信息Extra
// 说明：S为排序键，如区段上的位置或动作的触发距离
type ListNode[T any, E any] struct {
	parent     *List[T, E]     // 所属链表
	prev, next *ListNode[T, E] // 前驱和后继节点
	S          float64         // 键值
	Value      T               // 主要值
	Extra      E               // 额外信息
}

func (n *ListNode[T, E]) String() string {
	return fmt.Sprintf("Node{Key:%v, Value:%+v, Extra:%+v}", n.S, n.Value, n.Extra)
}

// Prev 前驱节点，第一个节点返回nil
func (n *ListNode[T, E]) Prev() *ListNode[T, E] {
	return n.prev
}

// Next 后继节点，最后一个节点返回nil
func (n *ListNode[T, E]) Next() *ListNode[T, E] {
	return n.next
}

// InsertBefore 在节点前插入新节点
// 参数：add-要插入的新节点，不能已在某个链表中
func (n *ListNode[T, E]) InsertBefore(add *ListNode[T, E]) {
	if add.parent != nil {
		log.Panic("insert node who already in list")
	}
	add.parent = n.parent
	add.next = n
	add.prev = n.prev
	n.prev = add
	if add.prev != nil {
		add.prev.next = add
	} else {
		add.parent.head = add
	}
	n.parent.length++
}

// InsertAfter 在节点后插入新节点
// 参数：add-要插入的新节点，不能已在某个链表中
func (n *ListNode[T, E]) InsertAfter(add *ListNode[T, E]) {
	if add.parent != nil {
		log.Panic("insert node who already in list")
	}
	add.parent = n.parent
	add.prev = n
	add.next = n.next
	n.next = add
	if add.next != nil {
		add.next.prev = add
	} else {
		add.parent.tail = add
	}
	n.parent.length++
}

// List 按键值S升序组织的双向链表
// 功能：区段占用表、动作队列等按位置/距离排序的结构的共同底层
// 说明：零值可直接使用；链表本身不加锁，并发写入需由使用方在准备阶段统一合并
type List[T any, E any] struct {
	ID         string          // 链表标识符
	head, tail *ListNode[T, E] // 头尾节点指针
	length     int             // 链表长度
}

func (l *List[T, E]) String() string {
	return fmt.Sprintf("List{ID:%v, Len:%d}", l.ID, l.length)
}

// Keys 按链表顺序返回所有节点的键值
func (l *List[T, E]) Keys() []float64 {
	keys := make([]float64, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		keys = append(keys, node.S)
	}
	return keys
}

// Values 按链表顺序返回所有节点的值
func (l *List[T, E]) Values() []T {
	values := make([]T, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		values = append(values, node.Value)
	}
	return values
}

// Len 链表长度
func (l *List[T, E]) Len() int {
	return l.length
}

// PushFront 向链表头部插入节点
func (l *List[T, E]) PushFront(add *ListNode[T, E]) {
	if add.parent != nil {
		log.Panic("push front node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.head == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertBefore中处理
		l.head.InsertBefore(add)
	}
}

// PushBack 向链表尾部插入节点
func (l *List[T, E]) PushBack(add *ListNode[T, E]) {
	if add.parent != nil {
		log.Panic("push back node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.tail == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertAfter中处理
		l.tail.InsertAfter(add)
	}
}

// InsertSorted 按键值插入节点
// 功能：保持链表升序，键值相同的节点按插入先后排列（稳定插入）
// 算法说明：从尾部向前查找第一个键值不大于add.S的节点，插入其后
func (l *List[T, E]) InsertSorted(add *ListNode[T, E]) {
	node := l.tail
	for node != nil && node.S > add.S {
		node = node.prev
	}
	if node == nil {
		l.PushFront(add)
	} else {
		node.InsertAfter(add)
	}
}

// Remove 从链表中移除节点
func (l *List[T, E]) Remove(node *ListNode[T, E]) {
	if node.parent != l {
		log.Panic("remove node from wrong list")
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.parent = nil
	l.length--
}

// Clear 移除所有节点
// 返回：按原顺序排列的被移除节点
func (l *List[T, E]) Clear() []*ListNode[T, E] {
	nodes := make([]*ListNode[T, E], 0, l.length)
	for node := l.head; node != nil; {
		next := node.next
		node.prev = nil
		node.next = nil
		node.parent = nil
		nodes = append(nodes, node)
		node = next
	}
	l.head = nil
	l.tail = nil
	l.length = 0
	return nodes
}

// First 链表头部节点，空链表返回nil
func (l *List[T, E]) First() *ListNode[T, E] {
	return l.head
}

// Merge 批量插入节点
// 算法说明：
// 1. 对待插入节点按键值做稳定的插入排序
// 2. 与链表做一次归并，键值相同时新节点排在已有节点之后
func (l *List[T, E]) Merge(adds []*ListNode[T, E]) {
	for i := 1; i < len(adds); i++ {
		for j := i; j > 0 && adds[j-1].S > adds[j].S; j-- {
			adds[j-1], adds[j] = adds[j], adds[j-1]
		}
	}
	node := l.head
	for _, add := range adds {
		for node != nil && node.S <= add.S {
			node = node.next
		}
		if node != nil {
			node.InsertBefore(add)
		} else {
			l.PushBack(add)
		}
	}
}
