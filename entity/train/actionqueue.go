package train

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
)

type actionNode = container.ListNode[*ActionItem, struct{}]

// ActionQueue 待执行动作队列
// 功能：按触发距离升序保存动作，触发距离相同时保持插入顺序
// 说明：动作只会因到期取出、显式取消或被取代而离开队列
type ActionQueue struct {
	list  *container.List[*ActionItem, struct{}]
	nodes map[*ActionItem]*actionNode
}

// NewActionQueue 创建空队列
func NewActionQueue(id string) *ActionQueue {
	return &ActionQueue{
		list:  &container.List[*ActionItem, struct{}]{ID: id},
		nodes: make(map[*ActionItem]*actionNode),
	}
}

// Insert 按触发距离插入动作，重复插入同一动作会panic
func (q *ActionQueue) Insert(item *ActionItem) {
	if _, ok := q.nodes[item]; ok {
		log.Panicf("action %v inserted twice", item)
	}
	node := &actionNode{S: item.TriggerDistance, Value: item}
	q.list.InsertSorted(node)
	q.nodes[item] = node
}

// PopDue 取出所有触发距离不大于currentDistance的动作
// 返回：按触发距离升序排列的动作
func (q *ActionQueue) PopDue(currentDistance float64) []*ActionItem {
	var due []*ActionItem
	for node := q.list.First(); node != nil && node.S <= currentDistance; node = q.list.First() {
		q.list.Remove(node)
		delete(q.nodes, node.Value)
		due = append(due, node.Value)
	}
	return due
}

// Remove 移除动作，不在队列中时返回false
func (q *ActionQueue) Remove(item *ActionItem) bool {
	node, ok := q.nodes[item]
	if !ok {
		return false
	}
	q.list.Remove(node)
	delete(q.nodes, item)
	return true
}

// CancelAll 取消除exclude类别外的所有动作
// 返回：被取消的动作
func (q *ActionQueue) CancelAll(exclude ...ActionKind) []*ActionItem {
	var cancelled []*ActionItem
	for node := q.list.First(); node != nil; {
		next := node.Next()
		if !lo.Contains(exclude, node.Value.Kind) {
			q.list.Remove(node)
			delete(q.nodes, node.Value)
			cancelled = append(cancelled, node.Value)
		}
		node = next
	}
	return cancelled
}

// Find 查找类别与来源相同的动作
func (q *ActionQueue) Find(kind ActionKind, source int64) *ActionItem {
	for node := q.list.First(); node != nil; node = node.Next() {
		if node.Value.Kind == kind && node.Value.Source == source {
			return node.Value
		}
	}
	return nil
}

// Contains 动作是否在队列中
func (q *ActionQueue) Contains(item *ActionItem) bool {
	_, ok := q.nodes[item]
	return ok
}

func (q *ActionQueue) Len() int {
	return q.list.Len()
}

// Items 按触发距离升序的全部动作
func (q *ActionQueue) Items() []*ActionItem {
	return q.list.Values()
}
