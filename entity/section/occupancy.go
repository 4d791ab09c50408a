package section

import (
	"sync"

	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
)

// occupancyNode 占用链表节点，S为占用起点，Extra为占用终点
type occupancyNode = container.ListNode[entity.ITrain, float64]

// occupancyList 区段占用表
// 功能：更新阶段各列车并发登记本步占用，准备阶段整体替换为新的快照
type occupancyList struct {
	list        *container.List[entity.ITrain, float64]
	buffer      []*occupancyNode
	bufferMutex sync.Mutex
}

func newOccupancyList(id string) occupancyList {
	return occupancyList{
		list:   &container.List[entity.ITrain, float64]{ID: id},
		buffer: make([]*occupancyNode, 0),
	}
}

// add 登记占用（prepare后生效）
func (l *occupancyList) add(t entity.ITrain, from, to float64) {
	l.bufferMutex.Lock()
	defer l.bufferMutex.Unlock()
	l.buffer = append(l.buffer, &occupancyNode{S: from, Value: t, Extra: to})
}

// prepare 用本步登记的占用替换上一步的快照
// 说明：静止车辆与AI列车一样每步重新登记，未登记的列车视为已出清
func (l *occupancyList) prepare() {
	l.list.Clear()
	l.list.Merge(l.buffer)
	l.buffer = make([]*occupancyNode, 0, len(l.buffer))
}

// snapshot 按起点升序的占用列表
func (l *occupancyList) snapshot() []entity.Occupant {
	res := make([]entity.Occupant, 0, l.list.Len())
	for node := l.list.First(); node != nil; node = node.Next() {
		res = append(res, entity.Occupant{Train: node.Value, From: node.S, To: node.Extra})
	}
	return res
}
