package signal

import (
	"fmt"
	"sync"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

// SignalManager 信号机管理器
// 功能：处理列车的开放、容许、锁闭请求，并在每步重新计算显示
// 说明：所有修改预留与锁闭的操作都在mtx内串行执行
type SignalManager struct {
	ctx entity.ITaskContext

	mtx            sync.Mutex
	data           map[int32]*Signal
	signals        []*Signal
	sectionManager entity.ISectionManager
}

// NewManager 创建信号机管理器
func NewManager(ctx entity.ITaskContext) *SignalManager {
	return &SignalManager{
		ctx:     ctx,
		data:    make(map[int32]*Signal),
		signals: make([]*Signal, 0),
	}
}

// Init 初始化所有信号机
// 参数：pbs-信号机输入数据，sectionManager-用于解析所在区段与闭塞分区
// 说明：下一架信号机在全部创建后统一解析
func (m *SignalManager) Init(pbs []input.Signal, sectionManager entity.ISectionManager) {
	m.sectionManager = sectionManager
	m.signals = lo.Map(pbs, func(pb input.Signal, _ int) *Signal {
		return newSignal(pb, sectionManager)
	})
	m.data = lo.SliceToMap(m.signals, func(s *Signal) (int32, *Signal) {
		return s.id, s
	})
	if len(m.data) != len(m.signals) {
		log.Panic("signals have duplicated ids, please check data")
	}
	for _, s := range m.signals {
		if s.nextID == 0 {
			continue
		}
		if next, ok := m.data[s.nextID]; !ok {
			log.Panicf("%v: no next signal %d", s, s.nextID)
		} else {
			s.next = next
		}
	}
}

// Get 根据ID获取信号机，不存在则panic
func (m *SignalManager) Get(id int32) entity.ISignal {
	if s, ok := m.data[id]; !ok {
		log.Panicf("no id %d in signal data", id)
		return nil
	} else {
		return s
	}
}

// GetOrError 根据ID获取信号机，不存在则返回错误
func (m *SignalManager) GetOrError(id int32) (entity.ISignal, error) {
	if s, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in signal data", id)
	} else {
		return s, nil
	}
}

// RequestClear 请求为列车开放信号
// 功能：信号未被扣停或锁闭、闭塞分区空闲且未被他车预留时，预留整个闭塞分区并开放
// 返回：请求后的显示（对其他列车开放时返回停车）
func (m *SignalManager) RequestClear(signalID int32, train entity.ITrain) entity.Aspect {
	s := m.data[signalID]
	if s == nil {
		log.Warnf("train %d requests unknown signal %d", train.ID(), signalID)
		return entity.AspectStop
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	switch s.ReservedFor() {
	case train.ID():
		return s.Aspect()
	case 0:
	default:
		return entity.AspectStop
	}
	if s.IsHeld() || !s.blockFree(train.ID(), true) {
		return s.restingAspect()
	}
	for _, sec := range s.blockSecs {
		sec.Reserve(train.ID())
	}
	s.reservedFor.Store(train.ID())
	aspect := s.clearedAspect()
	s.aspect.Store(int32(aspect))
	log.Debugf("%v cleared for %v: %v", s, train, aspect)
	return aspect
}

// RequestPermission 请求以限制显示进入闭塞分区
// 说明：允许分区内有其他列车占用，但不允许已被其他列车预留
func (m *SignalManager) RequestPermission(signalID int32, train entity.ITrain) bool {
	s := m.data[signalID]
	if s == nil {
		return false
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	switch s.ReservedFor() {
	case train.ID():
		return true
	case 0:
	default:
		return false
	}
	if s.IsHeld() || !s.blockFree(train.ID(), false) {
		return false
	}
	s.reservedFor.Store(train.ID())
	s.aspect.Store(int32(entity.AspectRestricted))
	log.Debugf("%v gives permission to %v", s, train)
	return true
}

// LockForTrain 为列车锁闭信号，可重复锁闭
func (m *SignalManager) LockForTrain(signalID int32, trainID int32) {
	s := m.data[signalID]
	if s == nil {
		log.Warnf("train %d locks unknown signal %d", trainID, signalID)
		return
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	s.locks[trainID]++
	s.lockCount.Add(1)
}

// UnlockForTrain 解除一次锁闭
// 返回：该列车没有锁闭时返回false，计数不会变为负数
func (m *SignalManager) UnlockForTrain(signalID int32, trainID int32) bool {
	s := m.data[signalID]
	if s == nil {
		return false
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	n := s.locks[trainID]
	if n <= 0 {
		log.Warnf("%v: unlock without lock by train %d", s, trainID)
		return false
	}
	if n == 1 {
		delete(s.locks, trainID)
	} else {
		s.locks[trainID] = n - 1
	}
	s.lockCount.Add(-1)
	return true
}

// Passed 列车越过信号机后信号关闭
func (m *SignalManager) Passed(signalID int32, trainID int32) {
	s := m.data[signalID]
	if s == nil {
		return
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if s.reservedFor.CompareAndSwap(trainID, 0) {
		s.aspect.Store(int32(s.restingAspect()))
	}
}

// ReleaseSection 列车出清区段后解除预留
func (m *SignalManager) ReleaseSection(sectionID int32, trainID int32) {
	sec, err := m.sectionManager.GetOrError(sectionID)
	if err != nil {
		log.Warn(err)
		return
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	sec.Release(trainID)
}

// ReleaseTrain 列车被移除后取消为其开放的信号，解除其锁闭与全部预留
func (m *SignalManager) ReleaseTrain(trainID int32) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for _, s := range m.signals {
		if s.reservedFor.CompareAndSwap(trainID, 0) {
			s.aspect.Store(int32(s.restingAspect()))
		}
		if n := s.locks[trainID]; n > 0 {
			delete(s.locks, trainID)
			s.lockCount.Add(-n)
		}
		for _, sec := range s.blockSecs {
			sec.Release(trainID)
		}
	}
}

// SetHold 人工扣停或取消扣停
func (m *SignalManager) SetHold(signalID int32, hold bool) error {
	s, ok := m.data[signalID]
	if !ok {
		return fmt.Errorf("no id %d in signal data", signalID)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	s.hold = hold
	return nil
}

// Update 更新阶段：重新计算显示
// 算法说明：
// 1. 被扣停或锁闭的已开放信号取消开放，其余未开放信号恢复定位显示
// 2. 已开放的信号根据下一架信号是否停车，在开放与注意之间切换
func (m *SignalManager) Update() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	parallel.GoFor(m.signals, func(s *Signal) {
		if s.ReservedFor() == 0 {
			s.aspect.Store(int32(s.restingAspect()))
		} else if s.IsHeld() {
			s.revoke()
		}
	})
	parallel.GoFor(m.signals, func(s *Signal) {
		if s.ReservedFor() != 0 && s.Aspect() != entity.AspectRestricted {
			s.aspect.Store(int32(s.clearedAspect()))
		}
	})
}
