package signal

import (
	"fmt"
	"sync/atomic"

	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

// Signal 信号机实体
// 功能：防护所在区段末端之后的闭塞分区，为列车开放进路
// 说明：aspect与reservedFor在更新阶段会被列车并发读取，使用原子变量；
// 其余可变状态只在管理器的锁内修改
type Signal struct {
	id         int32
	section    entity.ISection
	dir        entity.Direction
	block      []int32
	blockSecs  []entity.ISection
	nextID     int32
	next       *Signal
	permissive bool
	speedLimit float64

	hold        bool
	locks       map[int32]int32 // 列车ID->锁闭次数
	lockCount   atomic.Int32
	aspect      atomic.Int32
	reservedFor atomic.Int32
}

func newSignal(pb input.Signal, sectionManager entity.ISectionManager) *Signal {
	section, err := sectionManager.GetOrError(pb.SectionID)
	if err != nil {
		log.Panicf("signal %d: %v", pb.ID, err)
	}
	if pb.Direction != int32(entity.Forward) && pb.Direction != int32(entity.Reverse) {
		log.Panicf("signal %d: bad direction %d", pb.ID, pb.Direction)
	}
	s := &Signal{
		id:         pb.ID,
		section:    section,
		dir:        entity.Direction(pb.Direction),
		block:      pb.Block,
		blockSecs:  make([]entity.ISection, 0, len(pb.Block)),
		nextID:     pb.NextSignal,
		permissive: pb.Permissive,
		speedLimit: pb.SpeedLimit,
		hold:       pb.Hold,
		locks:      make(map[int32]int32),
	}
	for _, id := range pb.Block {
		sec, err := sectionManager.GetOrError(id)
		if err != nil {
			log.Panicf("signal %d block: %v", pb.ID, err)
		}
		s.blockSecs = append(s.blockSecs, sec)
	}
	s.aspect.Store(int32(s.restingAspect()))
	section.AttachSignal(s.dir, s)
	return s
}

func (s *Signal) String() string {
	return fmt.Sprintf("Signal %d", s.id)
}

func (s *Signal) ID() int32 {
	return s.id
}

func (s *Signal) Section() entity.ISection {
	return s.section
}

func (s *Signal) Direction() entity.Direction {
	return s.dir
}

func (s *Signal) Aspect() entity.Aspect {
	return entity.Aspect(s.aspect.Load())
}

func (s *Signal) ReservedFor() int32 {
	return s.reservedFor.Load()
}

func (s *Signal) IsHeld() bool {
	return s.hold || s.lockCount.Load() > 0
}

func (s *Signal) LockCount() int32 {
	return s.lockCount.Load()
}

func (s *Signal) Block() []int32 {
	return s.block
}

func (s *Signal) Permissive() bool {
	return s.permissive
}

func (s *Signal) SpeedLimit() float64 {
	return s.speedLimit
}

// restingAspect 未为任何列车开放时的显示
func (s *Signal) restingAspect() entity.Aspect {
	if s.permissive {
		return entity.AspectStopAndProceed
	}
	return entity.AspectStop
}

// blockFree 闭塞分区是否对列车空闲
// 参数：checkOccupancy-是否要求无其他列车占用
func (s *Signal) blockFree(trainID int32, checkOccupancy bool) bool {
	for _, sec := range s.blockSecs {
		if r := sec.ReservedBy(); r != 0 && r != trainID {
			return false
		}
		if checkOccupancy && sec.IsOccupiedByOther(trainID) {
			return false
		}
	}
	return true
}

// clearedAspect 开放后的显示，前方信号停车时为注意
func (s *Signal) clearedAspect() entity.Aspect {
	if s.next != nil && s.next.Aspect().IsStop() {
		return entity.AspectApproach
	}
	return entity.AspectClear
}

// revoke 取消开放，解除尚未被列车进入的预留
func (s *Signal) revoke() {
	trainID := s.reservedFor.Swap(0)
	if trainID == 0 {
		return
	}
	for _, sec := range s.blockSecs {
		if !sec.IsOccupiedByOther(0) {
			sec.Release(trainID)
		}
	}
	s.aspect.Store(int32(s.restingAspect()))
	log.Debugf("%v revoked for train %d", s, trainID)
}
