package section

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

// Section 区段实体
// 功能：表示一段轨道电路，记录长度、限速、道口、两端信号机、占用与进路预留
type Section struct {
	id             int32
	length         float64
	maxV           float64
	movableTable   bool
	levelCrossings []float64
	signals        [2]entity.ISignal // 沿[正向/反向]通过时末端的信号机

	tableAligned       bool // 转车台是否对准
	tableAlignedBuffer bool

	occupancy  occupancyList
	occupants  []entity.Occupant // 占用快照
	reservedBy atomic.Int32      // 预留给的列车ID
}

// newSection 根据输入数据创建区段
func newSection(pb input.Section) *Section {
	if pb.Length <= 0 {
		log.Panicf("section %d has non-positive length %v", pb.ID, pb.Length)
	}
	lcs := lo.Filter(pb.LevelCrossings, func(s float64, _ int) bool {
		if s < 0 || s > pb.Length {
			log.Warnf("section %d: level crossing at %v is outside [0, %v], ignored", pb.ID, s, pb.Length)
			return false
		}
		return true
	})
	s := &Section{
		id:                 pb.ID,
		length:             pb.Length,
		maxV:               pb.MaxV,
		movableTable:       pb.MovableTable,
		levelCrossings:     lcs,
		tableAligned:       true,
		tableAlignedBuffer: true,
		occupancy:          newOccupancyList(strconv.Itoa(int(pb.ID))),
		occupants:          make([]entity.Occupant, 0),
	}
	return s
}

func (s *Section) String() string {
	return fmt.Sprintf("Section %d", s.id)
}

func (s *Section) ID() int32 {
	return s.id
}

func (s *Section) Length() float64 {
	return s.length
}

func (s *Section) MaxV() float64 {
	return s.maxV
}

func (s *Section) IsMovableTable() bool {
	return s.movableTable
}

func (s *Section) TableAligned() bool {
	return !s.movableTable || s.tableAligned
}

func (s *Section) LevelCrossings() []float64 {
	return s.levelCrossings
}

func (s *Section) Signal(dir entity.Direction) entity.ISignal {
	return s.signals[dir]
}

// AttachSignal 挂接信号机，同一端重复挂接视为数据错误
func (s *Section) AttachSignal(dir entity.Direction, sig entity.ISignal) {
	if s.signals[dir] != nil {
		log.Panicf("%v already has signal %v at %v end", s, s.signals[dir], dir)
	}
	s.signals[dir] = sig
}

// Occupy 登记占用，from/to会被裁剪到区段范围内
func (s *Section) Occupy(t entity.ITrain, from, to float64) {
	if from > to {
		from, to = to, from
	}
	from = lo.Clamp(from, 0, s.length)
	to = lo.Clamp(to, 0, s.length)
	s.occupancy.add(t, from, to)
}

// Occupants 上一次Prepare时的占用快照
func (s *Section) Occupants() []entity.Occupant {
	return s.occupants
}

// IsOccupiedByOther 是否被其他列车占用
func (s *Section) IsOccupiedByOther(trainID int32) bool {
	return lo.ContainsBy(s.occupants, func(o entity.Occupant) bool {
		return o.Train.ID() != trainID
	})
}

func (s *Section) ReservedBy() int32 {
	return s.reservedBy.Load()
}

// Reserve 预留给列车
func (s *Section) Reserve(trainID int32) bool {
	if s.reservedBy.CompareAndSwap(0, trainID) {
		return true
	}
	return s.reservedBy.Load() == trainID
}

// Release 解除列车的预留
func (s *Section) Release(trainID int32) bool {
	return s.reservedBy.CompareAndSwap(trainID, 0)
}

func (s *Section) setTableAligned(aligned bool) {
	s.tableAlignedBuffer = aligned
}

func (s *Section) prepare() {
	s.tableAligned = s.tableAlignedBuffer
	s.occupancy.prepare()
	s.occupants = s.occupancy.snapshot()
}
