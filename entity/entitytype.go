package entity

import (
	"fmt"
	"math"
)

// NeverDistance 无法解析的路径位置对应的距离哨兵
// 说明：遇到该值时调用方等待而非报错
var NeverDistance = math.Inf(1)

// Direction 列车通过区段的方向
type Direction int32

const (
	Forward Direction = 0 // 沿区段正向
	Reverse Direction = 1 // 沿区段反向
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Opposite 相反方向
func (d Direction) Opposite() Direction {
	return 1 - d
}

// Aspect 信号显示，数值越大越宽松
type Aspect int32

const (
	AspectStop           Aspect = iota // 停车
	AspectStopAndProceed               // 停车后可限速越过（容许信号）
	AspectRestricted                   // 限速进入占用的闭塞分区
	AspectApproach                     // 前方信号为停车
	AspectClear                        // 开放
)

func (a Aspect) String() string {
	switch a {
	case AspectStop:
		return "STOP"
	case AspectStopAndProceed:
		return "STOP_AND_PROCEED"
	case AspectRestricted:
		return "RESTRICTED"
	case AspectApproach:
		return "APPROACH"
	case AspectClear:
		return "CLEAR"
	}
	return fmt.Sprintf("Aspect(%d)", int32(a))
}

// IsStop 是否要求停车
func (a Aspect) IsStop() bool {
	return a <= AspectStopAndProceed
}

// CarClass 车辆类别，决定加减速能力的选取
type CarClass int32

const (
	ClassPassenger CarClass = iota // 机车牵引客车
	ClassFreight                   // 货车
	ClassEMU                       // 电动车组
	ClassDMU                       // 内燃动车组
)

var carClassNames = map[CarClass]string{
	ClassPassenger: "passenger",
	ClassFreight:   "freight",
	ClassEMU:       "emu",
	ClassDMU:       "dmu",
}

// String 类别名，同时作为配置中classes的键
func (c CarClass) String() string {
	if s, ok := carClassNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CarClass(%d)", int32(c))
}

// IsFreight 是否为货车
func (c CarClass) IsFreight() bool {
	return c == ClassFreight
}

// ParseCarClass 解析类别名，空字符串视为客车
func ParseCarClass(s string) (CarClass, error) {
	if s == "" {
		return ClassPassenger, nil
	}
	for c, name := range carClassNames {
		if name == s {
			return c, nil
		}
	}
	return ClassPassenger, fmt.Errorf("unknown car class %q", s)
}

// Occupant 区段上的一段占用，From<To为沿区段正向的坐标
type Occupant struct {
	Train    ITrain
	From, To float64
}

// entity/train/train.go的依赖倒置
type ITrain interface {
	ID() int32           // 列车ID
	Name() string        // 车次名
	Speed() float64      // 当前速度（米/秒）
	Length() float64     // 列车长度（米）
	IsStatic() bool      // 是否为静止车辆（无AI控制）
	CarClass() CarClass  // 车辆类别
	String() string
}

// entity/section/section.go的依赖倒置
type ISection interface {
	ID() int32                // 区段ID
	Length() float64          // 区段长度
	MaxV() float64            // 线路限速
	IsMovableTable() bool     // 是否为转车台
	TableAligned() bool       // 转车台是否已对准
	LevelCrossings() []float64 // 道口位置（沿正向的偏移）
	Signal(dir Direction) ISignal // 区段沿dir方向末端的信号机，没有则返回nil

	AttachSignal(dir Direction, s ISignal) // 初始化时挂接信号机

	// 占用

	Occupy(t ITrain, from, to float64) // 登记本步的占用（Prepare后生效）
	Occupants() []Occupant             // 上一次Prepare时的占用快照，按From升序
	IsOccupiedByOther(trainID int32) bool

	// 进路预留

	ReservedBy() int32             // 预留给的列车ID，0表示未预留
	Reserve(trainID int32) bool    // 预留给列车，已被其他列车预留时返回false
	Release(trainID int32) bool    // 解除列车的预留
	String() string
}

// entity/signal/signal.go的依赖倒置
type ISignal interface {
	ID() int32
	Section() ISection     // 所在区段
	Direction() Direction  // 防护方向
	Aspect() Aspect        // 当前显示
	ReservedFor() int32    // 已为哪趟列车开放，0表示无
	IsHeld() bool          // 人工扣停或被列车锁闭
	LockCount() int32      // 锁闭计数
	Block() []int32        // 防护的闭塞分区
	Permissive() bool      // 是否为容许信号
	SpeedLimit() float64   // 开放时的限速，0表示无
	String() string
}

// IPhysics 列车动力学接口，AI只通过百分比设定牵引与制动
type IPhysics interface {
	SetThrottlePercent(p float64) // 设置牵引百分比[0,100]
	SetBrakePercent(p float64)    // 设置制动百分比[0,100]
	SetFixedSpeed(v float64)      // 强制设定速度（纠偏）
	ThrottlePercent() float64
	BrakePercent() float64
	Speed() float64
	Acceleration() float64
	CarClass() CarClass
	MaxDecel() float64 // 100%制动的减速度
	Update(dt float64) (ds float64)
}
