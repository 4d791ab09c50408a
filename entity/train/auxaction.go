package train

import (
	"fmt"

	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/path"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/container"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/randengine"
)

// AuxKind 辅助动作类别
type AuxKind int32

const (
	AuxWaitingPoint    AuxKind = iota // 等待点
	AuxHorn                           // 鸣笛
	AuxControlledStart                // 受控启动
	AuxSignalDelegate                 // 信号委托
)

func (k AuxKind) String() string {
	switch k {
	case AuxWaitingPoint:
		return "waiting_point"
	case AuxHorn:
		return "horn"
	case AuxControlledStart:
		return "controlled_start"
	case AuxSignalDelegate:
		return "signal_delegate"
	}
	return fmt.Sprintf("AuxKind(%d)", int32(k))
}

func parseAuxKind(s string) (AuxKind, error) {
	for _, k := range []AuxKind{AuxWaitingPoint, AuxHorn, AuxControlledStart, AuxSignalDelegate} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown aux action kind %q", s)
}

// exclusive 是否需要停车并独占控制
// 说明：同一时刻最多只有一个独占的辅助动作实例
func (k AuxKind) exclusive() bool {
	return k != AuxHorn
}

// GenSource 通用辅助动作的触发来源
type GenSource int32

const (
	SourceLevelCrossing GenSource = iota // 道口
)

// HornPattern 鸣笛方式
type HornPattern int32

const (
	HornSingle HornPattern = iota // 单声长笛
	HornUS                        // 长-长-短-长
)

func parseHornPattern(s string) HornPattern {
	if s == "us" {
		return HornUS
	}
	return HornSingle
}

// WaitingPointParams 等待点参数
type WaitingPointParams struct {
	Delay        int32 // 编码后的等待时间
	LinkedSignal int32 // 等待期间锁闭的信号机，0表示无
}

// HornParams 鸣笛参数
type HornParams struct {
	Duration float64 // 鸣笛时长，小于0表示随机
	Pattern  HornPattern
}

// ControlledStartParams 受控启动参数
type ControlledStartParams struct {
	ReleaseClock float64 // 放行时刻，0表示等待外部放行
}

// SignalDelegateParams 信号委托参数
type SignalDelegateParams struct {
	SignalID int32   // 停稳前不自动请求开放的信号机
	Delay    float64 // 停稳后延迟请求开放的秒数
}

// AuxRefID 辅助动作引用在容器中的编号
type AuxRefID int32

// AuxActionRef 辅助动作引用
// 功能：描述在哪里(位置或通用触发来源)做什么，生命周期与路径相同
// 说明：按Kind只有对应的一个参数指针非空
type AuxActionRef struct {
	ID       AuxRefID
	Kind     AuxKind
	Generic  bool
	Source   GenSource     // 通用动作的触发来源
	Location path.Location // 专用动作的位置

	WaitingPoint    *WaitingPointParams
	Horn            *HornParams
	ControlledStart *ControlledStartParams
	SignalDelegate  *SignalDelegateParams
}

func (r *AuxActionRef) String() string {
	if r.Generic {
		return fmt.Sprintf("AuxRef %d{%v generic}", r.ID, r.Kind)
	}
	return fmt.Sprintf("AuxRef %d{%v at %v}", r.ID, r.Kind, r.Location)
}

// auxSubState 辅助动作实例的子状态
type auxSubState int32

const (
	subIdle       auxSubState = iota // 尚未开始处理
	subWaiting                       // 等待出发时刻
	subPermission                    // 请求信号许可
	subHold                          // 等待放行
	subDelegate                      // 等待后请求开放信号
	subHorn                          // 鸣笛进行中
	subDone
)

// genKey 通用动作实例的唯一键：同一引用在同一位置只激活一次
type genKey struct {
	Ref        AuxRefID
	SubPath    int32
	RouteIndex int32
	Offset     int32 // 取整后的偏移
}

type auxNode = container.ListNode[*AuxActionInstance, struct{}]

// AuxActionInstance 辅助动作实例
// 功能：由引用在接近时创建的运行时状态，完成后销毁
type AuxActionInstance struct {
	ref     AuxRefID
	kind    AuxKind
	generic bool
	key     genKey

	triggered         bool        // 已到达触发距离
	processing        bool        // 正在处理
	subState          auxSubState // 子状态
	actualDepartClock float64     // 实际出发时刻

	activateDistance float64
	triggerDistance  float64

	item         *ActionItem    // 独占动作对应的队列动作
	horn         *hornExecutor  // 鸣笛执行器
	lockedSignal entity.ISignal // 持有锁闭的信号机
	delegated    int32          // 委托的信号机
	prevState    MovementState  // 鸣笛前的运动状态
	prevSaved    bool

	node *auxNode // 在触发队列中的节点，已触发后为nil
}

func (inst *AuxActionInstance) String() string {
	return fmt.Sprintf("AuxInstance{ref=%d %v sub=%d}", inst.ref, inst.kind, inst.subState)
}

// linkedSignalID 与该实例绑定的信号机（锁闭或委托），0表示无
func (inst *AuxActionInstance) linkedSignalID() int32 {
	if inst.lockedSignal != nil {
		return inst.lockedSignal.ID()
	}
	return inst.delegated
}

// seed 实例的随机数种子，只由列车种子、引用与位置决定，存档恢复后不变
func (inst *AuxActionInstance) seed(trainSeed uint64) uint64 {
	k := inst.key
	return randengine.Derive(trainSeed, uint64(inst.ref), uint64(k.SubPath), uint64(k.RouteIndex), uint64(uint32(k.Offset)))
}
