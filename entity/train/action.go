package train

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/railsim-ai/entity"
)

// ActionKind 动作类别
type ActionKind int32

const (
	KindSpeedLimit       ActionKind = iota // 线路限速
	KindSpeedSignal                        // 信号限速（接近显示或信号机限速）
	KindSignalStop                         // 信号停车
	KindSignalRestricted                   // 限制显示
	KindEndOfAuthority                     // 行车许可终点
	KindStationStop                        // 车站停车
	KindTrainAhead                         // 前方列车
	KindEndOfRoute                         // 路径终点
	KindReversal                           // 折返点
	KindAuxiliary                          // 辅助动作（等待点、信号委托、受控启动）
	KindMovableTable                       // 接近转车台
)

var actionKindNames = map[ActionKind]string{
	KindSpeedLimit:       "SPEED_LIMIT",
	KindSpeedSignal:      "SPEED_SIGNAL",
	KindSignalStop:       "SIGNAL_STOP",
	KindSignalRestricted: "SIGNAL_RESTRICTED",
	KindEndOfAuthority:   "END_OF_AUTHORITY",
	KindStationStop:      "STATION_STOP",
	KindTrainAhead:       "TRAIN_AHEAD",
	KindEndOfRoute:       "END_OF_ROUTE",
	KindReversal:         "REVERSAL",
	KindAuxiliary:        "AUXILIARY",
	KindMovableTable:     "MOVABLE_TABLE",
}

func (k ActionKind) String() string {
	if s, ok := actionKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ActionKind(%d)", int32(k))
}

// severity 同一位置生效时的严重程度，数值小者优先
func (k ActionKind) severity() int {
	switch k {
	case KindSignalStop:
		return 0
	case KindEndOfAuthority:
		return 1
	case KindTrainAhead:
		return 2
	case KindStationStop:
		return 3
	case KindAuxiliary:
		return 4
	case KindReversal:
		return 5
	case KindEndOfRoute:
		return 6
	case KindMovableTable:
		return 7
	case KindSignalRestricted:
		return 8
	case KindSpeedSignal:
		return 9
	}
	return 10
}

// scanOwned 是否由前方扫描每步重新生成
// 说明：此类动作未被扫描再次发现时视为已被取代
func (k ActionKind) scanOwned() bool {
	return k != KindAuxiliary
}

// ActionItem 距离触发的待执行动作
// 功能：记录前方某处对速度或行为的要求，入队后不再修改
// 说明：里程均为沿路径累计的绝对里程
type ActionItem struct {
	Kind               ActionKind
	Source             int64   // 产生该动作的对象标识，与Kind一起用于匹配
	RequiredSpeed      float64 // 到达生效点时要求的速度
	TriggerDistance    float64 // 车头到达该里程时开始执行
	ActivateDistance   float64 // 生效点里程
	InsertedAtDistance float64 // 创建时车头的里程

	Signal  entity.ISignal     // 产生该动作的信号机
	Station *stationStop       // 对应的车站停车
	Aux     *AuxActionInstance // 对应的辅助动作
}

func (a *ActionItem) String() string {
	return fmt.Sprintf("%v[%d]{v=%.2f trigger=%.1f activate=%.1f}",
		a.Kind, a.Source, a.RequiredSpeed, a.TriggerDistance, a.ActivateDistance)
}

// isStop 是否要求停车
func (a *ActionItem) isStop() bool {
	return a.RequiredSpeed <= 0
}

// brakingDistance 按带滞后系数的减速度从v减速到vr所需的距离
func brakingDistance(v, vr, k, maxDecel float64) float64 {
	if v <= vr {
		return 0
	}
	return (v*v - vr*vr) / (2 * k * maxDecel)
}

// idealSpeed 理想速度曲线
// 功能：距生效点distanceToGo处为在生效点达到requiredSpeed应保持的速度
// 算法说明：idealSpeed = sqrt(2·k·MaxDecel·distanceToGo + requiredSpeed²)，
// 其中k模拟制动施加的滞后；distanceToGo小于0时按0处理
func idealSpeed(distanceToGo, requiredSpeed, k, maxDecel float64) float64 {
	return math.Sqrt(2*k*maxDecel*math.Max(distanceToGo, 0) + requiredSpeed*requiredSpeed)
}

// itemParams 计算触发距离所需的列车状态
type itemParams struct {
	distance   float64 // 车头里程
	speed      float64 // 当前速度
	allowedMax float64 // 当前允许的最高速度
	k          float64
	maxDecel   float64
	margin     float64
}

// newActionItem 创建动作
// 功能：根据生效点与要求速度计算触发距离
// 算法说明：触发距离 = 生效点 - 从max(当前速度, 允许速度)减速到要求速度的距离 - 余量；
// 允许速度升高后由扫描以触发点更早的新动作替换
func newActionItem(kind ActionKind, source int64, requiredSpeed, activate float64, p itemParams) *ActionItem {
	v := math.Max(p.speed, p.allowedMax)
	trigger := activate - brakingDistance(v, requiredSpeed, p.k, p.maxDecel) - p.margin
	return &ActionItem{
		Kind:               kind,
		Source:             source,
		RequiredSpeed:      requiredSpeed,
		TriggerDistance:    trigger,
		ActivateDistance:   activate,
		InsertedAtDistance: p.distance,
	}
}
