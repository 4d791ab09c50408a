package train

import "fmt"

// MovementState AI列车的运动状态
type MovementState int32

const (
	StateStatic       MovementState = iota // 无AI控制（静止车辆或已到达终点）
	StateInit                              // 刚出发，尚未完成初始化
	StateStopped                           // 停车等待
	StateStationStop                       // 车站停车
	StateBraking                           // 向生效点制动
	StateAccelerating                      // 加速
	StateRunning                           // 接近最高速度运行
	StateFollowing                         // 跟随前方列车
	StateInitAction                        // 开始处理辅助动作
	StateHandleAction                      // 处理辅助动作
	StateSuspended                         // 挂起（外部控制）
	StateFrozen                            // 冻结（不参与任何计算）
)

var stateNames = map[MovementState]string{
	StateStatic:       "STATIC",
	StateInit:         "INIT",
	StateStopped:      "STOPPED",
	StateStationStop:  "STATION_STOP",
	StateBraking:      "BRAKING",
	StateAccelerating: "ACCELERATING",
	StateRunning:      "RUNNING",
	StateFollowing:    "FOLLOWING",
	StateInitAction:   "INIT_ACTION",
	StateHandleAction: "HANDLE_ACTION",
	StateSuspended:    "SUSPENDED",
	StateFrozen:       "FROZEN",
}

func (s MovementState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("MovementState(%d)", int32(s))
}

// ResumeReason 停车后重新启动的原因
type ResumeReason int32

const (
	ResumeNew              ResumeReason = iota // 新出发
	ResumeSignalCleared                        // 信号开放
	ResumeSignalRestricted                     // 信号给出限制显示
	ResumeFollowTrain                          // 前方列车离开或开始跟车
	ResumePathAction                           // 路径上的辅助动作完成
	ResumeTurntable                            // 转车台对准
)

func (r ResumeReason) String() string {
	switch r {
	case ResumeNew:
		return "new"
	case ResumeSignalCleared:
		return "signal_cleared"
	case ResumeSignalRestricted:
		return "signal_restricted"
	case ResumeFollowTrain:
		return "follow_train"
	case ResumePathAction:
		return "path_action"
	case ResumeTurntable:
		return "turntable"
	}
	return fmt.Sprintf("ResumeReason(%d)", int32(r))
}

// resumeReasonOf 由被移除的起支配作用的动作推断重新启动的原因
func resumeReasonOf(kind ActionKind) ResumeReason {
	switch kind {
	case KindSignalStop, KindEndOfAuthority:
		return ResumeSignalCleared
	case KindSignalRestricted:
		return ResumeSignalRestricted
	case KindTrainAhead:
		return ResumeFollowTrain
	case KindAuxiliary:
		return ResumePathAction
	case KindMovableTable:
		return ResumeTurntable
	}
	return ResumeNew
}

// isMoving 是否处于由速度控制驱动的状态
func (s MovementState) isMoving() bool {
	switch s {
	case StateBraking, StateAccelerating, StateRunning, StateFollowing:
		return true
	}
	return false
}

// updateMovement 运动状态机的一步
// 功能：按当前状态分派到对应的处理函数
// 说明：状态转移在同一步内同步完成；处理函数返回true时按新状态再分派，每步至多3次
func (t *Train) updateMovement(dt float64) {
	for i := 0; i < 3; i++ {
		before := t.state
		again := false
		switch t.state {
		case StateStatic, StateFrozen:
			return
		case StateSuspended:
			t.setControls(0, 100)
		case StateStopped:
			again = t.updateStopped()
		case StateStationStop:
			again = t.updateStationStop()
		case StateBraking, StateAccelerating, StateRunning:
			again = t.updateSpeedControl(dt)
		case StateFollowing:
			again = t.updateFollowing(dt)
		case StateInitAction, StateHandleAction:
			// 由辅助动作容器推进，这里只保持制动
			t.setControls(0, 100)
		}
		if t.state != before {
			log.Debugf("%v: %v -> %v", t, before, t.state)
		}
		if !again {
			return
		}
	}
}
