package path

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/railsim-ai/clock"
)

// 等待时间编码的分界
// 说明：路径文件中的历史数值协议，各区间含义不可更改
const (
	absoluteBase      = 30000 // 30000-39999：绝对时刻HHMM
	uncoupleFrontBase = 40000 // 4NNSS：保留车头方向的NN辆，其余摘下，等待SS秒
	uncoupleRearBase  = 50000 // 5NNSS：从车尾摘下NN辆，等待SS秒
	uncoupleEnd       = 60000
	attachCode        = 60001 // 无条件挂车
	permissionCode    = 60002 // 请求进入占用区间的许可

	// 绝对时刻已过去超过该值时视为次日
	absoluteWrapThreshold = 12 * 3600.
)

// WaitKind 等待点等待时间的类别
type WaitKind int32

const (
	WaitRelative      WaitKind = iota // 到达后等待若干秒
	WaitAbsolute                      // 等待到指定时刻
	WaitKeepFront                     // 保留车头方向的若干辆，其余摘下
	WaitDetachRear                    // 从车尾摘下若干辆
	WaitAttach                        // 挂上前方的静止车辆
	WaitPermission                    // 请求前方信号的许可
	WaitInvalid
)

func (k WaitKind) String() string {
	switch k {
	case WaitRelative:
		return "relative"
	case WaitAbsolute:
		return "absolute"
	case WaitKeepFront:
		return "keep_front"
	case WaitDetachRear:
		return "detach_rear"
	case WaitAttach:
		return "attach"
	case WaitPermission:
		return "permission"
	}
	return "invalid"
}

// Delay 解码后的等待时间
type Delay struct {
	Kind    WaitKind
	Seconds int32 // 相对等待或摘车后的等待秒数
	Hour    int32 // 绝对时刻
	Minute  int32
	Cars    int32 // 4NNSS为保留的车辆数，5NNSS为摘下的车辆数
}

// DecodeDelay 解码等待时间
// 功能：按历史数值区间划分等待类别
// 参数：code-路径节点中的等待时间
// 返回：解码结果，无法识别时Kind为WaitInvalid
func DecodeDelay(code int32) Delay {
	switch {
	case code < 0:
		return Delay{Kind: WaitInvalid}
	case code < absoluteBase:
		return Delay{Kind: WaitRelative, Seconds: code}
	case code < uncoupleFrontBase:
		hhmm := code - absoluteBase
		h, m := hhmm/100, hhmm%100
		if h >= 24 || m >= 60 {
			return Delay{Kind: WaitInvalid}
		}
		return Delay{Kind: WaitAbsolute, Hour: h, Minute: m}
	case code < uncoupleRearBase:
		nnss := code - uncoupleFrontBase
		return Delay{Kind: WaitKeepFront, Cars: nnss / 100, Seconds: nnss % 100}
	case code < uncoupleEnd:
		nnss := code - uncoupleRearBase
		return Delay{Kind: WaitDetachRear, Cars: nnss / 100, Seconds: nnss % 100}
	case code == attachCode:
		return Delay{Kind: WaitAttach}
	case code == permissionCode:
		return Delay{Kind: WaitPermission}
	}
	return Delay{Kind: WaitInvalid}
}

// Encode 编码等待时间，是DecodeDelay的逆运算
func (d Delay) Encode() (int32, error) {
	switch d.Kind {
	case WaitRelative:
		if d.Seconds < 0 || d.Seconds >= absoluteBase {
			return 0, fmt.Errorf("relative wait %ds out of range", d.Seconds)
		}
		return d.Seconds, nil
	case WaitAbsolute:
		if d.Hour < 0 || d.Hour >= 24 || d.Minute < 0 || d.Minute >= 60 {
			return 0, fmt.Errorf("bad absolute time %02d:%02d", d.Hour, d.Minute)
		}
		return absoluteBase + d.Hour*100 + d.Minute, nil
	case WaitKeepFront, WaitDetachRear:
		if d.Cars < 0 || d.Cars >= 100 || d.Seconds < 0 || d.Seconds >= 100 {
			return 0, fmt.Errorf("bad uncouple %d cars / %ds", d.Cars, d.Seconds)
		}
		base := int32(uncoupleFrontBase)
		if d.Kind == WaitDetachRear {
			base = uncoupleRearBase
		}
		return base + d.Cars*100 + d.Seconds, nil
	case WaitAttach:
		return attachCode, nil
	case WaitPermission:
		return permissionCode, nil
	}
	return 0, fmt.Errorf("cannot encode %v delay", d.Kind)
}

// AbsoluteDelay 构造绝对时刻的等待
func AbsoluteDelay(hour, minute int32) Delay {
	return Delay{Kind: WaitAbsolute, Hour: hour, Minute: minute}
}

// DepartClock 计算出发时刻
// 参数：now-当前仿真时间（秒）
// 返回：出发时刻（秒），不早于now
// 算法说明：
// 1. 相对等待与摘车为now加等待秒数，挂车与许可请求立即完成
// 2. 绝对时刻取当天对应时刻；已过去不超过12小时则立即出发，超过则视为次日
func (d Delay) DepartClock(now float64) float64 {
	switch d.Kind {
	case WaitRelative, WaitKeepFront, WaitDetachRear:
		return now + float64(d.Seconds)
	case WaitAbsolute:
		day := math.Floor(now/clock.DaySeconds) * clock.DaySeconds
		target := day + float64(d.Hour*3600+d.Minute*60)
		if target >= now {
			return target
		}
		if now-target > absoluteWrapThreshold {
			return target + clock.DaySeconds
		}
		return now
	}
	return now
}
