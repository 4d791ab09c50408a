package clock

import (
	"fmt"
	"sync/atomic"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
)

// 一天的秒数
const DaySeconds = 86400.

// Clock 仿真时钟
// 功能：管理仿真时间推进，T为从仿真日零点起算的秒数
// 说明：等待点的绝对时刻、车站的图定到发时刻都以T为基准
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT         float64 // 每个模拟步的时间间隔（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步，模拟区间[START, END)

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数

	published atomic.Uint64 // 供RPC读取的T（float64位模式），每步结束时更新
}

// New 根据配置创建时钟
// 参数：stepConfig-控制步配置，包含起始步、总步数与步长
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
		END_STEP:   stepConfig.Start + stepConfig.Total,
	}
	c.Init()
	return c
}

// Init 重置到起始步
func (c *Clock) Init() {
	c.SetStep(c.START_STEP)
}

// SetStep 跳到指定步，用于从存档恢复
func (c *Clock) SetStep(step int32) {
	c.InternalStep = step
	c.T = float64(step) * c.DT
	c.publish()
}

// Tick 前进一步
func (c *Clock) Tick() {
	c.SetStep(c.InternalStep + 1)
}

// Finished 是否已到达结束步
func (c *Clock) Finished() bool {
	return c.InternalStep+1 >= c.END_STEP
}

// TimeOfDay 当前时刻在一天内的秒数
func (c *Clock) TimeOfDay() float64 {
	t := c.T
	for t >= DaySeconds {
		t -= DaySeconds
	}
	return t
}

// String 格式化为HH:MM:SS
func (c *Clock) String() string {
	return FormatSeconds(c.T)
}

// FormatSeconds 将秒数格式化为HH:MM:SS
func FormatSeconds(t float64) string {
	sign := ""
	if t < 0 {
		sign = "-"
		t = -t
	}
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}

// GetHourMinuteSecond 当前时间的小时、分钟、秒（秒为浮点数）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
