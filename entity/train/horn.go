package train

// 鸣笛相关常量
const (
	bellSilenceAfter = 30. // 打铃在鸣笛开始后30秒停止
)

// hornEffect 鸣笛步骤的副作用
type hornEffect int32

const (
	effectHornOn hornEffect = iota
	effectHornOff
	effectBellOff
)

// hornStep 鸣笛步骤：执行副作用后等待wait秒
type hornStep struct {
	effect hornEffect
	wait   float64
}

// hornTarget 鸣笛执行的对象（机车）
type hornTarget interface {
	SetHorn(on bool)
	SetBell(on bool)
}

// usPattern 长-长-短-长，总时长固定为15秒
var usPattern = []hornStep{
	{effectHornOn, 3}, {effectHornOff, 1},
	{effectHornOn, 3}, {effectHornOff, 1},
	{effectHornOn, 1}, {effectHornOff, 1},
	{effectHornOn, 5},
}

// hornExecutor 鸣笛步骤状态机
// 功能：按步骤表依次执行副作用并等待，每步由列车更新时推进
// 说明：状态只有{stepIndex, nextWake, steps}，可直接保存与恢复
type hornExecutor struct {
	steps     []hornStep
	stepIndex int     // 已执行的步骤数
	nextWake  float64 // 下一步骤的执行时刻
	start     float64 // 第一步的执行时刻
	bell      bool    // 是否同时打铃
}

// hornSteps 生成鸣笛步骤表
// 参数：pattern-鸣笛方式，duration-单声长笛的时长（长-长-短-长忽略该参数），bell-是否同时打铃
// 算法说明：打铃时最后一次停止鸣笛后再等待到开始后30秒执行停止打铃
func hornSteps(pattern HornPattern, duration float64, bell bool) []hornStep {
	var steps []hornStep
	total := 0.
	switch pattern {
	case HornUS:
		steps = append(steps, usPattern...)
	default:
		steps = append(steps, hornStep{effectHornOn, max(duration, 0)})
	}
	for _, s := range steps {
		total += s.wait
	}
	off := hornStep{effect: effectHornOff}
	if bell {
		off.wait = max(0, bellSilenceAfter-total)
	}
	steps = append(steps, off)
	if bell {
		steps = append(steps, hornStep{effect: effectBellOff})
	}
	return steps
}

func newHornExecutor(pattern HornPattern, duration float64, bell bool) *hornExecutor {
	return &hornExecutor{
		steps: hornSteps(pattern, duration, bell),
		bell:  bell,
	}
}

// Start 在now执行第一步
func (h *hornExecutor) Start(now float64, target hornTarget) {
	h.start = now
	h.nextWake = now
	if h.bell {
		target.SetBell(true)
	}
	h.Advance(now, target)
}

// Advance 执行所有已到时刻的步骤
// 返回：全部步骤执行完且最后的等待已结束时返回true
func (h *hornExecutor) Advance(now float64, target hornTarget) bool {
	for h.stepIndex < len(h.steps) && now >= h.nextWake {
		step := h.steps[h.stepIndex]
		switch step.effect {
		case effectHornOn:
			target.SetHorn(true)
		case effectHornOff:
			target.SetHorn(false)
		case effectBellOff:
			target.SetBell(false)
		}
		h.nextWake += step.wait
		h.stepIndex++
	}
	return h.stepIndex == len(h.steps) && now >= h.nextWake
}

// Stop 立即停止鸣笛与打铃
func (h *hornExecutor) Stop(target hornTarget) {
	target.SetHorn(false)
	if h.bell {
		target.SetBell(false)
	}
	h.stepIndex = len(h.steps)
}

// totalDuration 步骤表的总时长
func (h *hornExecutor) totalDuration() float64 {
	total := 0.
	for _, s := range h.steps {
		total += s.wait
	}
	return total
}
