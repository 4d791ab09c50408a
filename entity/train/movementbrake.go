package train

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
)

// bandInput 分段速度控制的输入
type bandInput struct {
	v          float64 // 当前速度
	ideal      float64 // 目标速度（已不超过允许速度）
	allowedMax float64 // 允许的最高速度
	throttle   float64 // 当前牵引百分比
	brake      float64 // 当前制动百分比
	efficiency float64 // 司机牵引效率
	dt         float64
}

// bandControl 分段速度控制
// 功能：根据当前速度与目标速度的差值逐步调整牵引与制动，不做突变
// 返回：新的牵引与制动百分比
// 算法说明（h为回差）：
// 1. 超过min(允许速度+h, 目标+2h)：切除牵引，制动按大步长增加
// 2. 超过目标+h：切除牵引，制动按小步长增加
// 3. 超过目标：牵引逐步减小
// 4. 高于目标-h：制动按小步长缓解
// 5. 更低：先按大步长缓解制动，制动为0后按效率逐步增加牵引
func bandControl(in bandInput, cfg *config.AIConfig) (throttle, brake float64) {
	h := cfg.Hysteresis
	throttle, brake = in.throttle, in.brake
	switch {
	case in.v > min(in.allowedMax+h, in.ideal+2*h):
		throttle = 0
		brake += cfg.BrakeStepLarge * in.dt
	case in.v > in.ideal+h:
		throttle = 0
		brake += cfg.BrakeStepSmall * in.dt
	case in.v > in.ideal:
		throttle -= cfg.ThrottleStep * in.dt
	case in.v > in.ideal-h:
		if brake > 0 {
			brake -= cfg.BrakeStepSmall * in.dt
		}
	default:
		if brake > 0 {
			brake = max(0, brake-cfg.BrakeStepLarge*in.dt)
		} else {
			throttle += cfg.ThrottleStep * in.efficiency * in.dt
		}
	}
	return lo.Clamp(throttle, 0, 100), lo.Clamp(brake, 0, 100)
}

// idealTarget 所有有效动作的理想速度的最小值，不超过允许速度
func (t *Train) idealTarget() float64 {
	ideal := t.allowedMax
	for _, item := range t.active {
		ideal = min(ideal, t.idealSpeedOf(item))
	}
	return ideal
}

// idealSpeedOf 动作在当前位置对应的理想速度
func (t *Train) idealSpeedOf(item *ActionItem) float64 {
	return idealSpeed(item.ActivateDistance-t.distance, item.RequiredSpeed, t.cfg.BrakingLagFactor, t.physics.MaxDecel())
}

// setControls 设置牵引与制动
// 说明：受控启动的限牵引期间牵引不超过上限
func (t *Train) setControls(throttle, brake float64) {
	if t.ctx.Clock().T < t.throttleCapUntil {
		throttle = min(throttle, t.cfg.ControlledStartThrottle)
	}
	t.physics.SetThrottlePercent(throttle)
	t.physics.SetBrakePercent(brake)
}

// updateSpeedControl BRAKING/ACCELERATING/RUNNING的共同处理
// 功能：向起支配作用的动作制动，或在没有限制时加速、保持最高速度
// 返回：是否需要立即按新状态再次分派
// 算法说明：
// 1. 起支配作用的是前方列车时转入FOLLOWING
// 2. 要求停车且剩余距离小于最小停车距离时全制动，停稳后按动作类别处理到达
// 3. 否则按目标速度分段控制，并按目标速度是否受限、是否接近允许速度标记状态
func (t *Train) updateSpeedControl(dt float64) bool {
	if g := t.governing; g != nil && g.Kind == KindTrainAhead && t.ahead.train != nil {
		t.state = StateFollowing
		return true
	}
	v := t.physics.Speed()
	if g := t.governing; g != nil && g.isStop() && g.ActivateDistance-t.distance < t.cfg.MinStopDistance {
		t.state = StateBraking
		t.setControls(0, 100)
		if v < t.cfg.StoppedSpeed {
			t.arrive(g)
			return true
		}
		return false
	}
	ideal := t.idealTarget()
	h := t.cfg.Hysteresis
	switch {
	case t.governing != nil && ideal < t.allowedMax-h:
		t.state = StateBraking
	case v < t.allowedMax-h:
		t.state = StateAccelerating
	default:
		t.state = StateRunning
	}
	throttle, brake := bandControl(bandInput{
		v:          v,
		ideal:      ideal,
		allowedMax: t.allowedMax,
		throttle:   t.physics.ThrottlePercent(),
		brake:      t.physics.BrakePercent(),
		efficiency: t.efficiency,
		dt:         dt,
	}, t.cfg)
	t.setControls(throttle, brake)
	return false
}
