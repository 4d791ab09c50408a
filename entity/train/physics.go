package train

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
)

const (
	resistanceFactor = 0.001 // 与速度成正比的运行阻力系数
)

// SimplePhysics 简化的列车动力学
// 功能：把牵引与制动百分比换算为加速度，按车辆类别选取最大加减速度
type SimplePhysics struct {
	class    entity.CarClass
	maxAccel float64
	maxDecel float64
	maxSpeed float64

	throttle float64
	brake    float64
	v        float64
	a        float64
}

// NewSimplePhysics 创建动力学模型
// 参数：class-车辆类别，params-该类别的加减速能力，maxSpeed-构造速度（0表示不限制）
func NewSimplePhysics(class entity.CarClass, params config.ClassParams, maxSpeed float64) *SimplePhysics {
	return &SimplePhysics{
		class:    class,
		maxAccel: params.MaxAccel,
		maxDecel: params.MaxDecel,
		maxSpeed: maxSpeed,
	}
}

func (p *SimplePhysics) SetThrottlePercent(v float64) {
	p.throttle = lo.Clamp(v, 0, 100)
}

func (p *SimplePhysics) SetBrakePercent(v float64) {
	p.brake = lo.Clamp(v, 0, 100)
}

// SetFixedSpeed 强制设定速度，用于出发时的初速度与连挂后的停车
func (p *SimplePhysics) SetFixedSpeed(v float64) {
	p.v = max(v, 0)
	p.a = 0
}

func (p *SimplePhysics) ThrottlePercent() float64 {
	return p.throttle
}

func (p *SimplePhysics) BrakePercent() float64 {
	return p.brake
}

func (p *SimplePhysics) Speed() float64 {
	return p.v
}

func (p *SimplePhysics) Acceleration() float64 {
	return p.a
}

func (p *SimplePhysics) CarClass() entity.CarClass {
	return p.class
}

func (p *SimplePhysics) MaxDecel() float64 {
	return p.maxDecel
}

// Update 推进一步
// 返回：本步行驶的距离
// 算法说明：a = 牵引%·最大加速度 - 制动%·最大减速度 - 阻力，速度不为负，距离按梯形积分
func (p *SimplePhysics) Update(dt float64) (ds float64) {
	p.a = p.throttle/100*p.maxAccel - p.brake/100*p.maxDecel - resistanceFactor*p.v
	v := max(0, p.v+p.a*dt)
	if p.maxSpeed > 0 && v > p.maxSpeed {
		v = p.maxSpeed
	}
	ds = (p.v + v) / 2 * dt
	p.v = v
	return ds
}
