package config

import (
	"fmt"

	"github.com/samber/lo"
)

// DefaultAIConfig 默认AI司机参数
func DefaultAIConfig() AIConfig {
	return AIConfig{
		CreepSpeed:          2.5,
		CouplingSpeed:       0.4,
		MaxFollowSpeed:      15,
		MovableTableSpeed:   2.5,
		RestrictedSpeed:     5.55,
		ApproachAspectSpeed: 11.11,

		Hysteresis:       0.5,
		BrakingLagFactor: 0.22,
		ClearingDistance: 30,
		MinStopDistance:  3,
		StopMargin:       5,
		MinLookAhead:     1000,
		StoppedSpeed:     0.01,

		StaticKeepDistancePassenger: 10,
		StaticKeepDistanceFreight:   50,
		MovingKeepDistance:          300,
		CouplingDistance:            0.5,
		CreepDistance:               30,

		BrakeStepLarge: 50,
		BrakeStepSmall: 10,
		ThrottleStep:   10,

		LevelCrossingHornDistance: 150,
		BellWithHorn:              lo.ToPtr(true),
		HornMinDuration:           2,
		HornMaxDuration:           5,

		DoorOpenTime:  4,
		DoorCloseTime: 3,
		MinDwellTime:  20,

		ControlledStartThrottle: 40,
		ControlledStartRamp:     20,

		Classes: map[string]ClassParams{
			"passenger": {MaxAccel: 1.0, MaxDecel: 1.0},
			"freight":   {MaxAccel: 0.5, MaxDecel: 0.6},
			"emu":       {MaxAccel: 1.2, MaxDecel: 1.1},
			"dmu":       {MaxAccel: 0.9, MaxDecel: 0.9},
		},
	}
}

func fill(v *float64, d float64) {
	if *v == 0 {
		*v = d
	}
}

// WithDefaults 用默认值补齐未配置（为0或nil）的参数
func (c AIConfig) WithDefaults() AIConfig {
	d := DefaultAIConfig()
	if c.BellWithHorn == nil {
		c.BellWithHorn = d.BellWithHorn
	}
	fill(&c.CreepSpeed, d.CreepSpeed)
	fill(&c.CouplingSpeed, d.CouplingSpeed)
	fill(&c.MaxFollowSpeed, d.MaxFollowSpeed)
	fill(&c.MovableTableSpeed, d.MovableTableSpeed)
	fill(&c.RestrictedSpeed, d.RestrictedSpeed)
	fill(&c.ApproachAspectSpeed, d.ApproachAspectSpeed)
	fill(&c.Hysteresis, d.Hysteresis)
	fill(&c.BrakingLagFactor, d.BrakingLagFactor)
	fill(&c.ClearingDistance, d.ClearingDistance)
	fill(&c.MinStopDistance, d.MinStopDistance)
	fill(&c.StopMargin, d.StopMargin)
	fill(&c.MinLookAhead, d.MinLookAhead)
	fill(&c.StoppedSpeed, d.StoppedSpeed)
	fill(&c.StaticKeepDistancePassenger, d.StaticKeepDistancePassenger)
	fill(&c.StaticKeepDistanceFreight, d.StaticKeepDistanceFreight)
	fill(&c.MovingKeepDistance, d.MovingKeepDistance)
	fill(&c.CouplingDistance, d.CouplingDistance)
	fill(&c.CreepDistance, d.CreepDistance)
	fill(&c.BrakeStepLarge, d.BrakeStepLarge)
	fill(&c.BrakeStepSmall, d.BrakeStepSmall)
	fill(&c.ThrottleStep, d.ThrottleStep)
	fill(&c.LevelCrossingHornDistance, d.LevelCrossingHornDistance)
	fill(&c.HornMinDuration, d.HornMinDuration)
	fill(&c.HornMaxDuration, d.HornMaxDuration)
	fill(&c.DoorOpenTime, d.DoorOpenTime)
	fill(&c.DoorCloseTime, d.DoorCloseTime)
	fill(&c.MinDwellTime, d.MinDwellTime)
	fill(&c.ControlledStartThrottle, d.ControlledStartThrottle)
	fill(&c.ControlledStartRamp, d.ControlledStartRamp)
	classes := lo.Assign(d.Classes)
	for k, v := range c.Classes {
		classes[k] = v
	}
	c.Classes = classes
	return c
}

// BellTriggeredByHorn 鸣笛是否同时触发打铃
func (c *AIConfig) BellTriggeredByHorn() bool {
	return c.BellWithHorn != nil && *c.BellWithHorn
}

// Class 获取车辆类别的加减速能力，未知类别按客车处理
func (c *AIConfig) Class(name string) ClassParams {
	if p, ok := c.Classes[name]; ok {
		return p
	}
	return c.Classes["passenger"]
}

// Validate 检查参数的取值范围
func (c *AIConfig) Validate() error {
	if c.BrakingLagFactor <= 0 || c.BrakingLagFactor > 1 {
		return fmt.Errorf("braking_lag_factor must be in (0, 1], got %v", c.BrakingLagFactor)
	}
	if c.HornMinDuration > c.HornMaxDuration {
		return fmt.Errorf("horn_min_duration %v > horn_max_duration %v", c.HornMinDuration, c.HornMaxDuration)
	}
	for name, p := range c.Classes {
		if p.MaxAccel <= 0 || p.MaxDecel <= 0 {
			return fmt.Errorf("class %s: max_accel and max_decel must be positive", name)
		}
	}
	return nil
}

// RuntimeConfig 运行时配置
// 功能：存储补齐默认值并通过检查后的配置
type RuntimeConfig struct {
	All Config   // 全部配置
	C   Control  // 全局控制配置
	AI  AIConfig // AI司机参数（已补齐默认值）
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 算法说明：
// 1. 用默认值补齐AI参数
// 2. 检查参数，不合法则返回错误
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	ai := config.AI.WithDefaults()
	if err := ai.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ai config: %w", err)
	}
	return &RuntimeConfig{
		All: config,
		C:   config.Control,
		AI:  ai,
	}, nil
}
