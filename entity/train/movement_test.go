package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim-ai/entity"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
)

func TestTriggersFollowRisingAllowedSpeed(t *testing.T) {
	t.Run("held signal", func(t *testing.T) {
		w := testWorld()
		w.Sections[0].MaxV = 5
		c := newTestContext(t, w)
		require.NoError(t, c.signals.SetHold(10, true))
		tr := c.train(t, 1)

		// 离开限速区段后允许速度升到20，停车信号的触发点必须随之提前
		c.runUntil(t, 2000, func() bool { return tr.State() == StateStopped && tr.Distance() > 1000 })
		assert.False(t, tr.removed.Load())
		assert.GreaterOrEqual(t, tr.Distance(), 1985.)
		assert.LessOrEqual(t, tr.Distance(), 1995.5)
		require.NotNil(t, tr.Governing())
		assert.Equal(t, KindSignalStop, tr.Governing().Kind)
	})
	t.Run("waiting point", func(t *testing.T) {
		w := testWorld()
		w.Sections[0].MaxV = 5
		w.Paths[0].Nodes = []input.PathNode{{Type: "waiting_point", RouteIndex: 1, SectionID: 2, Offset: 300, WaitTime: 5}}
		c := newTestContext(t, w)
		tr := c.train(t, 1)

		c.runUntil(t, 2000, func() bool { return tr.State() == StateHandleAction })
		assert.GreaterOrEqual(t, tr.Distance(), 1295.)
		assert.LessOrEqual(t, tr.Distance(), 1300.5)
	})
}

func TestSpeedSignalBraking(t *testing.T) {
	w := testWorld()
	w.Signals[0].SpeedLimit = 8
	c := newTestContext(t, w)
	tr := c.train(t, 1)
	h := c.config.AI.Hysteresis

	braked := false
	c.runUntil(t, 2000, func() bool {
		braked = braked || tr.State() == StateBraking
		return tr.Distance() >= 2000
	})
	assert.True(t, braked)
	assert.LessOrEqual(t, tr.Speed(), 8+2*h)
	c.step()
	assert.LessOrEqual(t, tr.allowedMax, 8.)
	c.runUntil(t, 4000, func() bool { return tr.State() == StateStatic })
}

func TestCreepTowardsStaticTrain(t *testing.T) {
	w := testWorld()
	w.Trains = append(w.Trains, input.Train{ID: 2, Static: true, Cars: 2, SectionID: 2, Offset: 800})
	c := newTestContext(t, w)
	c.config.AI.CreepDistance = 200
	tr := c.train(t, 1)
	keep := c.config.AI.StaticKeepDistancePassenger
	limit := c.config.AI.CreepSpeed + 2*c.config.AI.Hysteresis

	c.runUntil(t, 2000, func() bool {
		if rest := 1760 - keep - tr.Distance(); rest < 100 && tr.State() == StateFollowing {
			require.LessOrEqual(t, tr.Speed(), limit, "rest %.1f", rest)
		}
		return tr.Distance() > 1000 && tr.State() == StateStopped
	})
	assert.LessOrEqual(t, tr.Distance(), 1760-keep+0.5)
	assert.GreaterOrEqual(t, tr.Distance(), 1760-keep-c.config.AI.MinStopDistance-1)
	assert.Equal(t, ResumeFollowTrain, tr.resumeReason)
}

// followWorld 列车2从区段2出发并在区段2的900米处停站，列车1在其后跟随
func followWorld() input.World {
	w := testWorld()
	w.Signals = nil
	w.Paths = append(w.Paths, input.Path{
		Name:     "ahead",
		SubPaths: [][]input.PathElement{{{SectionID: 2}, {SectionID: 3}, {SectionID: 4}}},
	})
	w.Trains = append(w.Trains, input.Train{
		ID:         2,
		Name:       "G2",
		Path:       "ahead",
		Cars:       4,
		CarLength:  20,
		MaxSpeed:   20,
		Efficiency: 1,
		Stops:      []input.Stop{{Name: "B", SectionID: 2, Offset: 900, Dwell: 60}},
	})
	return w
}

func TestFollowMovingTrain(t *testing.T) {
	c := newTestContext(t, followWorld())
	first, second := c.train(t, 2), c.train(t, 1)
	keep := c.config.AI.MovingKeepDistance
	// 列车2的车尾在列车1路径上的里程
	tail := func() float64 { return 1000 + first.Distance() - first.Length() }

	followed := false
	c.runUntil(t, 2000, func() bool {
		if second.State() == StateFollowing {
			followed = true
			require.Greater(t, tail()-second.Distance(), 0.)
		}
		return first.State() == StateStationStop
	})
	assert.True(t, followed)

	c.runUntil(t, 400, func() bool { return second.State() == StateStopped })
	gap := tail() - second.Distance()
	assert.GreaterOrEqual(t, gap, keep-c.config.AI.MinStopDistance-1)
	assert.LessOrEqual(t, gap, keep+c.config.AI.CreepDistance)
	assert.Equal(t, ResumeFollowTrain, second.resumeReason)

	// 前车停站期间一直等待
	for i := 0; i < 20; i++ {
		c.step()
		require.Equal(t, StateStopped, second.State())
	}

	// 前车出发后以FOLLOWING重新启动
	c.runUntil(t, 400, func() bool { return second.State() != StateStopped })
	assert.Equal(t, StateFollowing, second.State())
	assert.Greater(t, first.Speed(), 0.)
	assert.Greater(t, first.stops[0].actualDepart, 0.)
}

func TestPermissiveSignalRestrictedResume(t *testing.T) {
	w := testWorld()
	w.Signals[0].Permissive = true
	w.Trains = append(w.Trains, input.Train{ID: 2, Static: true, Cars: 2, SectionID: 3, Offset: 500})
	c := newTestContext(t, w)
	tr := c.train(t, 1)
	sig := c.signals.Get(10)
	cfg := c.config.AI

	// 闭塞分区被占用，信号机保持停车
	c.runUntil(t, 2000, func() bool { return tr.State() == StateStopped && tr.Distance() > 1000 })
	assert.LessOrEqual(t, tr.Distance(), 1995.5)

	// 停车后自行请求以限制显示进入
	c.runUntil(t, 10, func() bool { return tr.State() != StateStopped })
	assert.Equal(t, ResumeSignalRestricted, tr.resumeReason)
	assert.Equal(t, int32(1), sig.ReservedFor())
	assert.Equal(t, entity.AspectRestricted, sig.Aspect())
	assert.Equal(t, cfg.RestrictedSpeed, tr.resumeLimit)
	assert.Equal(t, 2000+tr.Length(), tr.resumeLimitUntil)

	c.runUntil(t, 400, func() bool {
		if tr.Distance() < 2000+tr.Length() {
			require.LessOrEqual(t, tr.allowedMax, cfg.RestrictedSpeed)
			require.LessOrEqual(t, tr.Speed(), cfg.RestrictedSpeed+2*cfg.Hysteresis)
		}
		return tr.Distance() >= 2000+tr.Length()
	})
	c.step()
	assert.Zero(t, tr.resumeLimit)

	// 以限制速度进入后在静止车辆前停车
	c.runUntil(t, 2000, func() bool { return tr.State() == StateStopped })
	assert.InDelta(t, 2460-cfg.StaticKeepDistancePassenger, tr.Distance(), cfg.MinStopDistance+1)
	assert.Equal(t, ResumeFollowTrain, tr.resumeReason)
	assert.False(t, tr.removed.Load())
}

func TestStoppedWaitsForReservedSection(t *testing.T) {
	w := testWorld()
	w.Signals = nil
	c := newTestContext(t, w)
	tr := c.train(t, 1)

	// 区段2预留给其他列车时，停着的列车不出发
	require.True(t, c.sections.Get(2).Reserve(9))
	auth := tr.authorityAhead()
	assert.Equal(t, KindEndOfAuthority, auth.kind)
	assert.Equal(t, 1000-c.config.AI.StopMargin, auth.distance)

	c.sections.Get(2).Release(9)
	auth = tr.authorityAhead()
	assert.Greater(t, auth.distance, 4000.)
}

func TestReversalIntoNextSubPath(t *testing.T) {
	w := input.World{
		Sections: []input.Section{
			{ID: 1, Length: 1000, LevelCrossings: []float64{500}},
			{ID: 2, Length: 1000},
		},
		Paths: []input.Path{{
			Name: "shuttle",
			SubPaths: [][]input.PathElement{
				{{SectionID: 1}, {SectionID: 2}},
				{{SectionID: 2, Direction: 1}, {SectionID: 1, Direction: 1}},
			},
			Nodes: []input.PathNode{{Type: "waiting_point", SubPath: 1, RouteIndex: 1, SectionID: 1, Offset: 500, WaitTime: 5}},
		}},
		Trains: []input.Train{{ID: 1, Name: "S1", Path: "shuttle", Cars: 4, CarLength: 20, MaxSpeed: 20, Efficiency: 1}},
	}
	c := newTestContext(t, w)
	tr := c.train(t, 1)

	horns, on := 0, false
	count := func() {
		if tr.HornOn() && !on {
			horns++
		}
		on = tr.HornOn()
	}

	// 第二个子路径上的等待点在折返前不创建实例
	c.step()
	spec, _ := tr.aux.Live()
	assert.Zero(t, spec)

	c.runUntil(t, 2000, func() bool {
		count()
		return tr.subPath == 1
	})
	assert.Equal(t, 1, horns)
	assert.InDelta(t, 2000+tr.Length(), tr.Distance(), 3)
	assert.Zero(t, tr.Speed())
	assert.Equal(t, ResumeNew, tr.resumeReason)
	// 上一子路径的通用动作记录随换向清除
	assert.Empty(t, tr.aux.activated)
	spec, gen := tr.aux.Live()
	assert.Equal(t, 1, spec)
	assert.Zero(t, gen)

	c.runUntil(t, 4000, func() bool {
		count()
		return tr.State() == StateHandleAction
	})
	assert.InDelta(t, 3500, tr.Distance(), 5)
	c.runUntil(t, 4000, func() bool {
		count()
		return tr.State() == StateStatic
	})
	// 回程再次经过同一道口，重新鸣笛
	assert.Equal(t, 2, horns)
	assert.InDelta(t, 4000, tr.Distance(), 5)
}
