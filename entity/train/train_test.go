package train

import (
	"bytes"
	"io"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/input"
	"github.com/vmihailenco/msgpack/v5"
)

func TestStationStopAndEndOfRoute(t *testing.T) {
	w := testWorld()
	w.Trains[0].Stops = []input.Stop{{Name: "A", SectionID: 2, Offset: 500, Dwell: 20}}
	c := newTestContext(t, w)
	tr := c.train(t, 1)

	c.step()
	assert.Equal(t, StateStopped, tr.State())
	assert.Equal(t, 80., tr.Distance())

	c.runUntil(t, 2000, func() bool { return tr.State() == StateStationStop })
	assert.GreaterOrEqual(t, tr.Distance(), 1495.)
	assert.LessOrEqual(t, tr.Distance(), 1500.5)
	assert.Less(t, tr.physics.Speed(), c.config.AI.StoppedSpeed)

	st := tr.stops[0]
	c.runUntil(t, 2000, func() bool { return st.actualDepart > 0 })
	assert.GreaterOrEqual(t, st.actualDepart-st.actualArrival, 20+c.config.AI.DoorCloseTime)
	assert.False(t, tr.doorsOpen)
	assert.Equal(t, 1, tr.nextStop)

	c.runUntil(t, 4000, func() bool { return tr.State() == StateStatic })
	assert.InDelta(t, 4000, tr.Distance(), 5)
	assert.LessOrEqual(t, tr.Distance(), 4000.5)
	assert.Zero(t, tr.physics.Speed())
	// 越过信号机后信号关闭，出清的闭塞分区解除预留
	assert.Zero(t, c.signals.Get(10).ReservedFor())
	assert.Zero(t, c.sections.Get(3).ReservedBy())
}

func TestHeldSignal(t *testing.T) {
	w := testWorld()
	w.Signals[0].Hold = true
	c := newTestContext(t, w)
	tr := c.train(t, 1)

	c.runUntil(t, 2000, func() bool { return tr.State() == StateStopped && tr.Distance() > 1000 })
	assert.GreaterOrEqual(t, tr.Distance(), 1985.)
	assert.LessOrEqual(t, tr.Distance(), 1995.5)
	require.NotNil(t, tr.Governing())
	assert.Equal(t, KindSignalStop, tr.Governing().Kind)

	// 扣停期间一直等待
	for i := 0; i < 100; i++ {
		c.step()
	}
	assert.Equal(t, StateStopped, tr.State())
	assert.Zero(t, c.signals.Get(10).ReservedFor())

	require.NoError(t, c.signals.SetHold(10, false))
	c.runUntil(t, 10, func() bool { return tr.State() == StateAccelerating })
	assert.Equal(t, ResumeSignalCleared, tr.resumeReason)
	assert.Equal(t, int32(1), c.signals.Get(10).ReservedFor())
	assert.Equal(t, int32(1), c.sections.Get(3).ReservedBy())

	c.runUntil(t, 200, func() bool { return tr.Distance() > 2000 })
	assert.Zero(t, c.signals.Get(10).ReservedFor())
	c.runUntil(t, 2000, func() bool { return tr.State() == StateStatic })
	assert.Zero(t, c.sections.Get(3).ReservedBy())
}

func waitingPointWorld() input.World {
	w := testWorld()
	w.Paths[0].Nodes = []input.PathNode{{
		Type:         "waiting_point",
		RouteIndex:   1,
		SectionID:    2,
		Offset:       500,
		WaitTime:     10,
		LinkedSignal: 10,
	}}
	return w
}

func TestWaitingPointLocksLinkedSignal(t *testing.T) {
	c := newTestContext(t, waitingPointWorld())
	tr := c.train(t, 1)
	sig := c.signals.Get(10)

	c.step()
	assert.Equal(t, int32(1), sig.LockCount())
	spec, _ := tr.aux.Live()
	assert.Equal(t, 1, spec)

	c.runUntil(t, 2000, func() bool { return tr.State() == StateHandleAction })
	assert.GreaterOrEqual(t, tr.Distance(), 1495.)
	assert.LessOrEqual(t, tr.Distance(), 1500.5)
	assert.Equal(t, int32(1), sig.LockCount())
	assert.True(t, sig.IsHeld())
	arrived := c.clock.T

	c.runUntil(t, 100, func() bool { return tr.State() != StateHandleAction })
	assert.GreaterOrEqual(t, c.clock.T-arrived, 10.)
	assert.Equal(t, ResumePathAction, tr.resumeReason)
	assert.Zero(t, sig.LockCount())
	spec, _ = tr.aux.Live()
	assert.Zero(t, spec)

	c.runUntil(t, 2000, func() bool { return tr.State() == StateStatic })
	assert.Zero(t, sig.LockCount())
	assert.InDelta(t, 4000, tr.Distance(), 5)
}

func TestOneExclusiveInstanceAtATime(t *testing.T) {
	w := testWorld()
	w.Paths[0].Nodes = []input.PathNode{
		{Type: "waiting_point", RouteIndex: 2, SectionID: 3, Offset: 500, WaitTime: 5},
		{Type: "waiting_point", RouteIndex: 1, SectionID: 2, Offset: 200, WaitTime: 5},
	}
	c := newTestContext(t, w)
	tr := c.train(t, 1)

	var handled []float64
	c.runUntil(t, 4000, func() bool {
		spec, _ := tr.aux.Live()
		require.LessOrEqual(t, spec, 1)
		if tr.State() == StateHandleAction && (len(handled) == 0 || tr.Distance()-handled[len(handled)-1] > 100) {
			handled = append(handled, tr.Distance())
		}
		return tr.State() == StateStatic
	})
	require.Len(t, handled, 2)
	assert.InDelta(t, 1200, handled[0], 5)
	assert.InDelta(t, 2500, handled[1], 5)
}

func TestSuspendAndFreeze(t *testing.T) {
	c := newTestContext(t, testWorld())
	tr := c.train(t, 1)
	c.runUntil(t, 200, func() bool { return tr.Distance() > 200 })

	require.NoError(t, c.trains.Freeze(1, true))
	d := tr.Distance()
	for i := 0; i < 10; i++ {
		c.step()
	}
	assert.Equal(t, StateFrozen, tr.State())
	assert.Equal(t, d, tr.Distance())

	require.NoError(t, c.trains.Freeze(1, false))
	require.NoError(t, c.trains.Suspend(1, true))
	c.step()
	assert.Equal(t, StateSuspended, tr.State())
	assert.Empty(t, tr.active)
	require.NoError(t, c.trains.Suspend(1, false))
	c.runUntil(t, 10, func() bool { return tr.State() == StateAccelerating })

	assert.Error(t, c.trains.Suspend(99, true))
	assert.Error(t, c.trains.Release(99))
}

func TestStaticTrainWithoutPath(t *testing.T) {
	w := testWorld()
	w.Trains[0].Path = "missing"
	w.Trains = append(w.Trains, input.Train{ID: 2, Static: true, Cars: 2, SectionID: 4, Offset: 500})
	c := newTestContext(t, w)

	c.step()
	assert.Equal(t, StateStatic, c.train(t, 1).State())
	parked := c.train(t, 2)
	assert.True(t, parked.IsStatic())
	assert.Equal(t, 40., parked.Length())
	occupants := c.sections.Get(4).Occupants()
	require.Len(t, occupants, 1)
	assert.Equal(t, int32(2), occupants[0].Train.ID())
	assert.Equal(t, 460., occupants[0].From)
	assert.Equal(t, 500., occupants[0].To)
}

func TestFollowStaticTrain(t *testing.T) {
	w := testWorld()
	w.Trains = append(w.Trains, input.Train{ID: 2, Static: true, Cars: 2, SectionID: 2, Offset: 800})
	c := newTestContext(t, w)
	tr := c.train(t, 1)

	c.runUntil(t, 2000, func() bool {
		return tr.Distance() > 1000 && tr.State() == StateStopped
	})
	keep := c.config.AI.StaticKeepDistancePassenger
	// 停在静止车辆车尾之前保持距离处
	assert.LessOrEqual(t, tr.Distance(), 1760-keep+0.5)
	assert.GreaterOrEqual(t, tr.Distance(), 1760-keep-10)
	assert.Equal(t, ResumeFollowTrain, tr.resumeReason)
}

func TestSaveAndLoad(t *testing.T) {
	cases := []struct {
		name string
		save func(*TrainManager, io.Writer) error
		load func(*TrainManager, io.Reader) error
	}{
		{"plain", (*TrainManager).Save, (*TrainManager).Load},
		{"zstd", (*TrainManager).SaveCompressed, (*TrainManager).LoadCompressed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestContext(t, waitingPointWorld())
			ta := a.train(t, 1)
			a.runUntil(t, 2000, func() bool { return ta.State() == StateHandleAction })
			a.step()

			var buf bytes.Buffer
			require.NoError(t, tc.save(a.trains, &buf))

			b := newTestContext(t, waitingPointWorld())
			b.clock.InternalStep = a.clock.InternalStep
			b.clock.T = a.clock.T
			require.NoError(t, tc.load(b.trains, &buf))
			tb := b.train(t, 1)
			assert.Equal(t, ta.Distance(), tb.Distance())
			assert.Equal(t, StateHandleAction, tb.State())
			assert.NotNil(t, tb.currentAux)
			// 恢复的等待点重新锁闭信号
			assert.Equal(t, int32(1), b.signals.Get(10).LockCount())

			for i := 0; i < 400; i++ {
				a.step()
				b.step()
				require.Equal(t, ta.State(), tb.State(), "step %d", i)
				require.InDelta(t, ta.Distance(), tb.Distance(), 1e-9, "step %d", i)
			}
			assert.Zero(t, b.signals.Get(10).LockCount())
			assert.Equal(t, a.signals.Get(10).ReservedFor(), b.signals.Get(10).ReservedFor())
		})
	}
}

func TestLoadBadVersion(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.EncodeString(saveMagic))
	require.NoError(t, enc.EncodeInt(saveVersion+1))

	c := newTestContext(t, testWorld())
	assert.ErrorIs(t, c.trains.Load(&buf), ErrBadSaveVersion)
	assert.Error(t, c.trains.Load(bytes.NewReader([]byte{0xc1})))
}

func TestPassingHeldSignalRemovesTrain(t *testing.T) {
	c := newTestContext(t, testWorld())
	require.NoError(t, c.signals.SetHold(10, true))
	tr := c.train(t, 1)
	c.runUntil(t, 200, func() bool { return tr.Distance() > 200 })

	// 外部接管后全力牵引越过扣停的信号
	require.NoError(t, c.trains.Suspend(1, true))
	for i := 0; i < 2000 && !tr.removed.Load(); i++ {
		tr.physics.SetBrakePercent(0)
		tr.physics.SetThrottlePercent(100)
		c.step()
	}
	require.True(t, tr.removed.Load())
	assert.Greater(t, tr.Distance(), 2000+c.config.AI.ClearingDistance)

	c.step()
	_, err := c.trains.Train(1)
	assert.Error(t, err)
	assert.Empty(t, c.trains.Trains())
}

func TestRunsAreReproducible(t *testing.T) {
	world := func() input.World {
		w := testWorld()
		w.Sections[1].LevelCrossings = []float64{500}
		w.Trains[0].Efficiency = 0
		w.Trains = append(w.Trains, input.Train{
			ID:        2,
			Name:      "G2",
			Path:      "main",
			Cars:      4,
			CarLength: 20,
			MaxSpeed:  20,
			StartTime: 60,
		})
		return w
	}
	a, b := newTestContext(t, world()), newTestContext(t, world())

	horn := false
	for i := 0; i < 3000; i++ {
		a.step()
		b.step()
		for _, id := range []int32{1, 2} {
			ta, tb := a.train(t, id), b.train(t, id)
			require.Equal(t, ta.State(), tb.State(), "train %d step %d", id, i)
			require.Equal(t, ta.Distance(), tb.Distance(), "train %d step %d", id, i)
			require.Equal(t, ta.Speed(), tb.Speed(), "train %d step %d", id, i)
			require.Equal(t, ta.HornOn(), tb.HornOn(), "train %d step %d", id, i)
			horn = horn || ta.HornOn()
		}
	}
	assert.True(t, horn)
	for _, id := range []int32{1, 2} {
		assert.Equal(t, a.train(t, id).efficiency, b.train(t, id).efficiency)
	}
	assert.True(t, slices.IsSortedFunc(a.trains.ordered, func(x, y *Train) int { return int(x.id - y.id) }))
}
