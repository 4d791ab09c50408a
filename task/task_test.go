package task_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/railsim-ai/entity/train"
	"github.com/tsinghua-fib-lab/railsim-ai/task"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/metrics"
)

const world = `
sections:
  - {id: 1, length: 1000}
  - {id: 2, length: 1000}
  - {id: 3, length: 1000, max_v: 15}
signals:
  - {id: 10, section_id: 1, block: [2]}
  - {id: 20, section_id: 2, block: [3], hold: true}
paths:
  - name: main
    sub_paths:
      - [{section_id: 1}, {section_id: 2}, {section_id: 3}]
trains:
  - {id: 1, name: G1, path: main, cars: 4, car_length: 20, max_speed: 20, efficiency: 1}
  - {id: 2, name: G2, path: main, cars: 4, car_length: 20, max_speed: 20, efficiency: 1, start_time: 60}
`

func newContext(t *testing.T, total int32) *task.Context {
	p := filepath.Join(t.TempDir(), "world.yaml")
	require.NoError(t, os.WriteFile(p, []byte(world), 0o644))
	c := config.Config{
		Input:   config.Input{World: p},
		Control: config.Control{Step: config.ControlStep{Start: 0, Total: total, Interval: 0.5}},
	}
	ctx, err := task.NewContext("test", c, nil, false, metrics.NewCollector())
	require.NoError(t, err)
	ctx.Init()
	return ctx
}

func trainOf(t *testing.T, ctx *task.Context, id int32) *train.Train {
	tr, err := ctx.Trains().Train(id)
	require.NoError(t, err)
	return tr
}

func TestRunStandalone(t *testing.T) {
	ctx := newContext(t, 1200)
	ctx.Run()
	assert.Equal(t, int32(1200), ctx.Clock().InternalStep)

	first, second := trainOf(t, ctx, 1), trainOf(t, ctx, 2)
	// 第一列停在扣停的信号机20前，第二列停在信号机10前
	assert.Equal(t, train.StateStopped, first.State())
	assert.InDelta(t, 1995, first.Distance(), 10)
	assert.Equal(t, train.StateStopped, second.State())
	assert.InDelta(t, 995, second.Distance(), 10)
	assert.Equal(t, train.KindSignalStop, second.Governing().Kind)
}

func TestSaveAndLoadState(t *testing.T) {
	ctx := newContext(t, 2000)
	for i := 0; i < 300; i++ {
		ctx.Step()
	}
	p := filepath.Join(t.TempDir(), "state.msgpack.zst")
	require.NoError(t, ctx.SaveState(p))

	restored := newContext(t, 2000)
	require.NoError(t, restored.LoadState(p, ctx.Clock().InternalStep))
	assert.Equal(t, ctx.Clock().T, restored.Clock().T)
	for i := 0; i < 200; i++ {
		ctx.Step()
		restored.Step()
	}
	for _, id := range []int32{1, 2} {
		assert.InDelta(t, trainOf(t, ctx, id).Distance(), trainOf(t, restored, id).Distance(), 1e-9)
		assert.Equal(t, trainOf(t, ctx, id).State(), trainOf(t, restored, id).State())
	}

	require.NoError(t, restored.Signals().SetHold(20, false))
	for i := 0; i < 100; i++ {
		restored.Step()
	}
	assert.Greater(t, trainOf(t, restored, 1).Distance(), 2000.)
}

func TestBadInput(t *testing.T) {
	_, err := task.NewContext("test", config.Config{Input: config.Input{World: "/nonexistent.yaml"}}, nil, false, nil)
	assert.Error(t, err)
}
